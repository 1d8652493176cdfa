//go:build unit

package buildinfo

import "testing"

func TestUserAgent(t *testing.T) {
	if Version == "" {
		t.Fatal("Version should not be empty")
	}
	if got, want := UserAgent(), "mdqt/"+Version; got != want {
		t.Errorf("UserAgent() = %q, want %q", got, want)
	}
}
