// Package buildinfo holds the release version shared by the mdqt command,
// the mdq_proxy handler and the library facade.
package buildinfo

// Version is overridden at build time with
// -ldflags "-X github.com/ausaccessfed/aaf-mdqt/internal/buildinfo.Version=...".
var Version = "0.3.0"

// UserAgent is the caller-agent string sent to MDQ services.
func UserAgent() string {
	return "mdqt/" + Version
}
