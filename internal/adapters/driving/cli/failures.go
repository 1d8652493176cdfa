package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ausaccessfed/aaf-mdqt/internal/core/domain"
)

// failures tallies per-identifier errors in a batch command. Each one is
// reported as it happens so one bad identifier does not hide the rest.
type failures struct {
	w     io.Writer
	count int
	worst error
}

func newFailures(w io.Writer) *failures {
	return &failures{w: w}
}

// add reports err against id and returns whether the batch may continue.
// The first unrecoverable error decides the exit status.
func (f *failures) add(id string, err error) bool {
	fmt.Fprintf(f.w, "%s: %v\n", id, err)
	f.count++
	ok := recoverable(err)
	if f.worst == nil || (!ok && recoverable(f.worst)) {
		f.worst = err
	}
	return ok
}

// err summarizes the batch, or returns nil when nothing failed.
func (f *failures) err(total int, what string) error {
	if f.count == 0 {
		return nil
	}
	return &exitError{
		code: ExitCode(f.worst),
		msg:  fmt.Sprintf("%d of %d %s failed", f.count, total, what),
	}
}

// recoverable reports whether err fails only the identifier it names.
// Configuration and trust anchor problems fail every identifier alike.
func recoverable(err error) bool {
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return appErr.Code.Recoverable()
	}
	return true
}

// warnExpired notes a document whose validUntil has passed. The document is
// still used.
func (a *App) warnExpired(id string, resp *domain.MetadataResponse) {
	if resp == nil || !resp.Expired(time.Now()) {
		return
	}
	fmt.Fprintf(a.stderr, "%s: warning: metadata expired at %s\n", id, resp.ValidUntil().UTC().Format(time.RFC3339))
}
