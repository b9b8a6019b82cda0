// Package browser manages headless Chrome sessions for the resolver.
//
// A Session is one browser process. It is created per request and must be
// closed on every path; Close is idempotent. Pages are tabs inside the
// session and share its cookies and proxy.
package browser

import (
	"context"
	"time"

	"seedlink/internal/extract"
)

// Launcher starts browser sessions.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

// Session is a running browser process.
type Session interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is a single tab. Every method is bounded by ctx.
type Page interface {
	// Navigate loads url and returns once the DOM is constructed, not after
	// every resource has loaded.
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	// Submit submits the form with the given id if there is one. Failures
	// are ignored.
	Submit(ctx context.Context, formID string)
	Snapshot(ctx context.Context) (*extract.Snapshot, error)
	// FirstAnchorURL returns the resolved href property of the first a[href].
	FirstAnchorURL(ctx context.Context) (string, bool, error)
	URL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	Close() error
}
