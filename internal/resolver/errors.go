package resolver

import "errors"

// ErrLaunch wraps failures to start the browser.
var ErrLaunch = errors.New("launch browser")

// NotFoundError reports that no redirect target could be extracted or
// followed. It carries what the page looked like for manual inspection.
type NotFoundError struct {
	Title string
	HTML  string
	// Err is the navigation or capture failure, nil when the heuristics
	// simply found nothing.
	Err error
}

func (e *NotFoundError) Error() string {
	if e.Err != nil {
		return "redirect link not found: " + e.Err.Error()
	}
	return "redirect link not found"
}

func (e *NotFoundError) Unwrap() error { return e.Err }
