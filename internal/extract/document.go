// Package extract finds the redirect target of an interstitial page.
//
// Extraction is a cascade of pure strategies over a Document. A Document is
// either a Snapshot captured from a live page or markup parsed with
// ParseMarkup, so every heuristic can be exercised without a browser.
package extract

// Document is the read-only view of a page the strategies work on.
type Document interface {
	// Markup returns the full serialized document.
	Markup() string
	// Scripts returns inline script bodies in document order.
	Scripts() []string
	// HrefByID returns the href attribute of the element with the given id.
	HrefByID(id string) (string, bool)
	// AnchorHrefs returns raw href attributes of a[href] elements in document order.
	AnchorHrefs() []string
}

// Snapshot is a Document captured from a live DOM in a single evaluation.
type Snapshot struct {
	HTML    string   `json:"html"`
	Bodies  []string `json:"scripts"`
	CHref   *string  `json:"c_href"`
	Anchors []string `json:"anchors"`
}

func (s *Snapshot) Markup() string { return s.HTML }

func (s *Snapshot) Scripts() []string { return s.Bodies }

// HrefByID only knows about the redirect element; the snapshot script reads
// #c and nothing else.
func (s *Snapshot) HrefByID(id string) (string, bool) {
	if id != RedirectElementID || s.CHref == nil || *s.CHref == "" {
		return "", false
	}
	return *s.CHref, true
}

func (s *Snapshot) AnchorHrefs() []string { return s.Anchors }

// SnapshotScript is evaluated in the page to fill a Snapshot.
const SnapshotScript = `(() => {
	const c = document.getElementById('c');
	return {
		html: document.documentElement ? document.documentElement.outerHTML : '',
		scripts: Array.from(document.scripts).map(s => s.textContent || ''),
		c_href: c ? c.getAttribute('href') : null,
		anchors: Array.from(document.querySelectorAll('a[href]')).map(a => a.getAttribute('href') || ''),
	};
})()`
