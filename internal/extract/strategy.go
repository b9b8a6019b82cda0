package extract

import (
	"regexp"
	"strings"
)

// RedirectElementID is the id of the element interstitials point at the target.
const RedirectElementID = "c"

// Strategy names reported by Cascade.Extract.
const (
	StrategyScript       = "script"
	StrategyMarkupRegex  = "markup-regex"
	StrategyElement      = "element"
	StrategyHostedAnchor = "hosted-anchor"
	StrategyFirstAnchor  = "first-anchor"
)

// redirectPatterns are tried in order; the first capture group is the target.
var redirectPatterns = []*regexp.Regexp{
	regexp.MustCompile(`c\.setAttribute\("href","([^"]+)"\)`),
	regexp.MustCompile(`window\.location(?:\.href)?\s*=\s*"([^"]+)"`),
	regexp.MustCompile(`location\.assign\(["']([^"']+)["']\)`),
}

// Strategy is one step of a Cascade.
type Strategy struct {
	Name string
	Find func(Document) (string, bool)
}

// Cascade applies strategies in order and stops at the first hit.
type Cascade []Strategy

// Extract returns the first candidate found and the name of the strategy
// that produced it.
func (c Cascade) Extract(doc Document) (link, strategy string, ok bool) {
	if doc == nil {
		return "", "", false
	}
	for _, s := range c {
		if v, found := s.Find(doc); found {
			return v, s.Name, true
		}
	}
	return "", "", false
}

// DOMCascade is the live-page order: patterns per inline script, then the
// redirect element, then anchors.
func DOMCascade(domain string) Cascade {
	return Cascade{
		{Name: StrategyScript, Find: scriptPatterns},
		{Name: StrategyElement, Find: redirectElement},
		{Name: StrategyHostedAnchor, Find: hostedAnchor(domain)},
		{Name: StrategyFirstAnchor, Find: firstAnchor},
	}
}

// MarkupCascade is the static fallback: patterns over the whole markup, then
// the same element and anchor heuristics.
func MarkupCascade(domain string) Cascade {
	return Cascade{
		{Name: StrategyMarkupRegex, Find: markupPatterns},
		{Name: StrategyElement, Find: redirectElement},
		{Name: StrategyHostedAnchor, Find: hostedAnchor(domain)},
		{Name: StrategyFirstAnchor, Find: firstAnchor},
	}
}

// Strong drops the first-anchor fallback. Any page with a link satisfies
// that step, so it cannot signal that a redirect has been rendered.
func (c Cascade) Strong() Cascade {
	out := make(Cascade, 0, len(c))
	for _, s := range c {
		if s.Name == StrategyFirstAnchor {
			continue
		}
		out = append(out, s)
	}
	return out
}

// ExtractMarkup runs MarkupCascade over raw HTML.
func ExtractMarkup(raw, domain string) (string, bool) {
	doc, err := ParseMarkup(raw)
	if err != nil {
		return matchPatterns(raw)
	}
	link, _, ok := MarkupCascade(domain).Extract(doc)
	return link, ok
}

func scriptPatterns(doc Document) (string, bool) {
	for _, body := range doc.Scripts() {
		if v, ok := matchPatterns(body); ok {
			return v, true
		}
	}
	return "", false
}

func markupPatterns(doc Document) (string, bool) {
	return matchPatterns(doc.Markup())
}

func matchPatterns(text string) (string, bool) {
	for _, re := range redirectPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1], true
		}
	}
	return "", false
}

func redirectElement(doc Document) (string, bool) {
	return doc.HrefByID(RedirectElementID)
}

func hostedAnchor(domain string) func(Document) (string, bool) {
	needles := []string{"/zfile/", "/wfile/", "/file/"}
	if domain != "" {
		needles = append([]string{domain}, needles...)
	}
	return func(doc Document) (string, bool) {
		for _, h := range doc.AnchorHrefs() {
			if h == "" {
				continue
			}
			for _, n := range needles {
				if strings.Contains(h, n) {
					return h, true
				}
			}
		}
		return "", false
	}
}

func firstAnchor(doc Document) (string, bool) {
	hrefs := doc.AnchorHrefs()
	if len(hrefs) == 0 || hrefs[0] == "" {
		return "", false
	}
	return hrefs[0], true
}
