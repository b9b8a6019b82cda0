// Package resolver walks a gated redirect chain to the file page and probes
// the known download endpoints for that file.
package resolver

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"seedlink/internal/browser"
	"seedlink/internal/config"
	"seedlink/internal/extract"
)

// LandingFormID is the interstitial form submitted before extraction.
const LandingFormID = "landing"

// Outcome is the result of one resolution attempt.
type Outcome struct {
	Candidate string
	Strategy  string
	FinalURL  string
	Title     string
	HTML      string
	Err       error
}

// Found reports whether a candidate was extracted and followed.
func (o Outcome) Found() bool {
	return o.Err == nil && o.Candidate != "" && o.FinalURL != ""
}

// Resolver drives pages of a browser session.
type Resolver struct {
	cfg    config.Resolver
	domain string
	dom    extract.Cascade
	logger zerolog.Logger
}

func NewResolver(cfg config.Resolver, logger zerolog.Logger) *Resolver {
	domain := cfg.HostDomain()
	return &Resolver{
		cfg:    cfg,
		domain: domain,
		dom:    extract.DOMCascade(domain),
		logger: logger,
	}
}

// Resolve opens startURL, passes the interstitial and follows the extracted
// link. Failures are reported in the Outcome, never returned.
func (r *Resolver) Resolve(ctx context.Context, sess browser.Session, startURL string) Outcome {
	var out Outcome
	p, err := sess.NewPage(ctx)
	if err != nil {
		out.Err = err
		return out
	}
	defer func() { _ = p.Close() }()

	if err := p.Navigate(ctx, startURL, r.cfg.NavigateTimeout.Std()); err != nil {
		return r.fail(ctx, p, out, err)
	}
	if err := sleep(ctx, r.cfg.SettleDelay.Std()); err != nil {
		return r.fail(ctx, p, out, err)
	}
	before := r.observe(ctx, p)
	p.Submit(ctx, LandingFormID)

	link, strategy, err := r.awaitCandidate(ctx, p, before)
	if err != nil {
		return r.fail(ctx, p, out, err)
	}
	if link == "" {
		r.logger.Info().Str("url", startURL).Msg("no redirect candidate")
		r.capture(ctx, p, &out)
		return out
	}
	out.Candidate, out.Strategy = link, strategy
	r.logger.Debug().Str("candidate", link).Str("strategy", strategy).Msg("redirect candidate")

	base, err := p.URL(ctx)
	if err != nil {
		base = startURL
	}
	target, err := resolveReference(base, link)
	if err != nil {
		return r.fail(ctx, p, out, err)
	}
	if err := p.Navigate(ctx, target, r.cfg.FollowTimeout.Std()); err != nil {
		return r.fail(ctx, p, out, err)
	}
	if err := sleep(ctx, r.cfg.FollowSettleDelay.Std()); err != nil {
		return r.fail(ctx, p, out, err)
	}
	final, err := p.URL(ctx)
	if err != nil {
		return r.fail(ctx, p, out, err)
	}
	out.FinalURL = final
	r.capture(ctx, p, &out)
	return out
}

// pageState is what the page showed at one point: its URL and the link the
// strong heuristics found there.
type pageState struct {
	url  string
	link string
}

// observe records the page state. Read failures leave fields empty.
func (r *Resolver) observe(ctx context.Context, p browser.Page) pageState {
	var st pageState
	st.url, _ = p.URL(ctx)
	if snap, err := p.Snapshot(ctx); err == nil {
		st.link, _, _ = r.dom.Strong().Extract(snap)
	}
	return st
}

// awaitCandidate waits out the post-submit settle delay and extracts a link.
// With polling enabled the wait ends as soon as a strong heuristic matches on
// a page that differs from before, the document that was submitted stays on
// screen until the form's response commits. The delay is only the ceiling.
func (r *Resolver) awaitCandidate(ctx context.Context, p browser.Page, before pageState) (string, string, error) {
	settle := r.cfg.SubmitSettleDelay.Std()
	interval := r.cfg.PollInterval.Std()
	if interval > 0 && settle > interval {
		strong := r.dom.Strong()
		deadline := time.Now().Add(settle)
		for time.Until(deadline) > interval {
			if err := sleep(ctx, interval); err != nil {
				return "", "", err
			}
			// The page may be mid-navigation after the submit; failed
			// snapshots just mean it is not ready yet.
			snap, err := p.Snapshot(ctx)
			if err != nil {
				continue
			}
			link, name, ok := strong.Extract(snap)
			if !ok {
				continue
			}
			if cur, _ := p.URL(ctx); cur == before.url && link == before.link {
				continue
			}
			return link, name, nil
		}
		settle = time.Until(deadline)
	}
	if err := sleep(ctx, settle); err != nil {
		return "", "", err
	}
	snap, err := p.Snapshot(ctx)
	if err != nil {
		return "", "", err
	}
	link, name, _ := r.dom.Extract(snap)
	return link, name, nil
}

func (r *Resolver) fail(ctx context.Context, p browser.Page, out Outcome, err error) Outcome {
	r.logger.Warn().Err(err).Msg("resolve failed")
	out.Err = err
	r.capture(ctx, p, &out)
	return out
}

// capture reads title and markup for diagnostics. Errors are ignored.
func (r *Resolver) capture(ctx context.Context, p browser.Page, out *Outcome) {
	if title, err := p.Title(ctx); err == nil {
		out.Title = title
	}
	if html, err := p.HTML(ctx); err == nil {
		out.HTML = html
	}
}

func resolveReference(base, ref string) (string, error) {
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("candidate %q: %w", ref, err)
	}
	if refURL.IsAbs() {
		return refURL.String(), nil
	}
	baseURL, err := url.Parse(base)
	if err != nil || !baseURL.IsAbs() {
		return "", fmt.Errorf("candidate %q is relative and page url %q is unusable", ref, base)
	}
	return baseURL.ResolveReference(refURL).String(), nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
