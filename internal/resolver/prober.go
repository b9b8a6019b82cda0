package resolver

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"seedlink/internal/browser"
	"seedlink/internal/extract"
)

var errNoVariantLink = errors.New("no link on variant page")

// Probe visits every variant of fileID concurrently. A failing variant only
// nulls its own entry.
func (r *Resolver) Probe(ctx context.Context, sess browser.Session, fileID string) Links {
	variants := VariantURLs(r.cfg.HostOrigin, fileID)
	found := make([]*string, len(variants))

	var g errgroup.Group
	g.SetLimit(len(variants))
	for i, v := range variants {
		g.Go(func() error {
			link, err := r.probeVariant(ctx, sess, v.URL)
			if err != nil {
				r.logger.Debug().Err(err).Str("variant", v.Label).Str("url", v.URL).Msg("variant probe failed")
				return nil
			}
			found[i] = &link
			return nil
		})
	}
	_ = g.Wait()

	links := make(Links, len(variants))
	for i, v := range variants {
		links[v.Label] = found[i]
	}
	return links
}

func (r *Resolver) probeVariant(ctx context.Context, sess browser.Session, target string) (string, error) {
	p, err := sess.NewPage(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = p.Close() }()

	if err := p.Navigate(ctx, target, r.cfg.VariantTimeout.Std()); err != nil {
		return "", err
	}
	if err := sleep(ctx, r.cfg.VariantSettleDelay.Std()); err != nil {
		return "", err
	}
	href, ok, err := p.FirstAnchorURL(ctx)
	if err != nil {
		return "", err
	}
	if ok {
		return href, nil
	}
	html, err := p.HTML(ctx)
	if err != nil {
		return "", err
	}
	if link, ok := extract.ExtractMarkup(html, r.domain); ok {
		return link, nil
	}
	return "", errNoVariantLink
}
