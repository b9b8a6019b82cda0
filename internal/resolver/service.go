package resolver

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"seedlink/internal/browser"
	"seedlink/internal/config"
)

// Result is a resolved file and its download links.
type Result struct {
	FinalURL string
	FileID   string
	Links    Links
	// Strategy names the heuristic that found the redirect.
	Strategy string
}

// Service runs one browser session per GetLink call.
type Service struct {
	launcher browser.Launcher
	resolver *Resolver
	slots    *semaphore.Weighted
	logger   zerolog.Logger
}

// NewService bounds concurrent browser sessions to cfg.MaxSessions.
func NewService(launcher browser.Launcher, cfg config.Config, logger zerolog.Logger) *Service {
	n := int64(cfg.MaxSessions)
	if n <= 0 {
		n = 1
	}
	return &Service{
		launcher: launcher,
		resolver: NewResolver(cfg.Resolver, logger),
		slots:    semaphore.NewWeighted(n),
		logger:   logger,
	}
}

// GetLink resolves startURL and probes the download variants of the file it
// lands on. It returns *NotFoundError when the redirect cannot be resolved and
// an error wrapping ErrLaunch when no browser could be started.
func (s *Service) GetLink(ctx context.Context, startURL string) (*Result, error) {
	if err := s.slots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("wait for browser slot: %w", err)
	}
	defer s.slots.Release(1)

	start := time.Now()
	sess, err := s.launcher.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLaunch, err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("browser close")
		}
	}()

	out := s.resolver.Resolve(ctx, sess, startURL)
	if !out.Found() {
		return nil, &NotFoundError{Title: out.Title, HTML: out.HTML, Err: out.Err}
	}

	id := FileID(out.FinalURL)
	links := s.resolver.Probe(ctx, sess, id)
	s.logger.Info().
		Str("url", startURL).
		Str("final_url", out.FinalURL).
		Str("file_id", id).
		Str("strategy", out.Strategy).
		Dur("took", time.Since(start)).
		Msg("link resolved")
	return &Result{
		FinalURL: out.FinalURL,
		FileID:   id,
		Links:    links,
		Strategy: out.Strategy,
	}, nil
}
