package resolver

import (
	"context"
	"errors"
	"sync"
	"time"

	"seedlink/internal/browser"
	"seedlink/internal/extract"
)

// fakeDoc describes what a fake page shows after navigating to a URL.
type fakeDoc struct {
	navErr   error
	hang     bool
	landOn   string
	snapshot *extract.Snapshot
	anchor   string
	html     string
	title    string
	// barrier, when set, is waited on during navigation.
	barrier *barrier
	// submitted replaces snapshot once afterSubmit has passed since Submit.
	submitted   *extract.Snapshot
	afterSubmit time.Duration
}

type barrier struct {
	wg sync.WaitGroup
}

func newBarrier(n int) *barrier {
	b := &barrier{}
	b.wg.Add(n)
	return b
}

// arrive blocks until n callers arrived or ctx ends.
func (b *barrier) arrive(ctx context.Context) error {
	b.wg.Done()
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type fakeSession struct {
	mu         sync.Mutex
	docs       map[string]fakeDoc
	navigated  []string
	submitted  []string
	pagesOpen  int
	pagesMade  int
	closeCalls int
}

func newFakeSession(docs map[string]fakeDoc) *fakeSession {
	return &fakeSession{docs: docs}
}

func (s *fakeSession) NewPage(context.Context) (browser.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pagesOpen++
	s.pagesMade++
	return &fakePage{s: s}, nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	return nil
}

func (s *fakeSession) visited(u string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.navigated {
		if v == u {
			return true
		}
	}
	return false
}

type fakePage struct {
	s      *fakeSession
	cur    string
	doc    fakeDoc
	closed bool

	mu          sync.Mutex
	submittedAt time.Time
}

func (p *fakePage) Navigate(ctx context.Context, u string, timeout time.Duration) error {
	p.s.mu.Lock()
	p.s.navigated = append(p.s.navigated, u)
	doc := p.s.docs[u]
	p.s.mu.Unlock()

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if doc.barrier != nil {
		if err := doc.barrier.arrive(tctx); err != nil {
			return err
		}
	}
	if doc.hang {
		<-tctx.Done()
		return tctx.Err()
	}
	if doc.navErr != nil {
		return doc.navErr
	}
	p.cur = u
	if doc.landOn != "" {
		p.cur = doc.landOn
	}
	p.doc = doc
	return nil
}

func (p *fakePage) Submit(_ context.Context, formID string) {
	p.s.mu.Lock()
	p.s.submitted = append(p.s.submitted, formID)
	p.s.mu.Unlock()
	p.mu.Lock()
	p.submittedAt = time.Now()
	p.mu.Unlock()
}

func (p *fakePage) Snapshot(context.Context) (*extract.Snapshot, error) {
	p.mu.Lock()
	at := p.submittedAt
	p.mu.Unlock()
	if p.doc.submitted != nil && !at.IsZero() && time.Since(at) >= p.doc.afterSubmit {
		return p.doc.submitted, nil
	}
	if p.doc.snapshot == nil {
		return &extract.Snapshot{HTML: p.doc.html}, nil
	}
	return p.doc.snapshot, nil
}

func (p *fakePage) FirstAnchorURL(context.Context) (string, bool, error) {
	return p.doc.anchor, p.doc.anchor != "", nil
}

func (p *fakePage) URL(context.Context) (string, error) {
	if p.cur == "" {
		return "", errors.New("no document")
	}
	return p.cur, nil
}

func (p *fakePage) Title(context.Context) (string, error) { return p.doc.title, nil }

func (p *fakePage) HTML(context.Context) (string, error) { return p.doc.html, nil }

func (p *fakePage) Close() error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if !p.closed {
		p.closed = true
		p.s.pagesOpen--
	}
	return nil
}

type fakeLauncher struct {
	mu       sync.Mutex
	session  *fakeSession
	err      error
	launches int
}

func (l *fakeLauncher) Launch(context.Context) (browser.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launches++
	if l.err != nil {
		return nil, l.err
	}
	return l.session, nil
}
