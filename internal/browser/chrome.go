package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"

	"seedlink/internal/extract"
	"seedlink/internal/logging"
)

// captureTimeout bounds reads of page state after navigation has finished or
// failed.
const captureTimeout = 5 * time.Second

// Options configures Chrome.
type Options struct {
	// Proxy is scheme://[user:pass@]host:port; empty disables proxying.
	Proxy     string
	UserAgent string
	ExecPath  string
	Headless  bool
	Logger    zerolog.Logger
}

// Chrome launches headless Chrome processes through chromedp.
type Chrome struct {
	allocOpts []chromedp.ExecAllocatorOption
	proxy     *Proxy
	userAgent string
	logger    zerolog.Logger
}

// NewChrome validates opts and prepares the launch flags.
func NewChrome(opts Options) (*Chrome, error) {
	proxy, err := ParseProxy(opts.Proxy)
	if err != nil {
		return nil, err
	}
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-zygote", true),
		chromedp.Flag("disable-web-security", true),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-sync", true),
		chromedp.WindowSize(1280, 720),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if proxy != nil {
		allocOpts = append(allocOpts, chromedp.ProxyServer(proxy.Server))
	}
	if p := strings.TrimSpace(opts.ExecPath); p != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(p))
	}
	return &Chrome{
		allocOpts: allocOpts,
		proxy:     proxy,
		userAgent: opts.UserAgent,
		logger:    opts.Logger,
	}, nil
}

// Launch starts a browser process bound to ctx. Cancelling ctx kills the
// process; Close should still be called.
func (c *Chrome) Launch(ctx context.Context) (Session, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, c.allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logging.Printf(c.logger, zerolog.DebugLevel)),
		chromedp.WithErrorf(logging.Printf(c.logger, zerolog.WarnLevel)),
	)
	s := &chromeSession{
		ctx:         browserCtx,
		cancel:      browserCancel,
		allocCancel: allocCancel,
		chrome:      c,
	}
	// The first Run starts the process and attaches to its initial tab.
	if err := chromedp.Run(browserCtx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	c.logger.Debug().Bool("proxy", c.proxy != nil).Msg("browser started")
	return s, nil
}

type chromeSession struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	chrome      *Chrome

	closeOnce sync.Once
	closeErr  error
}

func (s *chromeSession) NewPage(ctx context.Context) (Page, error) {
	tabCtx, cancel := chromedp.NewContext(s.ctx)
	p := &chromePage{ctx: tabCtx, cancel: cancel, logger: s.chrome.logger}
	if s.chrome.proxy.HasAuth() {
		p.listenProxyAuth(s.chrome.proxy)
	}

	// The target's event loop lives as long as the context of the first Run,
	// so the tab is created on tabCtx itself and the wait is bounded here.
	runCtx, stop := p.bind(ctx, captureTimeout)
	defer stop()
	if err := awaitRun(runCtx, func() error { return chromedp.Run(tabCtx) }); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("open page: %w", err)
	}
	if err := chromedp.Run(runCtx, p.setup(s.chrome)...); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("open page: %w", err)
	}
	return p, nil
}

// awaitRun waits for run until ctx ends. On ctx's end run keeps going; the
// caller is expected to cancel whatever it works on.
func awaitRun(ctx context.Context, run func() error) error {
	done := make(chan error, 1)
	go func() { done <- run() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close shuts the browser down. Only the first call does anything.
func (s *chromeSession) Close() error {
	s.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(s.ctx, captureTimeout)
		defer cancel()
		err := chromedp.Cancel(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.closeErr = err
		}
		s.cancel()
		s.allocCancel()
	})
	return s.closeErr
}

type chromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger zerolog.Logger

	closeOnce sync.Once
	closeErr  error
}

const stealthScript = `(() => {
	Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
	Object.defineProperty(navigator, 'languages', {get: () => ['en-US', 'en']});
	Object.defineProperty(navigator, 'plugins', {get: () => [1, 2, 3]});
	window.chrome = window.chrome || {runtime: {}};
})();`

func (p *chromePage) setup(c *Chrome) []chromedp.Action {
	actions := []chromedp.Action{
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
	}
	if c.userAgent != "" {
		ua := c.userAgent
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			return emulation.SetUserAgentOverride(ua).WithAcceptLanguage("en-US,en;q=0.9").Do(ctx)
		}))
	}
	if c.proxy.HasAuth() {
		actions = append(actions, fetch.Enable().WithHandleAuthRequests(true))
	}
	return actions
}

// listenProxyAuth answers proxy auth challenges. With the Fetch domain
// enabled every request is paused and has to be continued explicitly.
func (p *chromePage) listenProxyAuth(proxy *Proxy) {
	chromedp.ListenTarget(p.ctx, func(ev any) {
		switch e := ev.(type) {
		case *fetch.EventRequestPaused:
			go func() {
				if err := chromedp.Run(p.ctx, fetch.ContinueRequest(e.RequestID)); err != nil {
					p.logger.Debug().Err(err).Msg("continue paused request")
				}
			}()
		case *fetch.EventAuthRequired:
			go func() {
				resp := &fetch.AuthChallengeResponse{
					Response: fetch.AuthChallengeResponseResponseProvideCredentials,
					Username: proxy.Username,
					Password: proxy.Password,
				}
				if err := chromedp.Run(p.ctx, fetch.ContinueWithAuth(e.RequestID, resp)); err != nil {
					p.logger.Debug().Err(err).Msg("answer proxy auth")
				}
			}()
		}
	})
}

// bind derives a run context from the tab that also ends when the caller's
// ctx does, optionally with a timeout.
func (p *chromePage) bind(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(p.ctx)
	stop := context.AfterFunc(ctx, cancel)
	if timeout <= 0 {
		return runCtx, func() {
			stop()
			cancel()
		}
	}
	timed, cancelTimeout := context.WithTimeout(runCtx, timeout)
	return timed, func() {
		cancelTimeout()
		stop()
		cancel()
	}
}

func (p *chromePage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	runCtx, stop := p.bind(ctx, timeout)
	defer stop()
	err := chromedp.Run(runCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, _, errText, _, err := page.Navigate(url).Do(ctx)
			if err != nil {
				return err
			}
			if errText != "" {
				return errors.New(errText)
			}
			return nil
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

const submitScript = `(() => {
	const f = document.getElementById(%q);
	if (f && typeof f.submit === 'function') { f.submit(); return true; }
	return false;
})()`

func (p *chromePage) Submit(ctx context.Context, formID string) {
	runCtx, stop := p.bind(ctx, captureTimeout)
	defer stop()
	var submitted bool
	if err := chromedp.Run(runCtx, chromedp.Evaluate(fmt.Sprintf(submitScript, formID), &submitted)); err != nil {
		p.logger.Debug().Err(err).Str("form", formID).Msg("form submit skipped")
		return
	}
	if submitted {
		p.logger.Debug().Str("form", formID).Msg("form submitted")
	}
}

func (p *chromePage) Snapshot(ctx context.Context) (*extract.Snapshot, error) {
	runCtx, stop := p.bind(ctx, captureTimeout)
	defer stop()
	var snap extract.Snapshot
	if err := chromedp.Run(runCtx, chromedp.Evaluate(extract.SnapshotScript, &snap)); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return &snap, nil
}

const firstAnchorScript = `(() => {
	const a = document.querySelector('a[href]');
	return a ? a.href : '';
})()`

func (p *chromePage) FirstAnchorURL(ctx context.Context) (string, bool, error) {
	runCtx, stop := p.bind(ctx, captureTimeout)
	defer stop()
	var href string
	if err := chromedp.Run(runCtx, chromedp.Evaluate(firstAnchorScript, &href)); err != nil {
		return "", false, fmt.Errorf("first anchor: %w", err)
	}
	return href, href != "", nil
}

func (p *chromePage) URL(ctx context.Context) (string, error) {
	runCtx, stop := p.bind(ctx, captureTimeout)
	defer stop()
	var u string
	if err := chromedp.Run(runCtx, chromedp.Location(&u)); err != nil {
		return "", fmt.Errorf("location: %w", err)
	}
	return u, nil
}

func (p *chromePage) Title(ctx context.Context) (string, error) {
	runCtx, stop := p.bind(ctx, captureTimeout)
	defer stop()
	var title string
	if err := chromedp.Run(runCtx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("title: %w", err)
	}
	return title, nil
}

func (p *chromePage) HTML(ctx context.Context) (string, error) {
	runCtx, stop := p.bind(ctx, captureTimeout)
	defer stop()
	var html string
	expr := `document.documentElement ? document.documentElement.outerHTML : ''`
	if err := chromedp.Run(runCtx, chromedp.Evaluate(expr, &html)); err != nil {
		return "", fmt.Errorf("outer html: %w", err)
	}
	return html, nil
}

func (p *chromePage) Close() error {
	p.closeOnce.Do(func() {
		err := chromedp.Cancel(p.ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			p.closeErr = err
		}
		p.cancel()
	})
	return p.closeErr
}
