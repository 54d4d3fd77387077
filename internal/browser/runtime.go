// Package browser owns the Remote Execution Context: a controlled Chrome
// page hosting the messaging web app, driven over the DevTools protocol.
//
// It exposes three primitives and nothing else: evaluate an expression and
// get its value back (inward), expose a host function callable from injected
// script (outward), and block until a predicate over page state holds.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
	"go.uber.org/zap"
)

// Config holds browser configuration.
type Config struct {
	// DebuggerURL attaches to a running Chrome instead of launching one.
	DebuggerURL string

	// Launch is the Chrome binary followed by extra flags.
	Launch []string

	Headless  bool
	AppURL    string
	UserAgent string

	// NavigationTimeout bounds the initial navigation and load wait. Zero
	// means no bound beyond the Start ctx.
	NavigationTimeout time.Duration
}

// Runtime is one connected browser with one page pointed at the app.
type Runtime struct {
	cfg Config
	log *zap.Logger

	mu         sync.Mutex
	browser    *rod.Browser
	page       *rod.Page
	controlURL string
	stops      []func() error
}

// New creates a Runtime. Call Start before anything else.
func New(cfg Config, log *zap.Logger) *Runtime {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runtime{cfg: cfg, log: log}
}

// Start connects to an existing Chrome or launches a new one, then opens the
// app page.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.page != nil {
		return nil
	}

	controlURL := r.cfg.DebuggerURL
	if controlURL == "" && len(r.cfg.Launch) > 0 {
		bin := r.cfg.Launch[0]
		launch := launcher.New().Bin(bin).Headless(r.cfg.Headless)
		for _, rawFlag := range r.cfg.Launch[1:] {
			flagStr := strings.TrimLeft(rawFlag, "-")
			name, val, hasVal := strings.Cut(flagStr, "=")
			if hasVal {
				launch = launch.Set(flags.Flag(name), val)
			} else {
				launch = launch.Set(flags.Flag(name))
			}
		}
		url, err := launch.Launch()
		if err != nil {
			return fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = url
	}

	if controlURL == "" {
		url, err := launcher.New().Headless(r.cfg.Headless).Launch()
		if err != nil {
			return fmt.Errorf("no debugger_url and failed to launch: %w", err)
		}
		controlURL = url
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = browser.Close()
		return fmt.Errorf("create page: %w", err)
	}

	if r.cfg.UserAgent != "" {
		if err := (proto.NetworkSetUserAgentOverride{UserAgent: r.cfg.UserAgent}).Call(page); err != nil {
			r.log.Warn("failed to set user agent", zap.Error(err))
		}
	}

	navCtx := ctx
	if r.cfg.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, r.cfg.NavigationTimeout)
		defer cancel()
	}
	if err := page.Context(navCtx).Navigate(r.cfg.AppURL); err != nil {
		_ = page.Close()
		_ = browser.Close()
		return fmt.Errorf("navigate to %s: %w", r.cfg.AppURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		r.log.Warn("page load wait failed", zap.Error(err))
	}

	r.browser = browser
	r.page = page
	r.controlURL = controlURL
	r.log.Debug("remote execution context started", zap.String("control_url", controlURL))
	return nil
}

// ControlURL returns the WebSocket debugger URL.
func (r *Runtime) ControlURL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.controlURL
}

func (r *Runtime) currentPage() (*rod.Page, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.page == nil {
		return nil, errors.New("browser runtime not started")
	}
	return r.page, nil
}

// Eval evaluates a JS function body inside the page and returns its value.
// Promises are awaited; the caller blocks until the page answers or ctx is
// cancelled. No timeout is imposed here.
func (r *Runtime) Eval(ctx context.Context, js string, args ...interface{}) (gson.JSON, error) {
	page, err := r.currentPage()
	if err != nil {
		return gson.New(nil), err
	}

	res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           js,
		JSArgs:       args,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return gson.New(nil), fmt.Errorf("evaluate in page: %w", err)
	}
	if res == nil {
		return gson.New(nil), nil
	}
	return res.Value, nil
}

// Expose registers a host function callable from injected script as
// window[name](payload). Calls are fire-and-forget from the page's view.
func (r *Runtime) Expose(name string, fn func(gson.JSON)) error {
	page, err := r.currentPage()
	if err != nil {
		return err
	}

	stop, err := page.Expose(name, func(g gson.JSON) (interface{}, error) {
		fn(g)
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("expose %s: %w", name, err)
	}

	r.mu.Lock()
	r.stops = append(r.stops, stop)
	r.mu.Unlock()
	return nil
}

// WaitTruthy blocks until the given predicate evaluates truthy. Unbounded
// except for ctx cancellation.
func (r *Runtime) WaitTruthy(ctx context.Context, js string) error {
	page, err := r.currentPage()
	if err != nil {
		return err
	}
	return page.Context(ctx).Wait(rod.Eval(js))
}

// WaitElement blocks until an element matching the selector exists.
func (r *Runtime) WaitElement(ctx context.Context, selector string) error {
	page, err := r.currentPage()
	if err != nil {
		return err
	}
	_, err = page.Context(ctx).Element(selector)
	return err
}

// Storage returns a flat snapshot of the page's localStorage.
func (r *Runtime) Storage(ctx context.Context) (map[string]string, error) {
	res, err := r.Eval(ctx, snapshotStorageJS)
	if err != nil {
		return nil, err
	}

	raw, err := res.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal storage snapshot: %w", err)
	}
	out := map[string]string{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode storage snapshot: %w", err)
	}
	return out, nil
}

const snapshotStorageJS = `
() => {
	const out = {};
	try {
		for (const key of Object.keys(localStorage)) {
			out[key] = localStorage.getItem(key);
		}
	} catch (e) {}
	return out;
}
`

// Close tears the context down for real: stops exposed bindings, closes the
// page, closes the browser. Idempotent.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, stop := range r.stops {
		_ = stop()
	}
	r.stops = nil

	var err error
	if r.page != nil {
		err = r.page.Close()
		r.page = nil
	}
	if r.browser != nil {
		if cerr := r.browser.Close(); err == nil {
			err = cerr
		}
		r.browser = nil
	}
	r.controlURL = ""
	return err
}
