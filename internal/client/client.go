// Package client implements the core of wabridge: bootstrapping an injected
// session inside the controlled page, republishing the page's object-change
// notifications as a stable typed event stream, and translating host calls
// into in-page evaluations.
package client

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/ysmood/gson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Evaluator is the Remote Execution Context seen from the core: evaluate an
// expression, expose a host binding, wait for a predicate, snapshot storage,
// tear down. *browser.Runtime implements it; tests substitute a fake.
type Evaluator interface {
	Eval(ctx context.Context, js string, args ...interface{}) (gson.JSON, error)
	Expose(name string, fn func(gson.JSON)) error
	WaitTruthy(ctx context.Context, js string) error
	WaitElement(ctx context.Context, selector string) error
	Storage(ctx context.Context) (map[string]string, error)
	Close() error
}

// Options tunes client behavior.
type Options struct {
	// ID identifies this client instance. Defaults to a random UUID.
	ID string

	// DefaultSendSeen marks chats seen before sending unless a send
	// overrides it.
	DefaultSendSeen bool

	// WaitForKeepSignedIn gates destroy on the app's "keep me signed in"
	// marker appearing. A conservative, possibly vestigial pre-teardown
	// step; off by default since real teardown happens regardless.
	WaitForKeepSignedIn bool

	// KeepSignedInSelector locates that marker.
	KeepSignedInSelector string
}

const defaultKeepSignedInSelector = `[data-testid="remember-me-checkbox"]`

// Client drives one messaging session through a Remote Execution Context.
type Client struct {
	id   string
	rt   Evaluator
	log  *zap.Logger
	opts Options

	events *emitter

	mu      sync.Mutex
	session *Session
	info    *ClientInfo
	state   ConnectionState
	ready   bool

	// lastSeen is the single-slot cache of the most recent non-revoked
	// message change, used to reconstruct pre-revocation content. Guarded
	// by mu; the dispatch goroutine is the only writer during a session.
	lastSeen    rawRecord
	hasLastSeen bool

	notifCh      chan notification
	dispatchStop context.CancelFunc
	group        *errgroup.Group

	destroyOnce sync.Once
}

// New creates a client over an already-constructed Evaluator. The Evaluator
// must be started (page open, app loading) before Initialize is called.
func New(rt Evaluator, opts Options, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.KeepSignedInSelector == "" {
		opts.KeepSignedInSelector = defaultKeepSignedInSelector
	}
	return &Client{
		id:      opts.ID,
		rt:      rt,
		log:     log.With(zap.String("client", opts.ID)),
		opts:    opts,
		events:  newEmitter(log),
		state:   StateUnknown,
		notifCh: make(chan notification, 256),
	}
}

// ID returns the client instance identifier.
func (c *Client) ID() string { return c.id }

// On registers a handler for an event kind.
func (c *Client) On(kind EventKind, h Handler) {
	c.events.on(kind, h)
}

// Session returns the captured session tokens, nil before authentication.
func (c *Client) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Info returns the connection descriptor fetched during bootstrap.
func (c *Client) Info() *ClientInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

// State returns the last connection state reported by the page, without
// asking the page. See GetState for the remote query.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s ConnectionState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) isReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

func (c *Client) setReady(ready bool) {
	c.mu.Lock()
	c.ready = ready
	c.mu.Unlock()
}

// Destroy tears the session down: optionally waits for the keep-signed-in
// marker, stops the dispatch loop, clears bridge state, and closes the
// Remote Execution Context for real. Idempotent.
func (c *Client) Destroy(ctx context.Context) error {
	var err error
	c.destroyOnce.Do(func() {
		c.log.Info("destroying client")
		c.setReady(false)

		if c.opts.WaitForKeepSignedIn {
			// The app shows this marker once it considers the session
			// safely parked. Best effort, bounded only by ctx.
			if werr := c.rt.WaitElement(ctx, c.opts.KeepSignedInSelector); werr != nil {
				c.log.Warn("keep-signed-in wait failed", zap.Error(werr))
			}
		}

		if c.dispatchStop != nil {
			c.dispatchStop()
		}
		if c.group != nil {
			_ = c.group.Wait()
		}

		c.mu.Lock()
		c.lastSeen = gson.New(nil)
		c.hasLastSeen = false
		c.mu.Unlock()

		err = c.rt.Close()
	})
	return err
}
