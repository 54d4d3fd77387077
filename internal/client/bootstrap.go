package client

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"wabridge/internal/inject"
)

// Initialize boots the injected session. Steps, in order:
//
//  1. run the store-exposure script; failures are logged and swallowed,
//     the app's internal layout is not stable across versions;
//  2. snapshot localStorage, capture the Session tokens, emit authenticated;
//  3. wait (unbounded) until the store global is confirmed present;
//  4. run the helper-installation pass;
//  5. fetch the connection descriptor;
//  6. wire the event bridge and emit ready.
//
// Any error after step 1 aborts initialization and leaves the client
// unusable; retry and backoff belong to the caller.
func (c *Client) Initialize(ctx context.Context) error {
	if _, err := c.rt.Eval(ctx, inject.ExposeStore); err != nil {
		c.log.Warn("store exposure script failed, continuing", zap.Error(err))
	}

	session, err := c.captureSession(ctx)
	if err != nil {
		return fmt.Errorf("capture session: %w", err)
	}
	c.mu.Lock()
	c.session = session
	c.mu.Unlock()
	c.events.emit(Event{Kind: EventAuthenticated, Session: session})

	// Giving up here would leave the client unusable anyway, so the wait is
	// deliberately unbounded; cancel ctx to abort.
	if err := c.rt.WaitTruthy(ctx, inject.StoreReady); err != nil {
		return fmt.Errorf("wait for store global: %w", err)
	}

	if _, err := c.rt.Eval(ctx, inject.Helpers); err != nil {
		return fmt.Errorf("install helpers: %w", err)
	}

	info, err := c.fetchClientInfo(ctx)
	if err != nil {
		return fmt.Errorf("fetch connection descriptor: %w", err)
	}
	c.mu.Lock()
	c.info = info
	c.mu.Unlock()

	if err := c.registerBindings(); err != nil {
		return fmt.Errorf("register event bindings: %w", err)
	}
	if _, err := c.rt.Eval(ctx, inject.BindListeners); err != nil {
		return fmt.Errorf("bind store listeners: %w", err)
	}
	c.startDispatch(ctx)

	c.setReady(true)
	c.log.Info("client ready", zap.String("pushname", info.Pushname))
	c.events.emit(Event{Kind: EventReady})
	return nil
}

// captureSession reads the authentication tokens out of localStorage. Runs
// before the store is confirmed ready on purpose: the tokens are persisted
// by the app the moment pairing succeeds.
func (c *Client) captureSession(ctx context.Context) (*Session, error) {
	storage, err := c.rt.Storage(ctx)
	if err != nil {
		return nil, err
	}
	return &Session{
		BrowserID:    storage[storageKeyBrowserID],
		SecretBundle: storage[storageKeySecretBundle],
		Token1:       storage[storageKeyToken1],
		Token2:       storage[storageKeyToken2],
	}, nil
}

func (c *Client) fetchClientInfo(ctx context.Context) (*ClientInfo, error) {
	res, err := c.rt.Eval(ctx, inject.SerializeConn)
	if err != nil {
		return nil, err
	}
	raw, err := res.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal descriptor: %w", err)
	}
	var info ClientInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("decode descriptor: %w", err)
	}
	return &info, nil
}

// RestoreSession writes previously captured tokens back into localStorage.
// Call before the app finishes booting (i.e. right after navigation) so the
// app resumes the session instead of showing the pairing screen.
func (c *Client) RestoreSession(ctx context.Context, session *Session) error {
	if session == nil {
		return fmt.Errorf("nil session")
	}
	snapshot := map[string]string{
		storageKeyBrowserID:    session.BrowserID,
		storageKeySecretBundle: session.SecretBundle,
		storageKeyToken1:       session.Token1,
		storageKeyToken2:       session.Token2,
	}
	if _, err := c.rt.Eval(ctx, inject.RestoreStorage, snapshot); err != nil {
		return fmt.Errorf("restore session storage: %w", err)
	}
	return nil
}
