package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ysmood/gson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// The event bridge: subscribes once per session to the store's change
// notifications (via exposed host bindings) and republishes each as zero or
// one typed events. A buffered channel plus a single dispatch goroutine
// keeps republish order equal to arrival order while never blocking the
// page's side of the binding call.

type notifKind int

const (
	notifMessageAdd notifKind = iota
	notifMessageChange
	notifMessageTypeChange
	notifMessageRemove
	notifMessageAck
	notifAppStateChange
)

type notification struct {
	kind    notifKind
	payload rawRecord
}

// Binding names the listener script calls on window.
const (
	bindMessageAdd     = "onWBMessageAdd"
	bindMessageChange  = "onWBMessageChange"
	bindMessageType    = "onWBMessageTypeChange"
	bindMessageRemove  = "onWBMessageRemove"
	bindMessageAck     = "onWBMessageAck"
	bindAppStateChange = "onWBAppStateChange"
)

const messageTypeRevoked = "revoked"

// registerBindings exposes the outward API: one host binding per
// notification category.
func (c *Client) registerBindings() error {
	bindings := []struct {
		name string
		kind notifKind
	}{
		{bindMessageAdd, notifMessageAdd},
		{bindMessageChange, notifMessageChange},
		{bindMessageType, notifMessageTypeChange},
		{bindMessageRemove, notifMessageRemove},
		{bindMessageAck, notifMessageAck},
		{bindAppStateChange, notifAppStateChange},
	}
	for _, b := range bindings {
		kind := b.kind
		if err := c.rt.Expose(b.name, func(g gson.JSON) {
			c.enqueue(notification{kind: kind, payload: g})
		}); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) enqueue(n notification) {
	select {
	case c.notifCh <- n:
	default:
		// A full buffer means the host stopped draining entirely; dropping
		// with a log beats blocking the page's event loop forever.
		c.log.Warn("notification buffer full, dropping", zap.Int("kind", int(n.kind)))
	}
}

// startDispatch runs the single dispatch goroutine.
func (c *Client) startDispatch(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.dispatchStop = cancel

	group, _ := errgroup.WithContext(ctx)
	c.group = group
	c.group.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case n := <-c.notifCh:
				c.handleNotification(n)
			}
		}
	})
}

// handleNotification republishes one in-page notification. Exported events
// are emitted synchronously, so within a session the external stream
// preserves the page's delivery order.
func (c *Client) handleNotification(n notification) {
	switch n.kind {
	case notifMessageAdd:
		c.onMessageAdd(n.payload)
	case notifMessageChange:
		c.onMessageChange(n.payload)
	case notifMessageTypeChange:
		c.onMessageTypeChange(n.payload)
	case notifMessageRemove:
		c.onMessageRemove(n.payload)
	case notifMessageAck:
		c.onMessageAck(n.payload)
	case notifAppStateChange:
		c.onAppStateChange(n.payload)
	}
}

func (c *Client) onMessageAdd(raw rawRecord) {
	if !raw.Get("isNewMsg").Bool() {
		return
	}
	msg, err := decodeMessage(raw)
	if err != nil {
		c.log.Warn("undecodable message add", zap.Error(err))
		return
	}
	c.events.emit(Event{Kind: EventMessageCreate, Message: msg})
	if !msg.FromMe() {
		c.events.emit(Event{Kind: EventMessageReceived, Message: msg})
	}
}

// onMessageChange caches the record as the "last seen" snapshot. The store
// mutates message objects in place before a revocation fires, so this
// snapshot is the only source of pre-revocation content.
func (c *Client) onMessageChange(raw rawRecord) {
	if raw.Get("type").Str() == messageTypeRevoked {
		return
	}
	c.mu.Lock()
	c.lastSeen = raw
	c.hasLastSeen = true
	c.mu.Unlock()
}

func (c *Client) onMessageTypeChange(raw rawRecord) {
	if raw.Get("type").Str() != messageTypeRevoked {
		return
	}
	msg, err := decodeMessage(raw)
	if err != nil {
		c.log.Warn("undecodable revoked message", zap.Error(err))
		return
	}

	var previous *Message
	c.mu.Lock()
	if c.hasLastSeen && c.lastSeen.Get("id").Get("_serialized").Str() == raw.Get("id").Get("_serialized").Str() {
		if prev, err := decodeMessage(c.lastSeen); err == nil {
			previous = prev
		}
	}
	c.mu.Unlock()

	// previous stays nil when no prior non-revoked change was observed for
	// this id: absent, never guessed.
	c.events.emit(Event{Kind: EventMessageRevokedEveryone, Message: msg, RevokedPrevious: previous})
}

func (c *Client) onMessageRemove(raw rawRecord) {
	if !raw.Get("isNewMsg").Bool() {
		return
	}
	msg, err := decodeMessage(raw)
	if err != nil {
		c.log.Warn("undecodable message remove", zap.Error(err))
		return
	}
	c.events.emit(Event{Kind: EventMessageRemovedByMe, Message: msg})
}

func (c *Client) onMessageAck(raw rawRecord) {
	msg, err := decodeMessage(raw.Get("message"))
	if err != nil {
		c.log.Warn("undecodable message ack", zap.Error(err))
		return
	}
	ack := Ack(raw.Get("ack").Int())
	msg.Ack = ack
	c.events.emit(Event{Kind: EventMessageAck, Message: msg, Ack: ack})
}

func (c *Client) onAppStateChange(raw rawRecord) {
	state := ConnectionState(raw.Get("state").Str())
	c.setState(state)
	c.events.emit(Event{Kind: EventStateChanged, State: state})

	if state.Terminal() {
		c.log.Info("terminal connection state", zap.String("state", string(state)))
		c.events.emit(Event{Kind: EventDisconnected, State: state})
		// Teardown must not run on the dispatch goroutine it would wait on.
		go func() {
			if err := c.Destroy(context.Background()); err != nil {
				c.log.Warn("teardown after disconnect failed", zap.Error(err))
			}
		}()
	}
}

func decodeMessage(raw rawRecord) (*Message, error) {
	data, err := raw.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal message record: %w", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode message record: %w", err)
	}
	return &msg, nil
}
