package client

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/ysmood/gson"
	"go.uber.org/zap/zaptest"
)

// evalCall records one inward evaluation.
type evalCall struct {
	js   string
	args []interface{}
}

// fakeEvaluator is an in-memory Remote Execution Context. Eval results come
// from the handler func; exposed bindings are callable from tests to inject
// notifications.
type fakeEvaluator struct {
	mu      sync.Mutex
	calls   []evalCall
	waits   []string
	elems   []string
	exposed map[string]func(gson.JSON)
	closed  bool

	handler    func(js string, args []interface{}) (gson.JSON, error)
	storage    map[string]string
	storageErr error
	waitErr    error
	exposeErr  error
}

func (f *fakeEvaluator) Eval(ctx context.Context, js string, args ...interface{}) (gson.JSON, error) {
	f.mu.Lock()
	f.calls = append(f.calls, evalCall{js: js, args: args})
	handler := f.handler
	f.mu.Unlock()
	if handler != nil {
		return handler(js, args)
	}
	return gson.New(nil), nil
}

func (f *fakeEvaluator) Expose(name string, fn func(gson.JSON)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.exposeErr != nil {
		return f.exposeErr
	}
	if f.exposed == nil {
		f.exposed = make(map[string]func(gson.JSON))
	}
	f.exposed[name] = fn
	return nil
}

func (f *fakeEvaluator) WaitTruthy(ctx context.Context, js string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waits = append(f.waits, js)
	return f.waitErr
}

func (f *fakeEvaluator) WaitElement(ctx context.Context, selector string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.elems = append(f.elems, selector)
	return nil
}

func (f *fakeEvaluator) Storage(ctx context.Context) (map[string]string, error) {
	if f.storageErr != nil {
		return nil, f.storageErr
	}
	if f.storage == nil {
		return map[string]string{}, nil
	}
	return f.storage, nil
}

func (f *fakeEvaluator) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeEvaluator) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeEvaluator) callsMatching(substr string) []evalCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []evalCall
	for _, c := range f.calls {
		if strings.Contains(c.js, substr) {
			out = append(out, c)
		}
	}
	return out
}

// eventRecorder collects every emitted event in order.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func (r *eventRecorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

var allEventKinds = []EventKind{
	EventAuthenticated,
	EventReady,
	EventMessageCreate,
	EventMessageReceived,
	EventMessageRevokedEveryone,
	EventMessageRemovedByMe,
	EventMessageAck,
	EventStateChanged,
	EventDisconnected,
}

// newTestClient wires a client over a fake evaluator with every event kind
// recorded.
func newTestClient(t *testing.T, fake *fakeEvaluator) (*Client, *eventRecorder) {
	t.Helper()
	c := New(fake, Options{ID: "test", DefaultSendSeen: true}, zaptest.NewLogger(t))
	rec := &eventRecorder{}
	for _, kind := range allEventKinds {
		c.On(kind, rec.record)
	}
	return c, rec
}

// msgRecord builds a serialized message record the way the injection layer
// produces them.
func msgRecord(id string, fromMe, isNew bool, msgType, body string) gson.JSON {
	serialized := "false_99@c.us_" + id
	if fromMe {
		serialized = "true_99@c.us_" + id
	}
	return gson.New(map[string]interface{}{
		"id": map[string]interface{}{
			"fromMe":      fromMe,
			"remote":      "99@c.us",
			"id":          id,
			"_serialized": serialized,
		},
		"ack":      1,
		"body":     body,
		"type":     msgType,
		"t":        1700000000,
		"from":     "99@c.us",
		"to":       "me@c.us",
		"isNewMsg": isNew,
	})
}

func stateRecord(state string) gson.JSON {
	return gson.New(map[string]interface{}{"state": state})
}

func ackRecord(msg gson.JSON, ack int) gson.JSON {
	return gson.New(map[string]interface{}{
		"message": msg.Val(),
		"ack":     ack,
	})
}
