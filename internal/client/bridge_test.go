package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageAddIgnoresNonNew(t *testing.T) {
	c, rec := newTestClient(t, &fakeEvaluator{})

	c.handleNotification(notification{kind: notifMessageAdd, payload: msgRecord("m1", false, false, "chat", "old")})

	assert.Empty(t, rec.kinds(), "non-new messages must not produce events")
}

func TestMessageAddFromLocalUser(t *testing.T) {
	c, rec := newTestClient(t, &fakeEvaluator{})

	c.handleNotification(notification{kind: notifMessageAdd, payload: msgRecord("m1", true, true, "chat", "hi")})

	require.Equal(t, []EventKind{EventMessageCreate}, rec.kinds(),
		"own messages fire message_create but not message_received")
}

func TestMessageAddIncoming(t *testing.T) {
	c, rec := newTestClient(t, &fakeEvaluator{})

	c.handleNotification(notification{kind: notifMessageAdd, payload: msgRecord("m1", false, true, "chat", "hello")})

	require.Equal(t, []EventKind{EventMessageCreate, EventMessageReceived}, rec.kinds())
	events := rec.all()
	assert.Equal(t, "hello", events[0].Message.Body)
	assert.Equal(t, events[0].Message, events[1].Message)
}

func TestGenericChangeCachesWithoutEmitting(t *testing.T) {
	c, rec := newTestClient(t, &fakeEvaluator{})

	c.handleNotification(notification{kind: notifMessageChange, payload: msgRecord("m1", false, true, "chat", "original")})

	assert.Empty(t, rec.kinds())
	c.mu.Lock()
	defer c.mu.Unlock()
	require.True(t, c.hasLastSeen)
	assert.Equal(t, "original", c.lastSeen.Get("body").Str())
}

func TestRevocationWithCachedPrevious(t *testing.T) {
	c, rec := newTestClient(t, &fakeEvaluator{})

	c.handleNotification(notification{kind: notifMessageChange, payload: msgRecord("m1", false, true, "chat", "secret")})
	c.handleNotification(notification{kind: notifMessageTypeChange, payload: msgRecord("m1", false, true, "revoked", "")})

	require.Equal(t, []EventKind{EventMessageRevokedEveryone}, rec.kinds())
	ev := rec.all()[0]
	require.NotNil(t, ev.RevokedPrevious, "previous state must be reconstructed from the cache")
	assert.Equal(t, "secret", ev.RevokedPrevious.Body)
	assert.Equal(t, "revoked", ev.Message.Type)
}

func TestRevocationWithoutPriorChange(t *testing.T) {
	c, rec := newTestClient(t, &fakeEvaluator{})

	c.handleNotification(notification{kind: notifMessageTypeChange, payload: msgRecord("m1", false, true, "revoked", "")})

	require.Equal(t, []EventKind{EventMessageRevokedEveryone}, rec.kinds())
	assert.Nil(t, rec.all()[0].RevokedPrevious, "previous state must be absent, not guessed")
}

func TestRevocationCacheIdentifierMismatch(t *testing.T) {
	c, rec := newTestClient(t, &fakeEvaluator{})

	// A different message was the last to change.
	c.handleNotification(notification{kind: notifMessageChange, payload: msgRecord("other", false, true, "chat", "unrelated")})
	c.handleNotification(notification{kind: notifMessageTypeChange, payload: msgRecord("m1", false, true, "revoked", "")})

	require.Len(t, rec.all(), 1)
	assert.Nil(t, rec.all()[0].RevokedPrevious)
}

func TestRevokedChangeDoesNotOverwriteCache(t *testing.T) {
	c, _ := newTestClient(t, &fakeEvaluator{})

	c.handleNotification(notification{kind: notifMessageChange, payload: msgRecord("m1", false, true, "chat", "keep me")})
	// The in-place mutation means a revoked record can also arrive on the
	// generic change stream; it must not clobber the snapshot.
	c.handleNotification(notification{kind: notifMessageChange, payload: msgRecord("m1", false, true, "revoked", "")})

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, "keep me", c.lastSeen.Get("body").Str())
}

func TestMessageRemoveIgnoresNonNew(t *testing.T) {
	c, rec := newTestClient(t, &fakeEvaluator{})

	c.handleNotification(notification{kind: notifMessageRemove, payload: msgRecord("m1", true, false, "chat", "gone")})

	assert.Empty(t, rec.kinds())
}

func TestMessageRemoveEmits(t *testing.T) {
	c, rec := newTestClient(t, &fakeEvaluator{})

	c.handleNotification(notification{kind: notifMessageRemove, payload: msgRecord("m1", true, true, "chat", "gone")})

	require.Equal(t, []EventKind{EventMessageRemovedByMe}, rec.kinds())
}

func TestAckNotificationsAreNotDeduplicated(t *testing.T) {
	c, rec := newTestClient(t, &fakeEvaluator{})

	payload := ackRecord(msgRecord("m1", true, true, "chat", "hi"), int(AckRead))
	c.handleNotification(notification{kind: notifMessageAck, payload: payload})
	c.handleNotification(notification{kind: notifMessageAck, payload: payload})

	require.Equal(t, []EventKind{EventMessageAck, EventMessageAck}, rec.kinds())
	events := rec.all()
	assert.Equal(t, events[0].Ack, events[1].Ack)
	assert.Equal(t, events[0].Message, events[1].Message)
	assert.Equal(t, AckRead, events[0].Ack)
}

func TestAcceptedStatesOnlyChangeState(t *testing.T) {
	for _, state := range []ConnectionState{StateConnected, StateOpening, StatePairing, StateTimeout} {
		t.Run(string(state), func(t *testing.T) {
			fake := &fakeEvaluator{}
			c, rec := newTestClient(t, fake)

			c.handleNotification(notification{kind: notifAppStateChange, payload: stateRecord(string(state))})

			require.Equal(t, []EventKind{EventStateChanged}, rec.kinds())
			assert.Equal(t, state, c.State())
			assert.False(t, fake.isClosed(), "accepted states must not tear the client down")
		})
	}
}

func TestTerminalStateDisconnectsAndTearsDown(t *testing.T) {
	fake := &fakeEvaluator{}
	c, rec := newTestClient(t, fake)

	c.handleNotification(notification{kind: notifAppStateChange, payload: stateRecord("CONFLICT")})

	require.Equal(t, []EventKind{EventStateChanged, EventDisconnected}, rec.kinds(),
		"state_changed must precede disconnected")
	assert.Equal(t, ConnectionState("CONFLICT"), rec.all()[1].State)

	require.Eventually(t, fake.isClosed, time.Second, 5*time.Millisecond,
		"terminal state must destroy the client")
}

func TestTeardownClearsLastSeenCache(t *testing.T) {
	fake := &fakeEvaluator{}
	c, _ := newTestClient(t, fake)

	c.handleNotification(notification{kind: notifMessageChange, payload: msgRecord("m1", false, true, "chat", "cached")})
	require.NoError(t, c.Destroy(context.Background()))

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.False(t, c.hasLastSeen)
}

func TestDispatchPreservesArrivalOrder(t *testing.T) {
	fake := &fakeEvaluator{}
	c, rec := newTestClient(t, fake)

	ctx := context.Background()
	c.startDispatch(ctx)
	defer func() { require.NoError(t, c.Destroy(ctx)) }()

	for i := 0; i < 20; i++ {
		fromMe := i%2 == 0
		c.enqueue(notification{kind: notifMessageAdd, payload: msgRecord(string(rune('a'+i)), fromMe, true, "chat", "n")})
	}

	require.Eventually(t, func() bool { return len(rec.all()) == 30 }, time.Second, 5*time.Millisecond)

	// 10 own messages -> create only; 10 incoming -> create + received,
	// received always directly after its create.
	kinds := rec.kinds()
	for i, k := range kinds {
		if k == EventMessageReceived {
			require.Equal(t, EventMessageCreate, kinds[i-1])
		}
	}
}

func TestHandlerPanicDoesNotStarveLaterNotifications(t *testing.T) {
	fake := &fakeEvaluator{}
	c, rec := newTestClient(t, fake)

	c.On(EventMessageCreate, func(Event) { panic("host handler bug") })

	c.handleNotification(notification{kind: notifMessageAdd, payload: msgRecord("m1", true, true, "chat", "a")})
	c.handleNotification(notification{kind: notifMessageAdd, payload: msgRecord("m2", true, true, "chat", "b")})

	require.Equal(t, []EventKind{EventMessageCreate, EventMessageCreate}, rec.kinds(),
		"a panicking handler must not block other handlers or later notifications")
}
