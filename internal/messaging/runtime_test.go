package messaging

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRuntime(t *testing.T, opts Options) (*Runtime, *fakeFactory, *countingNotifier) {
	t.Helper()
	ff := &fakeFactory{}
	n := &countingNotifier{}
	if opts.QoS == 0 {
		opts.QoS = 1
	}
	return New(opts, ff.New, n), ff, n
}

func startConnected(t *testing.T, r *Runtime, ff *fakeFactory) *fakeTransport {
	t.Helper()
	require.NoError(t, r.Start())
	ft := ff.last()
	require.NotNil(t, ft)
	ft.emit(Event{Kind: EventConnected})
	require.True(t, r.IsConnected())
	return ft
}

func TestConfigure(t *testing.T) {
	r, _, _ := newTestRuntime(t, Options{})

	assert.ErrorIs(t, r.Configure("", 1883, "alice"), ErrInvalidConfig)

	require.NoError(t, r.Configure("broker.local", 0, "alice"))
	st := r.Status()
	assert.Equal(t, DefaultPort, st.Port)
	assert.Equal(t, "chat/messages/alice", r.PrimaryTopic())

	// Empty principal keeps the previous one.
	require.NoError(t, r.Configure("broker2.local", 8883, ""))
	st = r.Status()
	assert.Equal(t, "broker2.local", st.Host)
	assert.Equal(t, 8883, st.Port)
	assert.Equal(t, "alice", st.PrincipalID)
	assert.Equal(t, "chat/messages/alice", r.PrimaryTopic())
}

func TestPrimaryTopicEmptyUntilPrincipal(t *testing.T) {
	r, _, _ := newTestRuntime(t, Options{})
	require.NoError(t, r.Configure("broker.local", 1883, ""))
	assert.Empty(t, r.PrimaryTopic())
}

func TestStart_Errors(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		r, ff, _ := newTestRuntime(t, Options{})
		assert.ErrorIs(t, r.Start(), ErrNotConfigured)
		assert.False(t, r.IsRunning())
		assert.Zero(t, ff.count())
	})

	t.Run("factory failure", func(t *testing.T) {
		r, ff, _ := newTestRuntime(t, Options{})
		ff.factoryErr = errors.New("no memory")
		require.NoError(t, r.Configure("broker.local", 1883, "alice"))

		err := r.Start()
		assert.ErrorIs(t, err, ErrSessionOpen)
		assert.False(t, r.IsRunning())
	})

	t.Run("connect failure", func(t *testing.T) {
		r, ff, _ := newTestRuntime(t, Options{})
		ff.connErr = errors.New("refused")
		require.NoError(t, r.Configure("broker.local", 1883, "alice"))

		err := r.Start()
		assert.ErrorIs(t, err, ErrSessionOpen)
		assert.False(t, r.IsRunning())
		assert.True(t, ff.last().isClosed())

		// Caller may retry.
		ff.connErr = nil
		require.NoError(t, r.Start())
		assert.True(t, r.IsRunning())
	})
}

func TestStart_Idempotent(t *testing.T) {
	r, ff, _ := newTestRuntime(t, Options{ClientID: "dev-1", KeepAlive: 30 * time.Second})
	require.NoError(t, r.Configure("broker.local", 1883, "alice"))

	require.NoError(t, r.Start())
	require.NoError(t, r.Resume())
	assert.Equal(t, 1, ff.count())
	assert.True(t, r.IsRunning())
	assert.False(t, r.IsConnected(), "connection completes asynchronously")

	cfg := ff.last().cfg
	assert.Equal(t, "broker.local:1883", cfg.Address())
	assert.Equal(t, "dev-1", cfg.ClientID)
	assert.Equal(t, 30*time.Second, cfg.KeepAlive)
}

func TestScenario_PresenceListener(t *testing.T) {
	r, ff, _ := newTestRuntime(t, Options{})
	require.NoError(t, r.Configure("broker.local", 1883, "alice"))
	assert.Equal(t, "chat/messages/alice", r.PrimaryTopic())

	ft := startConnected(t, r, ff)
	assert.Equal(t, []string{"connect", "sub chat/messages/alice"}, ft.calls())

	id, err := r.AddListener("presence/bob")
	require.NoError(t, err)
	assert.Equal(t, 1, id)
	assert.Contains(t, ft.calls(), "sub presence/bob")

	ft.emit(Event{Kind: EventData, Topic: "presence/bob", Payload: []byte("hi")})

	got, ok := r.PopListener(1)
	require.True(t, ok)
	assert.Equal(t, "hi", got)

	_, ok = r.PopListener(1)
	assert.False(t, ok)
}

func TestScenario_PrimaryFIFO(t *testing.T) {
	r, ff, n := newTestRuntime(t, Options{})
	require.NoError(t, r.Configure("broker.local", 1883, "alice"))
	ft := startConnected(t, r, ff)

	for _, p := range []string{"a", "b", "c"} {
		ft.emit(Event{Kind: EventData, Topic: "chat/messages/alice", Payload: []byte(p)})
	}

	for _, want := range []string{"a", "b", "c"} {
		got, ok := r.PopPrimary()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok := r.PopPrimary()
	assert.False(t, ok)
	assert.Equal(t, int32(3), n.n.Load())
}

func TestListenerFIFO_PerListener(t *testing.T) {
	r, ff, n := newTestRuntime(t, Options{})
	require.NoError(t, r.Configure("broker.local", 1883, "alice"))
	ft := startConnected(t, r, ff)

	room, err := r.AddListener("rooms/general")
	require.NoError(t, err)
	dm, err := r.AddListener("rooms/dm")
	require.NoError(t, err)
	assert.Equal(t, room+1, dm, "ids are monotonic")

	for i := 0; i < 10; i++ {
		ft.emit(Event{Kind: EventData, Topic: "rooms/general", Payload: []byte(fmt.Sprintf("g%d", i))})
		ft.emit(Event{Kind: EventData, Topic: "rooms/dm", Payload: []byte(fmt.Sprintf("d%d", i))})
	}

	for i := 0; i < 10; i++ {
		got, ok := r.PopListener(room)
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("g%d", i), got)
	}
	for i := 0; i < 10; i++ {
		got, ok := r.PopListener(dm)
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("d%d", i), got)
	}
	assert.Zero(t, n.n.Load(), "listener data does not wake the notifier")
}

func TestAddThenRemoveDropsData(t *testing.T) {
	r, ff, _ := newTestRuntime(t, Options{})
	require.NoError(t, r.Configure("broker.local", 1883, "alice"))
	ft := startConnected(t, r, ff)

	id, err := r.AddListener("t")
	require.NoError(t, err)
	r.RemoveListener(id)
	assert.Contains(t, ft.calls(), "unsub t")

	ft.emit(Event{Kind: EventData, Topic: "t", Payload: []byte("late")})
	_, ok := r.PopListener(id)
	assert.False(t, ok)
	assert.Empty(t, r.Listeners())

	// Ids are never reused.
	next, err := r.AddListener("t")
	require.NoError(t, err)
	assert.Equal(t, id+1, next)
}

func TestRemoveListener_SharedTopicStaysSubscribed(t *testing.T) {
	r, ff, _ := newTestRuntime(t, Options{})
	require.NoError(t, r.Configure("broker.local", 1883, "alice"))
	ft := startConnected(t, r, ff)

	first, err := r.AddListener("rooms/general")
	require.NoError(t, err)
	second, err := r.AddListener("rooms/general")
	require.NoError(t, err)

	ft.reset()
	r.RemoveListener(first)
	assert.Empty(t, ft.calls(), "topic still used by another listener")

	// Data now goes to the remaining registration.
	ft.emit(Event{Kind: EventData, Topic: "rooms/general", Payload: []byte("x")})
	got, ok := r.PopListener(second)
	require.True(t, ok)
	assert.Equal(t, "x", got)

	r.RemoveListener(second)
	assert.Equal(t, []string{"unsub rooms/general"}, ft.calls())

	// Unknown id is a no-op.
	r.RemoveListener(999)
}

func TestAddListener_Validation(t *testing.T) {
	r, _, _ := newTestRuntime(t, Options{})
	_, err := r.AddListener("")
	assert.ErrorIs(t, err, ErrInvalidConfig)

	// Registering while stopped does not touch the network.
	id, err := r.AddListener("x")
	require.NoError(t, err)
	assert.Equal(t, 1, id)
}

func TestFirstMatchingListenerWins(t *testing.T) {
	r, ff, _ := newTestRuntime(t, Options{})
	require.NoError(t, r.Configure("broker.local", 1883, "alice"))
	ft := startConnected(t, r, ff)

	a, _ := r.AddListener("dup")
	b, _ := r.AddListener("dup")
	ft.emit(Event{Kind: EventData, Topic: "dup", Payload: []byte("1")})

	_, ok := r.PopListener(a)
	assert.True(t, ok)
	_, ok = r.PopListener(b)
	assert.False(t, ok)
}

func TestUnmatchedTopicDropped(t *testing.T) {
	r, ff, n := newTestRuntime(t, Options{})
	require.NoError(t, r.Configure("broker.local", 1883, "alice"))
	ft := startConnected(t, r, ff)

	ft.emit(Event{Kind: EventData, Topic: "chat/messages/bob", Payload: []byte("x")})
	_, ok := r.PopPrimary()
	assert.False(t, ok)
	assert.Zero(t, n.n.Load())
}

func TestPauseResume(t *testing.T) {
	r, ff, _ := newTestRuntime(t, Options{})
	require.NoError(t, r.Configure("broker.local", 1883, "alice"))
	first := startConnected(t, r, ff)

	id, err := r.AddListener("rooms/general")
	require.NoError(t, err)
	first.emit(Event{Kind: EventData, Topic: "chat/messages/alice", Payload: []byte("before")})
	first.emit(Event{Kind: EventData, Topic: "rooms/general", Payload: []byte("room-before")})

	r.Pause()
	assert.False(t, r.IsRunning())
	assert.False(t, r.IsConnected())
	assert.True(t, first.isClosed())
	assert.ErrorIs(t, r.Publish("x", []byte("y"), 1, false), ErrNotConnected)

	// Late events from the torn-down session are ignored.
	first.emit(Event{Kind: EventData, Topic: "chat/messages/alice", Payload: []byte("stale")})
	first.emit(Event{Kind: EventConnected})
	assert.False(t, r.IsConnected())

	require.NoError(t, r.Resume())
	second := ff.last()
	require.NotSame(t, first, second)
	second.emit(Event{Kind: EventConnected})

	assert.Equal(t, []string{"connect", "sub chat/messages/alice", "sub rooms/general"}, second.calls())

	got, ok := r.PopPrimary()
	require.True(t, ok)
	assert.Equal(t, "before", got)
	_, ok = r.PopPrimary()
	assert.False(t, ok, "stale event must not be queued")

	got, ok = r.PopListener(id)
	require.True(t, ok)
	assert.Equal(t, "room-before", got)
}

func TestStopWhenStopped(t *testing.T) {
	r, _, _ := newTestRuntime(t, Options{})
	r.Stop()
	r.Pause()
	assert.False(t, r.IsRunning())
}

func TestDisconnectKeepsQueues(t *testing.T) {
	r, ff, _ := newTestRuntime(t, Options{})
	require.NoError(t, r.Configure("broker.local", 1883, "alice"))
	ft := startConnected(t, r, ff)

	var gotErr error
	r.SetOnDisconnect(func(err error) { gotErr = err })

	ft.emit(Event{Kind: EventData, Topic: "chat/messages/alice", Payload: []byte("kept")})
	ft.emit(Event{Kind: EventDisconnected, Err: errors.New("link down")})

	assert.False(t, r.IsConnected())
	assert.True(t, r.IsRunning(), "session object survives a disconnect")
	assert.EqualError(t, gotErr, "link down")

	got, ok := r.PopPrimary()
	require.True(t, ok)
	assert.Equal(t, "kept", got)
}

func TestPublish(t *testing.T) {
	r, ff, _ := newTestRuntime(t, Options{})
	assert.ErrorIs(t, r.Publish("t", []byte("p"), 0, false), ErrNotConnected)

	require.NoError(t, r.Configure("broker.local", 1883, "alice"))
	require.NoError(t, r.Start())
	ft := ff.last()

	require.NoError(t, r.Publish("out/topic", []byte("p"), 1, false))
	assert.Contains(t, ft.calls(), "pub out/topic p")

	ft.pubErr = errors.New("broker rejected")
	assert.EqualError(t, r.Publish("out/topic", []byte("q"), 1, false), "broker rejected")
}

func TestUpdatePrincipal(t *testing.T) {
	r, ff, _ := newTestRuntime(t, Options{})
	assert.ErrorIs(t, r.UpdatePrincipal(""), ErrInvalidConfig)

	// While stopped only the topic changes.
	require.NoError(t, r.UpdatePrincipal("alice"))
	assert.Equal(t, "chat/messages/alice", r.PrimaryTopic())

	require.NoError(t, r.Configure("broker.local", 1883, ""))
	ft := startConnected(t, r, ff)
	ft.reset()

	require.NoError(t, r.UpdatePrincipal("carol"))
	assert.Equal(t, "chat/messages/carol", r.PrimaryTopic())
	assert.Equal(t, []string{"unsub chat/messages/alice", "sub chat/messages/carol"}, ft.calls())

	ft.emit(Event{Kind: EventData, Topic: "chat/messages/carol", Payload: []byte("hey")})
	got, ok := r.PopPrimary()
	require.True(t, ok)
	assert.Equal(t, "hey", got)

	// Same principal again only re-subscribes.
	ft.reset()
	require.NoError(t, r.UpdatePrincipal("carol"))
	assert.Equal(t, []string{"sub chat/messages/carol"}, ft.calls())
}

func TestBoundedQueueDropsOldest(t *testing.T) {
	r, ff, _ := newTestRuntime(t, Options{QueueLimit: 2})
	require.NoError(t, r.Configure("broker.local", 1883, "alice"))
	ft := startConnected(t, r, ff)

	for _, p := range []string{"1", "2", "3"} {
		ft.emit(Event{Kind: EventData, Topic: "chat/messages/alice", Payload: []byte(p)})
	}

	st := r.Status()
	assert.Equal(t, 2, st.PrimaryPending)
	assert.Equal(t, uint64(1), st.Dropped)

	got, _ := r.PopPrimary()
	assert.Equal(t, "2", got)
	got, _ = r.PopPrimary()
	assert.Equal(t, "3", got)
}

func TestHandleEvent_CurrentSession(t *testing.T) {
	r, ff, _ := newTestRuntime(t, Options{})
	require.NoError(t, r.Configure("broker.local", 1883, "alice"))

	// No session: connected events are ignored.
	r.HandleEvent(Event{Kind: EventConnected})
	assert.False(t, r.IsConnected())

	require.NoError(t, r.Start())
	connected := make(chan struct{}, 1)
	r.SetOnConnect(func() { connected <- struct{}{} })

	r.HandleEvent(Event{Kind: EventConnected})
	assert.True(t, r.IsConnected())
	assert.Equal(t, []string{"connect", "sub chat/messages/alice"}, ff.last().calls())
	select {
	case <-connected:
	default:
		t.Fatal("OnConnect callback not invoked")
	}

	r.HandleEvent(Event{Kind: EventError, Err: errors.New("tls")})
	r.HandleEvent(Event{Kind: EventKind(42)})
}

func TestConcurrentPauseAndPublish(t *testing.T) {
	r, ff, _ := newTestRuntime(t, Options{})
	require.NoError(t, r.Configure("broker.local", 1883, "alice"))
	startConnected(t, r, ff)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				err := r.Publish("t", []byte("x"), 0, false)
				if err != nil && !errors.Is(err, ErrNotConnected) {
					// Closed fake reports its own error; both are clean failures.
					assert.EqualError(t, err, "fake: closed")
				}
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				r.Pause()
				_ = r.Resume() //nolint:errcheck // Racing on purpose
				id, _ := r.AddListener("t")
				r.RemoveListener(id)
				r.PopPrimary()
			}
		}()
	}
	wg.Wait()
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "connected", EventConnected.String())
	assert.Equal(t, "disconnected", EventDisconnected.String())
	assert.Equal(t, "data", EventData.String())
	assert.Equal(t, "error", EventError.String())
	assert.Equal(t, "event(9)", EventKind(9).String())
}

// A connected event that was already dispatched when the session was torn
// down and rebuilt must not mark the new, unacknowledged session connected.
func TestHandleConnected_LateEventAfterRestart(t *testing.T) {
	r, ff, _ := newTestRuntime(t, Options{})
	require.NoError(t, r.Configure("broker.local", 1883, "alice"))

	require.NoError(t, r.Start())
	staleGen := r.generation.Load()
	r.Stop()
	require.NoError(t, r.Start())
	fresh := ff.last()

	r.handleConnected(staleGen)

	assert.False(t, r.IsConnected())
	assert.True(t, r.IsRunning())
	assert.Nil(t, r.connectedTransport())
	assert.NotContains(t, fresh.calls(), "sub chat/messages/alice")

	fresh.emit(Event{Kind: EventConnected})
	assert.True(t, r.IsConnected())
	assert.Contains(t, fresh.calls(), "sub chat/messages/alice")
}

func TestStop_ClearsConnectedAgainstLateDisconnect(t *testing.T) {
	r, ff, _ := newTestRuntime(t, Options{})
	require.NoError(t, r.Configure("broker.local", 1883, "alice"))
	startConnected(t, r, ff)
	staleGen := r.generation.Load()

	r.Stop()
	require.NoError(t, r.Start())
	ff.last().emit(Event{Kind: EventConnected})
	require.True(t, r.IsConnected())

	r.handleDisconnected(staleGen, errors.New("old session lost"))
	assert.True(t, r.IsConnected(), "stale disconnect must not clear the new session")
}
