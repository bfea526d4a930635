package reconciler

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmchat/internal/api"
	"dmchat/internal/domain"
	"dmchat/internal/events"
	"dmchat/internal/websocket"
	dmchat_errors "dmchat/pkg/errors"
)

type editCall struct {
	id      int64
	content string
}

type fakeAPI struct {
	mu         sync.Mutex
	history    map[int64][]domain.Message
	historyErr map[int64]error
	gates      map[int64]chan struct{}
	returned   chan int64

	sent    []api.SendMessageInput
	edits   []editCall
	deletes []int64
	sendErr error
	editErr error
	delErr  error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		history:    map[int64][]domain.Message{},
		historyErr: map[int64]error{},
		gates:      map[int64]chan struct{}{},
		returned:   make(chan int64, 16),
	}
}

// gate makes ListMessages for chatID block, ignoring cancellation, until
// the returned func is called.
func (f *fakeAPI) gate(chatID int64) func() {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[chatID] = ch
	f.mu.Unlock()
	return func() { close(ch) }
}

func (f *fakeAPI) ListMessages(_ context.Context, chatID int64) ([]domain.Message, error) {
	f.mu.Lock()
	gate := f.gates[chatID]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	defer func() { f.returned <- chatID }()

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.historyErr[chatID]; err != nil {
		return nil, err
	}
	return append([]domain.Message(nil), f.history[chatID]...), nil
}

func (f *fakeAPI) SendMessage(_ context.Context, in api.SendMessageInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, in)
	return nil
}

func (f *fakeAPI) EditMessage(_ context.Context, id int64, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editErr != nil {
		return f.editErr
	}
	f.edits = append(f.edits, editCall{id: id, content: content})
	return nil
}

func (f *fakeAPI) DeleteMessage(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.delErr != nil {
		return f.delErr
	}
	f.deletes = append(f.deletes, id)
	return nil
}

type fakeSub struct {
	chatID int64
	sink   websocket.Sink
	closed atomic.Bool
}

func (s *fakeSub) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *fakeSub) push(evs ...events.Event) {
	for _, ev := range evs {
		s.sink.Event(ev)
	}
}

type fakeSubscriber struct {
	err    error
	opened chan *fakeSub
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{opened: make(chan *fakeSub, 16)}
}

func (f *fakeSubscriber) Subscribe(_ context.Context, chatID int64, sink websocket.Sink) (io.Closer, error) {
	if f.err != nil {
		return nil, f.err
	}
	sub := &fakeSub{chatID: chatID, sink: sink}
	sink.State(true)
	f.opened <- sub
	return sub, nil
}

func (f *fakeSubscriber) next(t *testing.T) *fakeSub {
	t.Helper()
	select {
	case sub := <-f.opened:
		return sub
	case <-time.After(2 * time.Second):
		t.Fatal("no subscription opened")
		return nil
	}
}

type notification struct {
	op  string
	err error
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []notification
}

func (n *recordingNotifier) Error(op string, err error) {
	n.mu.Lock()
	n.notes = append(n.notes, notification{op: op, err: err})
	n.mu.Unlock()
}

func (n *recordingNotifier) ops() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.notes))
	for _, note := range n.notes {
		out = append(out, note.op)
	}
	return out
}

type harness struct {
	r        *Reconciler
	api      *fakeAPI
	subs     *fakeSubscriber
	notifier *recordingNotifier
	cancel   context.CancelFunc
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{api: newFakeAPI(), subs: newFakeSubscriber(), notifier: &recordingNotifier{}}
	h.r = New(h.api, h.subs, WithNotifier(h.notifier))
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go h.r.Run(ctx)
	t.Cleanup(cancel)
	return h
}

func (h *harness) waitFor(t *testing.T, cond func(View) bool) View {
	t.Helper()
	require.Eventually(t, func() bool { return cond(h.r.Snapshot()) }, 2*time.Second, 2*time.Millisecond)
	return h.r.Snapshot()
}

func loaded(v View) bool { return !v.Loading }

func contents(v View) []string {
	out := make([]string, 0, len(v.Messages))
	for _, m := range v.Messages {
		out = append(out, m.Content)
	}
	return out
}

func TestReconciler_HistoryThenLiveEdit(t *testing.T) {
	h := newHarness(t)
	h.api.history[1] = []domain.Message{msg(1, "hi")}
	ctx := context.Background()

	require.NoError(t, h.r.Open(ctx, 1))
	sub := h.subs.next(t)
	h.waitFor(t, loaded)

	sub.push(events.Edit(1, "hello"))

	v := h.waitFor(t, func(v View) bool { return len(v.Messages) == 1 && v.Messages[0].Content == "hello" })
	assert.Equal(t, int64(1), v.ChatID)
	assert.Equal(t, int64(1), v.Messages[0].ID)
	assert.True(t, v.Connected)
	assert.NoError(t, v.Err)
}

func TestReconciler_OpenResetsView(t *testing.T) {
	h := newHarness(t)
	release := h.api.gate(1)
	defer release()

	require.NoError(t, h.r.Open(context.Background(), 1))

	v := h.r.Snapshot()
	assert.Equal(t, int64(1), v.ChatID)
	assert.True(t, v.Loading)
	assert.Empty(t, v.Messages)
}

func TestReconciler_LiveEventsBeforeHistoryAreKept(t *testing.T) {
	h := newHarness(t)
	h.api.history[1] = []domain.Message{msg(1, "hi")}
	release := h.api.gate(1)

	require.NoError(t, h.r.Open(context.Background(), 1))
	sub := h.subs.next(t)

	sub.push(
		events.Append(msg(2, "second")),
		events.Edit(1, "hi there"),
		events.Append(msg(3, "third")),
		events.Delete(3),
	)
	assert.True(t, h.r.Snapshot().Loading)
	assert.Empty(t, h.r.Snapshot().Messages)

	release()

	v := h.waitFor(t, func(v View) bool { return loaded(v) && len(v.Messages) == 2 })
	assert.Equal(t, []string{"hi there", "second"}, contents(v))
}

func TestReconciler_HistoryOverlapKeepsIDsUnique(t *testing.T) {
	h := newHarness(t)
	h.api.history[1] = []domain.Message{msg(1, "hi"), msg(2, "yo")}
	release := h.api.gate(1)

	require.NoError(t, h.r.Open(context.Background(), 1))
	sub := h.subs.next(t)
	sub.push(events.Append(msg(2, "yo")))
	release()
	h.waitFor(t, loaded)
	sub.push(events.Append(msg(3, "after")))

	v := h.waitFor(t, func(v View) bool { return len(v.Messages) == 3 })
	assert.Equal(t, []string{"hi", "yo", "after"}, contents(v))
}

func TestReconciler_StaleHistoryIgnored(t *testing.T) {
	h := newHarness(t)
	h.api.history[1] = []domain.Message{msg(1, "from A")}
	h.api.history[2] = []domain.Message{msg(7, "from B")}
	releaseA := h.api.gate(1)
	ctx := context.Background()

	require.NoError(t, h.r.Open(ctx, 1))
	h.subs.next(t)
	require.NoError(t, h.r.Open(ctx, 2))
	h.subs.next(t)

	h.waitFor(t, func(v View) bool { return loaded(v) && len(v.Messages) == 1 })

	releaseA()
	for chatID := range h.api.returned {
		if chatID == 1 {
			break
		}
	}
	// A loop round trip after A's fetch returned.
	require.NoError(t, h.r.CancelCompose(ctx))

	v := h.r.Snapshot()
	assert.Equal(t, int64(2), v.ChatID)
	assert.Equal(t, []string{"from B"}, contents(v))
}

func TestHandleHistory_GenerationAndChatGuard(t *testing.T) {
	r := New(newFakeAPI(), newFakeSubscriber())
	gen := &generation{id: 2, chatID: 20, done: make(chan struct{}), cancel: func() {}}
	st := state{gen: gen, lastGen: 2, loading: true}

	r.handleHistory(&st, historyResult{gen: 1, chatID: 10, messages: []domain.Message{msg(1, "A")}})
	assert.True(t, st.loading)
	assert.Empty(t, st.messages)

	r.handleHistory(&st, historyResult{gen: 2, chatID: 10, messages: []domain.Message{msg(1, "A")}})
	assert.True(t, st.loading)
	assert.Empty(t, st.messages)

	r.handleHistory(&st, historyResult{gen: 2, chatID: 20, messages: []domain.Message{msg(5, "B")}})
	assert.False(t, st.loading)
	require.Len(t, st.messages, 1)
	assert.Equal(t, "B", st.messages[0].Content)
}

func TestReconciler_SwitchChatsReleasesOldSubscription(t *testing.T) {
	h := newHarness(t)
	h.api.history[1] = []domain.Message{msg(1, "a1")}
	h.api.history[2] = []domain.Message{msg(5, "b1")}
	ctx := context.Background()

	require.NoError(t, h.r.Open(ctx, 1))
	subA := h.subs.next(t)
	h.waitFor(t, loaded)

	require.NoError(t, h.r.Close(ctx))
	assert.True(t, subA.closed.Load())
	assert.Zero(t, h.r.Snapshot().ChatID)

	require.NoError(t, h.r.Open(ctx, 2))
	subB := h.subs.next(t)
	h.waitFor(t, loaded)

	subA.push(events.Append(domain.Message{ID: 99, ChatID: 1, Content: "late A"}), events.Delete(5))
	subB.push(events.Append(domain.Message{ID: 6, ChatID: 2, Content: "b2"}))

	v := h.waitFor(t, func(v View) bool { return len(v.Messages) == 2 })
	assert.Equal(t, []string{"b1", "b2"}, contents(v))
	assert.Equal(t, int64(2), v.ChatID)
}

func TestReconciler_OpenClosesPreviousSubscription(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.r.Open(ctx, 1))
	subA := h.subs.next(t)
	require.NoError(t, h.r.Open(ctx, 2))

	assert.True(t, subA.closed.Load())
}

func TestReconciler_ForeignChatAppendDropped(t *testing.T) {
	h := newHarness(t)
	h.api.history[1] = nil
	require.NoError(t, h.r.Open(context.Background(), 1))
	sub := h.subs.next(t)
	h.waitFor(t, loaded)

	sub.push(
		events.Append(domain.Message{ID: 4, ChatID: 2, Content: "wrong chat"}),
		events.Append(domain.Message{ID: 2, Sender: domain.Sender{ID: 9}, Content: "yo"}),
	)

	v := h.waitFor(t, func(v View) bool { return len(v.Messages) == 1 })
	assert.Equal(t, "yo", v.Messages[0].Content)
	assert.Equal(t, int64(9), v.Messages[0].Sender.ID)
}

func TestReconciler_HistoryFailure(t *testing.T) {
	h := newHarness(t)
	boom := errors.New("boom")
	h.api.historyErr[1] = boom
	release := h.api.gate(1)

	require.NoError(t, h.r.Open(context.Background(), 1))
	sub := h.subs.next(t)
	sub.push(events.Append(msg(3, "live")))
	release()

	v := h.waitFor(t, loaded)
	assert.ErrorIs(t, v.Err, boom)
	assert.Equal(t, []string{"live"}, contents(v))
	assert.Equal(t, []string{dmchat_errors.OpLoadHistory}, h.notifier.ops())
}

func TestReconciler_ConnectionState(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.r.Open(context.Background(), 1))
	sub := h.subs.next(t)
	h.waitFor(t, func(v View) bool { return v.Connected })

	sub.sink.State(false)

	h.waitFor(t, func(v View) bool { return !v.Connected })
	assert.Contains(t, h.notifier.ops(), dmchat_errors.OpLiveChannel)
}

func TestReconciler_SubscribeFailureStillLoadsHistory(t *testing.T) {
	h := newHarness(t)
	h.subs.err = dmchat_errors.ErrTransport
	h.api.history[1] = []domain.Message{msg(1, "hi")}

	require.NoError(t, h.r.Open(context.Background(), 1))

	v := h.waitFor(t, func(v View) bool { return loaded(v) && len(v.Messages) == 1 })
	assert.False(t, v.Connected)
	require.Eventually(t, func() bool {
		return len(h.notifier.ops()) == 1
	}, time.Second, 2*time.Millisecond)
	assert.Equal(t, []string{dmchat_errors.OpLiveChannel}, h.notifier.ops())
}

func TestReconciler_StoppedLoop(t *testing.T) {
	h := newHarness(t)
	h.cancel()

	require.Eventually(t, func() bool {
		return errors.Is(h.r.Open(context.Background(), 1), dmchat_errors.ErrClosed)
	}, time.Second, 2*time.Millisecond)
}
