package reconciler

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"go.uber.org/zap"

	"dmchat/internal/api"
	"dmchat/internal/domain"
	"dmchat/internal/events"
	"dmchat/internal/websocket"
	dmchat_errors "dmchat/pkg/errors"
	"dmchat/pkg/logger"
)

// API is the part of the chat API the reconciler drives.
type API interface {
	ListMessages(ctx context.Context, chatID int64) ([]domain.Message, error)
	SendMessage(ctx context.Context, in api.SendMessageInput) error
	EditMessage(ctx context.Context, messageID int64, newContent string) error
	DeleteMessage(ctx context.Context, messageID int64) error
}

// Subscriber opens the live channel of a chat. The returned closer releases
// it and must not return before the sink has received its last call.
type Subscriber interface {
	Subscribe(ctx context.Context, chatID int64, sink websocket.Sink) (io.Closer, error)
}

// Notifier surfaces failures to the user.
type Notifier interface {
	Error(op string, err error)
}

// LiveChannel adapts a websocket dialer to Subscriber.
func LiveChannel(d *websocket.Dialer) Subscriber {
	return dialerSubscriber{dialer: d}
}

type dialerSubscriber struct {
	dialer *websocket.Dialer
}

func (s dialerSubscriber) Subscribe(ctx context.Context, chatID int64, sink websocket.Sink) (io.Closer, error) {
	sub, err := s.dialer.Subscribe(ctx, chatID, sink)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// View is an immutable snapshot of the open chat. Messages must not be
// modified by the reader.
type View struct {
	ChatID    int64
	Messages  []domain.Message
	Loading   bool
	Connected bool
	Err       error
	Edit      *PendingEdit
	Reply     *PendingReply

	generation uint64
	open       bool
}

// Active reports whether a chat is open.
func (v View) Active() bool {
	return v.open
}

// Message looks up id in the snapshot.
func (v View) Message(id int64) (domain.Message, bool) {
	if i := indexOf(v.Messages, id); i >= 0 {
		return v.Messages[i], true
	}
	return domain.Message{}, false
}

type Option func(*Reconciler)

func WithNotifier(n Notifier) Option {
	return func(r *Reconciler) { r.notifier = n }
}

func WithLogger(l *logger.Logger) Option {
	return func(r *Reconciler) { r.log = l.Named("reconciler") }
}

// Reconciler keeps the message list of the one open chat. A single
// goroutine started by Run owns every piece of state; all inputs reach it
// as requests on its channels.
type Reconciler struct {
	api        API
	subscriber Subscriber
	notifier   Notifier
	log        *logger.Logger

	open       chan openRequest
	closeReq   chan chan struct{}
	history    chan historyResult
	live       chan liveEvent
	conn       chan connState
	subscribed chan subscribeResult
	compose    chan composeRequest

	view    atomic.Pointer[View]
	changes chan struct{}
	stopped chan struct{}
}

type openRequest struct {
	chatID int64
	done   chan struct{}
}

type historyResult struct {
	gen      uint64
	chatID   int64
	messages []domain.Message
	err      error
}

type liveEvent struct {
	gen   uint64
	event events.Event
}

type connState struct {
	gen       uint64
	connected bool
}

type subscribeResult struct {
	gen uint64
	sub io.Closer
	err error
}

// generation is one Open. Its id, chatID and done are fixed at creation and
// may be read by its goroutines; the rest belongs to the loop.
type generation struct {
	id     uint64
	chatID int64
	done   chan struct{}
	cancel context.CancelFunc

	sub           io.Closer
	historyLoaded bool
	pending       []events.Event
}

type state struct {
	gen       *generation
	lastGen   uint64
	messages  []domain.Message
	loading   bool
	connected bool
	err       error
	edit      *PendingEdit
	reply     *PendingReply
}

func New(a API, sub Subscriber, opts ...Option) *Reconciler {
	r := &Reconciler{
		api:        a,
		subscriber: sub,
		log:        logger.Nop(),
		open:       make(chan openRequest),
		closeReq:   make(chan chan struct{}),
		history:    make(chan historyResult, 4),
		live:       make(chan liveEvent, 64),
		conn:       make(chan connState, 4),
		subscribed: make(chan subscribeResult, 4),
		compose:    make(chan composeRequest),
		changes:    make(chan struct{}, 1),
		stopped:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.view.Store(&View{})
	return r
}

// Run owns the reconciler state until ctx ends. It must be called once.
func (r *Reconciler) Run(ctx context.Context) {
	var st state
	defer func() {
		r.endGeneration(&st)
		close(r.stopped)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-r.open:
			r.handleOpen(ctx, &st, req.chatID)
			close(req.done)
		case done := <-r.closeReq:
			r.handleClose(&st)
			close(done)
		case res := <-r.history:
			r.handleHistory(&st, res)
		case ev := <-r.live:
			r.handleLive(&st, ev)
		case cs := <-r.conn:
			r.handleConn(&st, cs)
		case res := <-r.subscribed:
			r.handleSubscribed(&st, res)
		case req := <-r.compose:
			req.result <- r.handleCompose(&st, req)
		}
	}
}

// Snapshot returns the latest published view.
func (r *Reconciler) Snapshot() View {
	return *r.view.Load()
}

// Changes signals that a new view was published. Signals coalesce.
func (r *Reconciler) Changes() <-chan struct{} {
	return r.changes
}

// Open discards the current chat and starts loading chatID. It returns
// once the previous subscription is released and the reset is visible.
func (r *Reconciler) Open(ctx context.Context, chatID int64) error {
	req := openRequest{chatID: chatID, done: make(chan struct{})}
	if err := submit(ctx, r, r.open, req); err != nil {
		return err
	}
	return r.wait(ctx, req.done)
}

// Close releases the subscription of the open chat, if any.
func (r *Reconciler) Close(ctx context.Context) error {
	done := make(chan struct{})
	if err := submit(ctx, r, r.closeReq, done); err != nil {
		return err
	}
	return r.wait(ctx, done)
}

func (r *Reconciler) wait(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.stopped:
		return dmchat_errors.ErrClosed
	}
}

func submit[T any](ctx context.Context, r *Reconciler, ch chan<- T, v T) error {
	select {
	case ch <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.stopped:
		return dmchat_errors.ErrClosed
	}
}

func (r *Reconciler) handleOpen(base context.Context, st *state, chatID int64) {
	r.endGeneration(st)

	ctx, cancel := context.WithCancel(base)
	gen := &generation{
		id:     st.lastGen + 1,
		chatID: chatID,
		done:   make(chan struct{}),
		cancel: cancel,
	}
	*st = state{gen: gen, lastGen: gen.id, loading: true}

	r.log.Ctx(logger.WithChatID(ctx, chatID)).Info("open chat", zap.Uint64("generation", gen.id))
	go r.fetchHistory(ctx, gen)
	go r.subscribe(ctx, gen)
	r.publish(st)
}

func (r *Reconciler) handleClose(st *state) {
	if st.gen != nil {
		r.log.Ctx(logger.WithChatID(context.Background(), st.gen.chatID)).Info("close chat")
	}
	r.endGeneration(st)
	*st = state{lastGen: st.lastGen}
	r.publish(st)
}

// endGeneration stops everything started for the current generation. done
// is closed first so a sink blocked on the loop returns and the
// subscription can be closed from here.
func (r *Reconciler) endGeneration(st *state) {
	gen := st.gen
	if gen == nil {
		return
	}
	close(gen.done)
	gen.cancel()
	if gen.sub != nil {
		if err := gen.sub.Close(); err != nil {
			r.log.Logger.Debug("close subscription", zap.Int64("chat_id", gen.chatID), zap.Error(err))
		}
		gen.sub = nil
	}
	st.gen = nil
}

func (r *Reconciler) fetchHistory(ctx context.Context, gen *generation) {
	msgs, err := r.api.ListMessages(ctx, gen.chatID)
	res := historyResult{gen: gen.id, chatID: gen.chatID, messages: msgs, err: err}
	select {
	case r.history <- res:
	case <-gen.done:
	case <-r.stopped:
	}
}

func (r *Reconciler) subscribe(ctx context.Context, gen *generation) {
	sub, err := r.subscriber.Subscribe(ctx, gen.chatID, &sink{r: r, gen: gen.id, done: gen.done})
	select {
	case r.subscribed <- subscribeResult{gen: gen.id, sub: sub, err: err}:
	case <-gen.done:
		if sub != nil {
			_ = sub.Close()
		}
	case <-r.stopped:
		if sub != nil {
			_ = sub.Close()
		}
	}
}

func (r *Reconciler) current(st *state, gen uint64) bool {
	return st.gen != nil && st.gen.id == gen
}

func (r *Reconciler) handleHistory(st *state, res historyResult) {
	if !r.current(st, res.gen) || st.gen.chatID != res.chatID {
		r.log.Logger.Debug("stale history dropped", zap.Int64("chat_id", res.chatID), zap.Uint64("generation", res.gen))
		return
	}
	gen := st.gen
	gen.historyLoaded = true
	st.loading = false

	if res.err != nil {
		st.messages = nil
		st.err = res.err
		r.log.Logger.Warn("load history failed", zap.Int64("chat_id", gen.chatID), zap.Error(res.err))
		r.notify(dmchat_errors.OpLoadHistory, res.err)
	} else {
		st.messages = res.messages
	}

	for _, ev := range gen.pending {
		r.apply(st, ev)
	}
	gen.pending = nil
	r.publish(st)
}

func (r *Reconciler) handleLive(st *state, ev liveEvent) {
	if !r.current(st, ev.gen) {
		return
	}
	gen := st.gen
	if m := ev.event.Message; ev.event.Kind == events.KindAppend && m.ChatID != 0 && m.ChatID != gen.chatID {
		r.log.Logger.Warn("message for another chat dropped",
			zap.Int64("chat_id", gen.chatID),
			zap.Int64("message_chat_id", m.ChatID),
			zap.Int64("message_id", m.ID))
		return
	}
	if !gen.historyLoaded {
		gen.pending = append(gen.pending, ev.event)
		return
	}
	r.apply(st, ev.event)
	r.publish(st)
}

func (r *Reconciler) apply(st *state, ev events.Event) {
	st.messages = ApplyEvent(st.messages, ev)
	if ev.Kind == events.KindDelete && st.edit != nil && st.edit.MessageID == ev.MessageID {
		st.edit = nil
	}
}

func (r *Reconciler) handleConn(st *state, cs connState) {
	if !r.current(st, cs.gen) || st.connected == cs.connected {
		return
	}
	st.connected = cs.connected
	if !cs.connected {
		err := fmt.Errorf("chat %d: live channel closed: %w", st.gen.chatID, dmchat_errors.ErrTransport)
		r.log.Logger.Warn("live channel lost", zap.Int64("chat_id", st.gen.chatID))
		r.notify(dmchat_errors.OpLiveChannel, err)
	}
	r.publish(st)
}

func (r *Reconciler) handleSubscribed(st *state, res subscribeResult) {
	if !r.current(st, res.gen) {
		if res.sub != nil {
			_ = res.sub.Close()
		}
		return
	}
	if res.err != nil {
		r.log.Logger.Warn("subscribe failed", zap.Int64("chat_id", st.gen.chatID), zap.Error(res.err))
		r.notify(dmchat_errors.OpLiveChannel, res.err)
		if st.connected {
			st.connected = false
			r.publish(st)
		}
		return
	}
	st.gen.sub = res.sub
}

func (r *Reconciler) notify(op string, err error) {
	if r.notifier != nil {
		r.notifier.Error(op, err)
	}
}

func (r *Reconciler) publish(st *state) {
	v := &View{
		Messages:  st.messages,
		Loading:   st.loading,
		Connected: st.connected,
		Err:       st.err,
		Edit:      st.edit,
		Reply:     st.reply,
	}
	if st.gen != nil {
		v.ChatID = st.gen.chatID
		v.generation = st.gen.id
		v.open = true
	}
	r.view.Store(v)
	select {
	case r.changes <- struct{}{}:
	default:
	}
}

// sink forwards one generation's live channel into the loop. Once the
// generation ends it drops everything instead of blocking the reader.
type sink struct {
	r    *Reconciler
	gen  uint64
	done <-chan struct{}
}

func (s *sink) Event(ev events.Event) {
	select {
	case s.r.live <- liveEvent{gen: s.gen, event: ev}:
	case <-s.done:
	case <-s.r.stopped:
	}
}

func (s *sink) State(connected bool) {
	select {
	case s.r.conn <- connState{gen: s.gen, connected: connected}:
	case <-s.done:
	case <-s.r.stopped:
	}
}
