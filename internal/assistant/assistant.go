// Package assistant is the conversation state machine. Each user turn is
// logged, checked for activation phrases, classified, has its slots
// extracted, and ends in exactly one bot turn: an acknowledgement, a nudge,
// a clarifying question, a channel prompt, an action confirmation, or an
// oracle answer.
//
// Turns are handled one at a time. The oracle call is the only step that
// runs in the background; its answers are appended in the order the
// questions were asked.
package assistant

import (
	"context"
	"errors"
	log "log/slog"
	"strings"
	"sync"

	"djuka/internal/action"
	"djuka/internal/convo"
	"djuka/internal/nlu"
	"djuka/internal/oracle"
	"djuka/internal/pending"
)

var ErrClosed = errors.New("assistant closed")

type State int

const (
	StateIgnored State = iota
	StateAcknowledged
	StateInactive
	StateClarifying
	StateStaged
	StateExecuting
	StateAskingOracle
)

func (s State) String() string {
	switch s {
	case StateAcknowledged:
		return "acknowledged"
	case StateInactive:
		return "inactive"
	case StateClarifying:
		return "clarifying"
	case StateStaged:
		return "staged"
	case StateExecuting:
		return "executing"
	case StateAskingOracle:
		return "asking_oracle"
	default:
		return "ignored"
	}
}

type Voice struct {
	Locale string
	Pitch  float64
	Rate   float64
}

var DefaultVoice = Voice{Locale: "sr-RS", Pitch: 1.0, Rate: 0.9}

// Speaker plays replies aloud. Errors are logged and otherwise ignored.
type Speaker interface {
	Speak(text string, v Voice) error
}

// Notifier shows short, transient notices outside the conversation.
type Notifier interface {
	Notice(text string)
}

type logNotifier struct{}

func (logNotifier) Notice(text string) { log.Warn("Notice", "text", text) }

type Options struct {
	Log      *convo.Log
	Executor action.Executor
	// Oracle answers free-form questions. Without one every question gets
	// the demo answer.
	Oracle   oracle.Oracle
	Speaker  Speaker
	Notifier Notifier
	Voice    Voice
	// Active starts the assistant already activated.
	Active bool
}

type Assistant struct {
	mu      sync.Mutex
	active  bool
	closed  bool
	pending *pending.Coordinator

	log      *convo.Log
	exec     action.Executor
	oracle   oracle.Oracle
	speaker  Speaker
	notifier Notifier
	voice    Voice

	answers chan *answer
	flight  flight
	stopped chan struct{}

	// Per-call scratch, set while a.mu is held: bot turns appended by the
	// call and the oracle answer it started.
	collect *[]convo.Turn
	asked   *answer
}

func New(opts Options) *Assistant {
	if opts.Log == nil {
		opts.Log = convo.NewLog()
	}
	if opts.Executor == nil {
		opts.Executor = action.LogExecutor{}
	}
	if opts.Notifier == nil {
		opts.Notifier = logNotifier{}
	}
	if opts.Voice == (Voice{}) {
		opts.Voice = DefaultVoice
	}

	a := &Assistant{
		active:   opts.Active,
		pending:  pending.New(),
		log:      opts.Log,
		exec:     opts.Executor,
		oracle:   opts.Oracle,
		speaker:  opts.Speaker,
		notifier: opts.Notifier,
		voice:    opts.Voice,
		answers:  make(chan *answer, 64),
		stopped:  make(chan struct{}),
	}
	a.flight.idle = closedChan()

	go a.appendAnswers()
	return a
}

// Handle processes one user turn and reports the state it ended in. Only
// logging failures are returned; collaborator failures become bot turns or
// notices.
func (a *Assistant) Handle(ctx context.Context, text string) (State, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, err := a.handle(ctx, text)
	a.asked = nil
	return st, err
}

// Exchange is Handle that also returns the bot turns produced for text,
// in order. For a free-form question it waits for that question's answer;
// if ctx ends first the answer is left out and still lands in the log.
func (a *Assistant) Exchange(ctx context.Context, text string) (State, []convo.Turn, error) {
	var replies []convo.Turn

	a.mu.Lock()
	a.collect, a.asked = &replies, nil
	st, err := a.handle(ctx, text)
	ans := a.asked
	a.collect, a.asked = nil, nil
	a.mu.Unlock()

	if err != nil || ans == nil {
		return st, replies, err
	}

	select {
	case <-ans.logged:
		if ans.turn.ID != "" {
			replies = append(replies, ans.turn)
		}
	case <-ctx.Done():
		log.Warn("Answer still pending", "question", text, "err", ctx.Err())
	}
	return st, replies, nil
}

func (a *Assistant) handle(ctx context.Context, text string) (State, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return StateIgnored, nil
	}

	if a.closed {
		return StateIgnored, ErrClosed
	}

	if _, err := a.log.Append(ctx, convo.SenderUser, text); err != nil {
		return StateIgnored, err
	}

	switch nlu.Evaluate(text) {
	case nlu.SignalActivate:
		a.active = true
		log.Info("Assistant activated")
		return StateAcknowledged, a.reply(ctx, replyActivated, true)
	case nlu.SignalDeactivate:
		a.active = false
		log.Info("Assistant deactivated")
		return StateAcknowledged, a.reply(ctx, replyDeactivated, true)
	}

	if !a.active {
		return StateInactive, a.reply(ctx, replyNudge, false)
	}

	return a.route(ctx, text)
}

func (a *Assistant) route(ctx context.Context, text string) (State, error) {
	intent := nlu.Classify(strings.ToLower(text))
	log.Debug("Classified", "intent", intent, "text", text)

	switch intent {
	case nlu.Call:
		contact, ok := nlu.Contact(nlu.Call, text)
		if !ok {
			return StateClarifying, a.reply(ctx, askWhoToCall, true)
		}
		return a.stage(ctx, pending.Action{Kind: action.KindCall, Contact: contact})

	case nlu.SendMessage:
		contact, okContact := nlu.Contact(nlu.SendMessage, text)
		body, okBody := nlu.Message(text)
		if !okContact || !okBody {
			return StateClarifying, a.reply(ctx, askWhomAndWhat, true)
		}
		return a.stage(ctx, pending.Action{Kind: action.KindMessage, Contact: contact, Message: body})

	case nlu.Navigate:
		dest, ok := nlu.Destination(text)
		if !ok {
			return StateClarifying, a.reply(ctx, askWhereTo, true)
		}
		a.execute(ctx, action.Executable{Kind: action.KindNavigate, Destination: dest})
		return StateExecuting, a.reply(ctx, replyNavigating(dest), true)

	case nlu.Search:
		q, ok := nlu.Query(text)
		if !ok {
			return StateClarifying, a.reply(ctx, askWhatToSearch, true)
		}
		a.execute(ctx, action.Executable{Kind: action.KindSearch, Query: q})
		return StateExecuting, a.reply(ctx, replySearching(q), true)

	default:
		a.ask(ctx, text)
		return StateAskingOracle, nil
	}
}

func (a *Assistant) stage(ctx context.Context, p pending.Action) (State, error) {
	if err := a.pending.Stage(p); err != nil {
		return StateIgnored, err
	}
	log.Info("Staged", "kind", p.Kind, "contact", p.Contact)
	return StateStaged, a.reply(ctx, askChannel, true)
}

// Choose resolves the pending action on channel, executes it and confirms.
// Without a pending action it returns pending.ErrNothingPending and does
// nothing.
func (a *Assistant) Choose(ctx context.Context, channel string) error {
	_, err := a.ChooseReply(ctx, channel)
	return err
}

// ChooseReply is Choose that also returns the confirmation turn.
func (a *Assistant) ChooseReply(ctx context.Context, channel string) ([]convo.Turn, error) {
	var replies []convo.Turn

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, ErrClosed
	}

	ex, err := a.pending.Resolve(channel)
	if err != nil {
		return nil, err
	}

	a.collect = &replies
	defer func() { a.collect = nil }()

	a.execute(ctx, ex)
	err = a.reply(ctx, replyResolved(ex), true)
	return replies, err
}

// Cancel drops the pending action, if any.
func (a *Assistant) Cancel() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending.Cancel()
}

// Toggle flips the activation state by hand and returns the new state.
func (a *Assistant) Toggle(ctx context.Context) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return a.active, ErrClosed
	}

	a.active = !a.active
	msg := replyToggledOff
	if a.active {
		msg = replyToggledOn
	}
	return a.active, a.reply(ctx, msg, false)
}

// CaptureFailed reports a voice capture failure to the user.
func (a *Assistant) CaptureFailed(err error) {
	log.Error("Capture failed", "err", err)
	a.notifier.Notice(NoticeCaptureFailed)
}

func (a *Assistant) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

func (a *Assistant) Pending() (pending.Action, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending.Pending()
}

func (a *Assistant) Turns() []convo.Turn {
	return a.log.Turns()
}

func (a *Assistant) execute(ctx context.Context, ex action.Executable) {
	if err := a.exec.Execute(ctx, ex); err != nil {
		log.Warn("Failed to execute", "kind", ex.Kind, "channel", ex.Channel, "err", err)
		a.notifier.Notice(noticeCannotOpen(ex))
	}
}

func (a *Assistant) reply(ctx context.Context, text string, speak bool) error {
	t, err := a.log.Append(ctx, convo.SenderBot, text)
	if err != nil {
		return err
	}
	if a.collect != nil {
		*a.collect = append(*a.collect, t)
	}
	if speak {
		a.speak(text)
	}
	return nil
}

func (a *Assistant) speak(text string) {
	if a.speaker == nil {
		return
	}
	if err := a.speaker.Speak(text, a.voice); err != nil {
		log.Warn("Failed to voice out", "err", err)
	}
}
