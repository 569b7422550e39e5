package assistant

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"djuka/internal/action"
	"djuka/internal/convo"
	"djuka/internal/oracle"
	"djuka/internal/pending"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recExecutor struct {
	mu   sync.Mutex
	done []action.Executable
	err  error
}

func (r *recExecutor) Execute(_ context.Context, a action.Executable) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done = append(r.done, a)
	return r.err
}

func (r *recExecutor) calls() []action.Executable {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]action.Executable(nil), r.done...)
}

type recSpeaker struct {
	mu     sync.Mutex
	spoken []string
	err    error
}

func (r *recSpeaker) Speak(text string, v Voice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spoken = append(r.spoken, text)
	return r.err
}

func (r *recSpeaker) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.spoken...)
}

type recNotifier struct {
	mu      sync.Mutex
	notices []string
}

func (r *recNotifier) Notice(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, text)
}

func (r *recNotifier) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.notices...)
}

// gatedOracle answers each question with its text upper-cased, optionally
// holding the answer until the question's gate is closed.
type gatedOracle struct {
	mu    sync.Mutex
	asked []string
	gates map[string]chan struct{}
	fail  map[string]error
}

func newGatedOracle() *gatedOracle {
	return &gatedOracle{gates: map[string]chan struct{}{}, fail: map[string]error{}}
}

func (g *gatedOracle) gate(q string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	c := make(chan struct{})
	g.gates[q] = c
	return c
}

func (g *gatedOracle) Ask(ctx context.Context, q string) (string, error) {
	g.mu.Lock()
	g.asked = append(g.asked, q)
	gate := g.gates[q]
	err := g.fail[q]
	g.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return "odgovor: " + q, nil
}

func (g *gatedOracle) questions() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.asked...)
}

type fixture struct {
	a        *Assistant
	exec     *recExecutor
	speaker  *recSpeaker
	notifier *recNotifier
	oracle   *gatedOracle
}

func newFixture(t *testing.T, active bool) *fixture {
	t.Helper()
	f := &fixture{
		exec:     &recExecutor{},
		speaker:  &recSpeaker{},
		notifier: &recNotifier{},
		oracle:   newGatedOracle(),
	}
	f.a = New(Options{
		Executor: f.exec,
		Oracle:   f.oracle,
		Speaker:  f.speaker,
		Notifier: f.notifier,
		Active:   active,
	})
	t.Cleanup(func() { _ = f.a.Close() })
	return f
}

func (f *fixture) handle(t *testing.T, text string) State {
	t.Helper()
	st, err := f.a.Handle(context.Background(), text)
	require.NoError(t, err)
	return st
}

func (f *fixture) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.a.Wait(ctx))
}

func texts(turns []convo.Turn) []string {
	out := make([]string, len(turns))
	for i, t := range turns {
		out[i] = t.Text
	}
	return out
}

func lastText(t *testing.T, a *Assistant) string {
	t.Helper()
	turns := a.Turns()
	require.NotEmpty(t, turns)
	return turns[len(turns)-1].Text
}

func TestInactiveNudge(t *testing.T) {
	f := newFixture(t, false)

	assert.Equal(t, StateInactive, f.handle(t, "pozovi Marko"))

	turns := f.a.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, convo.SenderUser, turns[0].Sender)
	assert.Equal(t, "pozovi Marko", turns[0].Text)
	assert.Equal(t, convo.SenderBot, turns[1].Sender)
	assert.Equal(t, replyNudge, turns[1].Text)

	_, ok := f.a.Pending()
	assert.False(t, ok)
	assert.Empty(t, f.speaker.texts(), "nudge is not spoken")
}

func TestActivationIsIdempotent(t *testing.T) {
	f := newFixture(t, false)

	assert.Equal(t, StateAcknowledged, f.handle(t, "Gdje si Djuka?"))
	assert.True(t, f.a.Active())
	assert.Equal(t, StateAcknowledged, f.handle(t, "gdje si đuka"))
	assert.True(t, f.a.Active())

	assert.Equal(t, []string{
		"Gdje si Djuka?", replyActivated,
		"gdje si đuka", replyActivated,
	}, texts(f.a.Turns()))
	assert.Equal(t, []string{replyActivated, replyActivated}, f.speaker.texts())
}

func TestDeactivation(t *testing.T) {
	f := newFixture(t, true)

	assert.Equal(t, StateAcknowledged, f.handle(t, "hvala djuka"))
	assert.False(t, f.a.Active())
	assert.Equal(t, replyDeactivated, lastText(t, f.a))

	assert.Equal(t, StateInactive, f.handle(t, "koja je prestonica Francuske"))
	assert.Empty(t, f.oracle.questions())
}

func TestActivationWinsOverDeactivation(t *testing.T) {
	f := newFixture(t, true)

	assert.Equal(t, StateAcknowledged, f.handle(t, "hvala djuka, gdje si djuka"))
	assert.True(t, f.a.Active())
	assert.Equal(t, replyActivated, lastText(t, f.a))
}

func TestActivationSkipsClassification(t *testing.T) {
	f := newFixture(t, true)

	assert.Equal(t, StateAcknowledged, f.handle(t, "gdje si djuka, pozovi Marko"))
	_, ok := f.a.Pending()
	assert.False(t, ok)
}

func TestCallIsStagedNotExecuted(t *testing.T) {
	f := newFixture(t, true)

	assert.Equal(t, StateStaged, f.handle(t, "pozovi Marko"))

	p, ok := f.a.Pending()
	require.True(t, ok)
	assert.Equal(t, pending.Action{Kind: action.KindCall, Contact: "Marko"}, p)
	assert.Empty(t, f.exec.calls())
	assert.Equal(t, "Izaberi servis: telefon, whatsapp, viber.", lastText(t, f.a))
}

func TestChooseExecutesOnce(t *testing.T) {
	f := newFixture(t, true)
	f.handle(t, "pozovi Marko")

	require.NoError(t, f.a.Choose(context.Background(), "whatsapp"))

	calls := f.exec.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, action.Executable{Kind: action.KindCall, Contact: "Marko", Channel: action.ChannelWhatsApp}, calls[0])
	assert.Equal(t, "Pozivam Marko preko whatsapp", lastText(t, f.a))

	n := len(f.a.Turns())
	err := f.a.Choose(context.Background(), "whatsapp")
	assert.ErrorIs(t, err, pending.ErrNothingPending)
	assert.Len(t, f.exec.calls(), 1)
	assert.Len(t, f.a.Turns(), n)
}

func TestChooseUnknownChannel(t *testing.T) {
	f := newFixture(t, true)
	f.handle(t, "nazovi Jelenu")

	err := f.a.Choose(context.Background(), "golub")
	assert.ErrorIs(t, err, action.ErrUnknownChannel)

	_, ok := f.a.Pending()
	assert.True(t, ok)
	assert.Empty(t, f.exec.calls())
}

func TestSendMessage(t *testing.T) {
	f := newFixture(t, true)

	assert.Equal(t, StateStaged, f.handle(t, "pošalji poruku Ana stići ću kasnije"))

	p, ok := f.a.Pending()
	require.True(t, ok)
	assert.Equal(t, action.KindMessage, p.Kind)
	assert.Equal(t, "Ana", p.Contact)
	// the body still starts with the contact name
	assert.Equal(t, "Ana stići ću kasnije", p.Message)

	require.NoError(t, f.a.Choose(context.Background(), "viber"))
	calls := f.exec.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, action.ChannelViber, calls[0].Channel)
	assert.Equal(t, "Ana stići ću kasnije", calls[0].Message)
	assert.Equal(t, "Šaljem poruku za Ana preko viber", lastText(t, f.a))
}

func TestRestageReplacesPending(t *testing.T) {
	f := newFixture(t, true)
	f.handle(t, "pozovi Marko")
	f.handle(t, "pozovi Jelenu")

	p, ok := f.a.Pending()
	require.True(t, ok)
	assert.Equal(t, "Jelenu", p.Contact)

	require.NoError(t, f.a.Choose(context.Background(), "phone"))
	calls := f.exec.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Jelenu", calls[0].Contact)
}

func TestCancel(t *testing.T) {
	f := newFixture(t, true)
	assert.False(t, f.a.Cancel())

	f.handle(t, "pozovi Marko")
	n := len(f.a.Turns())
	assert.True(t, f.a.Cancel())
	assert.Len(t, f.a.Turns(), n, "cancel adds no turn")

	assert.ErrorIs(t, f.a.Choose(context.Background(), "phone"), pending.ErrNothingPending)
	assert.Empty(t, f.exec.calls())
}

func TestClarifyingQuestions(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"pozovi", askWhoToCall},
		{"pošalji poruku", askWhomAndWhat},
		{"posalji poruku", askWhomAndWhat},
		{"navigiraj", askWhereTo},
		{"traži", askWhatToSearch},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			f := newFixture(t, true)
			assert.Equal(t, StateClarifying, f.handle(t, tc.in))
			assert.Equal(t, []string{tc.in, tc.want}, texts(f.a.Turns()))
			_, ok := f.a.Pending()
			assert.False(t, ok)
			assert.Empty(t, f.exec.calls())
		})
	}
}

func TestNavigateAndSearchExecuteImmediately(t *testing.T) {
	f := newFixture(t, true)

	assert.Equal(t, StateExecuting, f.handle(t, "vodi me do Kalemegdana"))
	assert.Equal(t, "Otvaram Google Maps za do Kalemegdana", lastText(t, f.a))

	assert.Equal(t, StateExecuting, f.handle(t, "pretraži recept za sarmu"))
	assert.Equal(t, "Pretražujem recept za sarmu", lastText(t, f.a))

	assert.Equal(t, []action.Executable{
		{Kind: action.KindNavigate, Destination: "do Kalemegdana"},
		{Kind: action.KindSearch, Query: "recept za sarmu"},
	}, f.exec.calls())
	assert.Empty(t, f.notifier.texts())
}

func TestExecutionFailureBecomesNotice(t *testing.T) {
	f := newFixture(t, true)
	f.exec.err = errors.New("no maps app")

	st, err := f.a.Handle(context.Background(), "navigiraj Novi Sad")
	require.NoError(t, err)
	assert.Equal(t, StateExecuting, st)
	assert.Equal(t, []string{"Ne mogu da otvorim Google Maps"}, f.notifier.texts())
	assert.Equal(t, "Otvaram Google Maps za Novi Sad", lastText(t, f.a))

	f.handle(t, "pozovi Marko")
	require.NoError(t, f.a.Choose(context.Background(), "viber"))
	assert.Equal(t, "Ne mogu da otvorim viber", f.notifier.texts()[1])
}

func TestFreeFormAsksOracleOnce(t *testing.T) {
	f := newFixture(t, true)

	assert.Equal(t, StateAskingOracle, f.handle(t, "koja je prestonica Francuske"))
	f.wait(t)

	assert.Equal(t, []string{"koja je prestonica Francuske"}, f.oracle.questions())
	assert.Equal(t, []string{
		"koja je prestonica Francuske",
		"odgovor: koja je prestonica Francuske",
	}, texts(f.a.Turns()))
	assert.False(t, f.a.Typing())
}

func TestOracleFailureApologizesOnce(t *testing.T) {
	f := newFixture(t, true)
	f.oracle.fail["koja je prestonica Francuske"] = errors.New("quota exceeded")

	st, err := f.a.Handle(context.Background(), "koja je prestonica Francuske")
	require.NoError(t, err)
	assert.Equal(t, StateAskingOracle, st)
	f.wait(t)

	assert.Equal(t, []string{"koja je prestonica Francuske", replyOracleSorry}, texts(f.a.Turns()))
	assert.Equal(t, []string{replyOracleSorry}, f.speaker.texts())
}

func TestOracleEmptyAnswer(t *testing.T) {
	a := New(Options{
		Active: true,
		Oracle: oracle.Func(func(context.Context, string) (string, error) {
			return "", oracle.ErrEmptyAnswer
		}),
	})
	defer a.Close()

	_, err := a.Handle(context.Background(), "šta ima")
	require.NoError(t, err)
	require.NoError(t, a.Wait(context.Background()))
	assert.Equal(t, replyDemoAnswer, lastText(t, a))
}

func TestNoOracleGivesDemoAnswer(t *testing.T) {
	a := New(Options{Active: true})
	defer a.Close()

	_, err := a.Handle(context.Background(), "šta ima")
	require.NoError(t, err)
	require.NoError(t, a.Wait(context.Background()))
	assert.Equal(t, replyDemoAnswer, lastText(t, a))
}

func TestOracleAnswersKeepRequestOrder(t *testing.T) {
	f := newFixture(t, true)
	slow := f.oracle.gate("prvo pitanje")

	f.handle(t, "prvo pitanje")
	f.handle(t, "drugo pitanje")
	assert.True(t, f.a.Typing())

	// a new turn lands immediately, ahead of both answers
	assert.Equal(t, StateStaged, f.handle(t, "pozovi Marko"))
	assert.Equal(t, []string{
		"prvo pitanje",
		"drugo pitanje",
		"pozovi Marko",
		askChannel,
	}, texts(f.a.Turns()))

	// the second answer is ready but must wait for the first
	require.Eventually(t, func() bool { return len(f.oracle.questions()) == 2 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, f.a.Turns(), 4)

	close(slow)
	f.wait(t)

	assert.Equal(t, []string{
		"prvo pitanje",
		"drugo pitanje",
		"pozovi Marko",
		askChannel,
		"odgovor: prvo pitanje",
		"odgovor: drugo pitanje",
	}, texts(f.a.Turns()))
	assert.False(t, f.a.Typing())
}

func TestOracleSurvivesCancelledRequest(t *testing.T) {
	f := newFixture(t, true)
	gate := f.oracle.gate("pitanje")

	ctx, cancel := context.WithCancel(context.Background())
	_, err := f.a.Handle(ctx, "pitanje")
	require.NoError(t, err)
	cancel()

	close(gate)
	f.wait(t)
	assert.Equal(t, "odgovor: pitanje", lastText(t, f.a))
}

func TestEveryUserTurnGetsAReply(t *testing.T) {
	f := newFixture(t, false)
	inputs := []string{
		"zdravo",
		"gdje si djuka",
		"pozovi",
		"pozovi Marko",
		"pošalji poruku Ana vidimo se",
		"navigiraj Niš",
		"traži kino",
		"koliko je sati",
		"hvala djuka",
		"pretraži nešto",
	}
	for _, in := range inputs {
		f.handle(t, in)
	}
	f.wait(t)

	users := 0
	for _, turn := range f.a.Turns() {
		if turn.FromUser() {
			users++
		}
	}
	assert.Equal(t, len(inputs), users)
	assert.Len(t, f.a.Turns(), 2*len(inputs))
}

func TestEmptyInputIgnored(t *testing.T) {
	f := newFixture(t, true)
	assert.Equal(t, StateIgnored, f.handle(t, "   "))
	assert.Empty(t, f.a.Turns())
}

func TestToggle(t *testing.T) {
	f := newFixture(t, false)

	on, err := f.a.Toggle(context.Background())
	require.NoError(t, err)
	assert.True(t, on)
	off, err := f.a.Toggle(context.Background())
	require.NoError(t, err)
	assert.False(t, off)

	assert.Equal(t, []string{replyToggledOn, replyToggledOff}, texts(f.a.Turns()))
	assert.Empty(t, f.speaker.texts())
}

func TestSpeakerFailureIsSwallowed(t *testing.T) {
	f := newFixture(t, false)
	f.speaker.err = errors.New("no audio device")

	assert.Equal(t, StateAcknowledged, f.handle(t, "gdje si djuka"))
	assert.Equal(t, replyActivated, lastText(t, f.a))
}

func TestCaptureFailedNotice(t *testing.T) {
	f := newFixture(t, true)
	f.a.CaptureFailed(errors.New("mic busy"))
	assert.Equal(t, []string{NoticeCaptureFailed}, f.notifier.texts())
	assert.Empty(t, f.a.Turns())
}

func TestClosed(t *testing.T) {
	f := newFixture(t, true)
	gate := f.oracle.gate("pitanje")
	f.handle(t, "pitanje")

	closed := make(chan struct{})
	go func() {
		_ = f.a.Close()
		close(closed)
	}()
	close(gate)
	<-closed

	assert.Equal(t, "odgovor: pitanje", lastText(t, f.a), "close drains queued answers")

	_, err := f.a.Handle(context.Background(), "pitanje")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, f.a.Choose(context.Background(), "phone"), ErrClosed)
	_, err = f.a.Toggle(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, f.a.Close())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "staged", StateStaged.String())
	assert.Equal(t, "asking_oracle", StateAskingOracle.String())
	assert.Equal(t, "ignored", StateIgnored.String())
}

func TestExchangeReturnsOnlyItsOwnReplies(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	gate := f.oracle.gate("prvo pitanje")
	require.Equal(t, StateAskingOracle, f.handle(t, "prvo pitanje"))

	type result struct {
		replies []convo.Turn
		err     error
	}
	out := make(chan result, 1)
	go func() {
		_, replies, err := f.a.Exchange(ctx, "drugo pitanje")
		out <- result{replies, err}
	}()

	require.Eventually(t, func() bool { return len(f.oracle.questions()) == 2 }, time.Second, time.Millisecond)
	close(gate)

	r := <-out
	require.NoError(t, r.err)
	assert.Equal(t, []string{"odgovor: drugo pitanje"}, texts(r.replies),
		"the earlier question's answer lands meanwhile but is not part of this reply")
	assert.Equal(t, []string{
		"prvo pitanje", "drugo pitanje", "odgovor: prvo pitanje", "odgovor: drugo pitanje",
	}, texts(f.a.Turns()))
}

func TestExchangeCommandAndChooseReply(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	st, replies, err := f.a.Exchange(ctx, "pozovi Marko")
	require.NoError(t, err)
	assert.Equal(t, StateStaged, st)
	assert.Equal(t, []string{askChannel}, texts(replies))

	replies, err = f.a.ChooseReply(ctx, "telefon")
	require.NoError(t, err)
	assert.Equal(t, []string{"Pozivam Marko preko phone"}, texts(replies))

	_, err = f.a.ChooseReply(ctx, "telefon")
	assert.ErrorIs(t, err, pending.ErrNothingPending)

	_, replies, err = f.a.Exchange(ctx, "   ")
	require.NoError(t, err)
	assert.Empty(t, replies)
}

func TestExchangeGivesUpWaitingButKeepsAnswer(t *testing.T) {
	f := newFixture(t, true)
	gate := f.oracle.gate("spor odgovor")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	st, replies, err := f.a.Exchange(ctx, "spor odgovor")
	require.NoError(t, err)
	assert.Equal(t, StateAskingOracle, st)
	assert.Empty(t, replies)
	assert.True(t, f.a.Typing())

	close(gate)
	f.wait(t)
	assert.False(t, f.a.Typing())
	assert.Equal(t, "odgovor: spor odgovor", lastText(t, f.a))
}
