package assistant

import (
	"context"
	"errors"
	log "log/slog"
	"sync"

	"djuka/internal/convo"
	"djuka/internal/oracle"
)

// answer is a future for one oracle call.
type answer struct {
	ctx  context.Context
	done chan struct{}
	text string
	err  error

	// logged is closed once the answer is in the log; turn is zero if the
	// append failed.
	logged chan struct{}
	turn   convo.Turn
}

// ask starts the oracle call and queues its future. The queue is drained in
// order by appendAnswers, so a slow first answer holds back faster later
// ones. Caller holds a.mu.
func (a *Assistant) ask(ctx context.Context, question string) {
	// The answer outlives the caller: a cancelled request or a stopped
	// capture must not drop it.
	ctx = context.WithoutCancel(ctx)

	ans := &answer{ctx: ctx, done: make(chan struct{}), logged: make(chan struct{})}
	a.asked = ans
	a.flight.begin()

	go func() {
		defer close(ans.done)
		if a.oracle == nil {
			return
		}
		ans.text, ans.err = a.oracle.Ask(ctx, question)
	}()

	a.answers <- ans
}

func (a *Assistant) appendAnswers() {
	defer close(a.stopped)

	for ans := range a.answers {
		<-ans.done

		text := ans.text
		switch {
		case errors.Is(ans.err, oracle.ErrEmptyAnswer):
			text = replyDemoAnswer
		case ans.err != nil:
			log.Error("Oracle failed", "err", ans.err)
			text = replyOracleSorry
		case text == "":
			text = replyDemoAnswer
		}

		if t, err := a.log.Append(ans.ctx, convo.SenderBot, text); err != nil {
			log.Error("Failed to append answer", "err", err)
		} else {
			ans.turn = t
			a.speak(text)
		}
		close(ans.logged)
		a.flight.end()
	}
}

// Typing reports whether an oracle answer is still outstanding.
func (a *Assistant) Typing() bool {
	return a.flight.busy()
}

// Wait blocks until every oracle answer asked for so far is in the log.
func (a *Assistant) Wait(ctx context.Context) error {
	select {
	case <-a.flight.wait():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close refuses further turns and returns once queued answers are logged.
func (a *Assistant) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		<-a.stopped
		return nil
	}
	a.closed = true
	close(a.answers)
	a.mu.Unlock()

	<-a.stopped
	return nil
}

// flight counts outstanding answers. idle is closed whenever the count is
// zero.
type flight struct {
	mu   sync.Mutex
	n    int
	idle chan struct{}
}

func (f *flight) begin() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.n == 0 {
		f.idle = make(chan struct{})
	}
	f.n++
}

func (f *flight) end() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n--
	if f.n == 0 {
		close(f.idle)
	}
}

func (f *flight) busy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n > 0
}

func (f *flight) wait() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.idle
}

func closedChan() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}
