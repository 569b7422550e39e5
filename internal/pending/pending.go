package pending

import (
	"errors"
	"fmt"
	log "log/slog"

	"djuka/internal/action"
)

var ErrNothingPending = errors.New("no pending action")

// Action is a call or message that still needs a channel.
type Action struct {
	Kind    action.Kind
	Contact string
	Message string
}

func (a Action) valid() error {
	switch a.Kind {
	case action.KindCall:
	case action.KindMessage:
		if a.Message == "" {
			return errors.New("message action without body")
		}
	default:
		return fmt.Errorf("kind %q does not take a channel", a.Kind)
	}
	if a.Contact == "" {
		return errors.New("pending action without contact")
	}
	return nil
}

// Coordinator holds at most one pending action. It is not safe for
// concurrent use; the owner serializes access.
type Coordinator struct {
	current *Action
}

func New() *Coordinator {
	return &Coordinator{}
}

// Stage makes a the only pending action. A previous undecided action is
// dropped without notice.
func (c *Coordinator) Stage(a Action) error {
	if err := a.valid(); err != nil {
		return err
	}
	if c.current != nil {
		log.Debug("Replacing pending action", "old", c.current.Kind, "old_contact", c.current.Contact, "new", a.Kind)
	}
	c.current = &a
	return nil
}

// Resolve turns the pending action into an executable one on channel and
// clears the slot. An unknown channel keeps the action pending.
func (c *Coordinator) Resolve(channel string) (action.Executable, error) {
	if c.current == nil {
		return action.Executable{}, ErrNothingPending
	}

	ch, err := action.ParseChannel(channel)
	if err != nil {
		return action.Executable{}, err
	}

	a := *c.current
	c.current = nil

	return action.Executable{
		Kind:    a.Kind,
		Contact: a.Contact,
		Message: a.Message,
		Channel: ch,
	}, nil
}

// Cancel drops the pending action and reports whether there was one.
func (c *Coordinator) Cancel() bool {
	had := c.current != nil
	c.current = nil
	return had
}

func (c *Coordinator) Pending() (Action, bool) {
	if c.current == nil {
		return Action{}, false
	}
	return *c.current, true
}
