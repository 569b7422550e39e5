package convo

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderBot
}

// Turn is one message of the conversation. Turns are values and are never
// mutated after creation.
type Turn struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTurn stamps text with a time-ordered id.
func NewTurn(sender Sender, text string, now time.Time) (Turn, error) {
	if !sender.Valid() {
		return Turn{}, fmt.Errorf("invalid sender %q", sender)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Turn{}, fmt.Errorf("turn id: %w", err)
	}

	return Turn{
		ID:        id.String(),
		Text:      text,
		Sender:    sender,
		Timestamp: now.UTC(),
	}, nil
}

func (t Turn) FromUser() bool { return t.Sender == SenderUser }
