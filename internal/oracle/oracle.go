// Package oracle answers free-form questions through a hosted language
// model. Answers are short and in Serbian, since they are spoken back.
package oracle

import (
	"context"
	"errors"
)

const systemPrompt = `
You are Djuka, a friendly voice assistant.
Answer the user's question directly and briefly, in at most three sentences.
Always answer in Serbian (latin script), whatever language the question uses.
Do not use markdown, lists or emoji: the answer is read aloud.
`

var ErrEmptyAnswer = errors.New("empty answer")

type Oracle interface {
	Ask(ctx context.Context, question string) (string, error)
}

// Func adapts a plain function to Oracle.
type Func func(ctx context.Context, question string) (string, error)

func (f Func) Ask(ctx context.Context, question string) (string, error) {
	return f(ctx, question)
}
