// Package nlu holds the keyword rules of the assistant: the activation gate,
// the intent classifier and the slot extractors. Matching is plain substring
// and token comparison over a fixed Serbian phrase set.
package nlu

import (
	"fmt"
	"strings"
)

type Intent int

const (
	FreeForm Intent = iota
	Call
	SendMessage
	Navigate
	Search
)

func (i Intent) String() string {
	switch i {
	case Call:
		return "call"
	case SendMessage:
		return "send_message"
	case Navigate:
		return "navigate"
	case Search:
		return "search"
	default:
		return "free_form"
	}
}

type Rule struct {
	Intent   Intent
	Keywords []string
}

// Classifier tests rules in order; the first rule with a keyword contained
// in the input wins. Input matching no rule is FreeForm.
type Classifier struct {
	rules []Rule
}

func NewClassifier(rules ...Rule) (*Classifier, error) {
	for _, r := range rules {
		if r.Intent == FreeForm {
			return nil, fmt.Errorf("free_form is the fallback and takes no keywords")
		}
		if len(r.Keywords) == 0 {
			return nil, fmt.Errorf("rule %s has no keywords", r.Intent)
		}
		for _, kw := range r.Keywords {
			if strings.TrimSpace(kw) == "" {
				return nil, fmt.Errorf("rule %s has an empty keyword", r.Intent)
			}
		}
	}
	return &Classifier{rules: append([]Rule(nil), rules...)}, nil
}

func MustClassifier(rules ...Rule) *Classifier {
	c, err := NewClassifier(rules...)
	if err != nil {
		panic(err)
	}
	return c
}

// Classify expects already lower-cased text.
func (c *Classifier) Classify(lower string) Intent {
	for _, r := range c.rules {
		if containsAny(lower, r.Keywords) {
			return r.Intent
		}
	}
	return FreeForm
}

var defaultClassifier = MustClassifier(
	Rule{Call, []string{"pozovi", "nazovi"}},
	Rule{SendMessage, []string{"pošalji poruku", "posalji poruku"}},
	Rule{Navigate, []string{"navigiraj", "vodi me"}},
	Rule{Search, []string{"pretraži", "traži"}},
)

// Classify runs the built-in rule set.
func Classify(lower string) Intent {
	return defaultClassifier.Classify(lower)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
