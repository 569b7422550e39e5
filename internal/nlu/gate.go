package nlu

import "strings"

type Signal int

const (
	SignalNone Signal = iota
	SignalActivate
	SignalDeactivate
)

func (s Signal) String() string {
	switch s {
	case SignalActivate:
		return "activate"
	case SignalDeactivate:
		return "deactivate"
	default:
		return "none"
	}
}

var (
	activatePhrases   = []string{"gdje si djuka", "gdje si đuka"}
	deactivatePhrases = []string{"hvala djuka", "hvala đuka"}
)

// Evaluate reports whether text carries an activation or deactivation
// phrase. The activate set is checked first.
func Evaluate(text string) Signal {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, activatePhrases):
		return SignalActivate
	case containsAny(lower, deactivatePhrases):
		return SignalDeactivate
	default:
		return SignalNone
	}
}
