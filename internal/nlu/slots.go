package nlu

import (
	"regexp"
	"strings"
)

// Trigger phrases per extractor, as whitespace separated tokens. Longer
// phrases are listed first so "pošalji poruku Ana" resolves to Ana.
var (
	contactTriggers = map[Intent][][]string{
		Call:        phrases("pozovi", "nazovi"),
		SendMessage: phrases("pošalji poruku", "posalji poruku", "pošalji", "posalji"),
	}
	destinationTriggers = phrases("navigiraj", "vodi me", "vodi")
	queryTriggers       = phrases("pretraži", "pretrazi", "traži", "trazi")

	messageRe = regexp.MustCompile(`(?i)poruku\s+(.+)`)
)

func phrases(ps ...string) [][]string {
	out := make([][]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, strings.Fields(p))
	}
	return out
}

// Contact returns the token right after the intent's trigger phrase.
func Contact(intent Intent, text string) (string, bool) {
	triggers, ok := contactTriggers[intent]
	if !ok {
		return "", false
	}

	tokens := strings.Fields(text)
	end, ok := afterTrigger(tokens, triggers)
	if !ok || end >= len(tokens) {
		return "", false
	}
	return tokens[end], true
}

// Message captures everything after "poruku". It does not know where the
// contact name ends, so the contact is usually part of the result.
func Message(text string) (string, bool) {
	m := messageRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	body := strings.TrimSpace(m[1])
	return body, body != ""
}

func Destination(text string) (string, bool) {
	return rest(text, destinationTriggers)
}

func Query(text string) (string, bool) {
	return rest(text, queryTriggers)
}

func rest(text string, triggers [][]string) (string, bool) {
	tokens := strings.Fields(text)
	end, ok := afterTrigger(tokens, triggers)
	if !ok || end >= len(tokens) {
		return "", false
	}
	return strings.Join(tokens[end:], " "), true
}

// afterTrigger finds the earliest token position where one of the trigger
// phrases starts and returns the index just past it. At a given position
// triggers are tried in declaration order.
func afterTrigger(tokens []string, triggers [][]string) (int, bool) {
	for i := range tokens {
		for _, t := range triggers {
			if matchAt(tokens, i, t) {
				return i + len(t), true
			}
		}
	}
	return 0, false
}

func matchAt(tokens []string, i int, phrase []string) bool {
	if len(phrase) == 0 || i+len(phrase) > len(tokens) {
		return false
	}
	for j, p := range phrase {
		if !strings.EqualFold(tokens[i+j], p) {
			return false
		}
	}
	return true
}
