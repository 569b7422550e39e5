package tts

import "strings"

// Language maps a BCP 47 locale such as "sr-RS" to the espeak voice name.
func Language(locale string) string {
	lang, _, _ := strings.Cut(strings.TrimSpace(locale), "-")
	lang = strings.ToLower(lang)
	if lang == "" {
		return "sr"
	}
	return lang
}

// scale applies a relative factor (1.0 = engine default) to base, keeping
// the result within what espeak accepts.
func scale(base int, factor float64) int {
	if factor <= 0 {
		factor = 1
	}
	v := int(float64(base)*factor + 0.5)
	if v < 1 {
		return 1
	}
	if v > 4*base {
		return 4 * base
	}
	return v
}
