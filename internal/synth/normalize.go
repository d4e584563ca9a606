package synth

import (
	"regexp"
	"strings"
)

// contractions rewrites stiff written forms into how people actually talk.
// Order matters: longer phrases first so their substrings do not fire early.
var contractions = []struct{ from, to string }{
	{"do not", "don't"},
	{"does not", "doesn't"},
	{"did not", "didn't"},
	{"cannot", "can't"},
	{"can not", "can't"},
	{"will not", "won't"},
	{"would not", "wouldn't"},
	{"should not", "shouldn't"},
	{"could not", "couldn't"},
	{"is not", "isn't"},
	{"are not", "aren't"},
	{"was not", "wasn't"},
	{"were not", "weren't"},
	{"have not", "haven't"},
	{"has not", "hasn't"},
	{"I am", "I'm"},
	{"you are", "you're"},
	{"we are", "we're"},
	{"they are", "they're"},
	{"it is", "it's"},
	{"that is", "that's"},
	{"there is", "there's"},
	{"I will", "I'll"},
	{"you will", "you'll"},
	{"we will", "we'll"},
	{"I would", "I'd"},
	{"you would", "you'd"},
}

// formalFillers are phrases that read fine but sound robotic when spoken.
var formalFillers = []string{
	"please note that ",
	"Please note that ",
	"it is important to note that ",
	"It is important to note that ",
	"kindly ",
	"Kindly ",
	"as per your request, ",
	"As per your request, ",
}

var (
	whitespaceRe  = regexp.MustCompile(`\s+`)
	punctSpaceRe  = regexp.MustCompile(`([.!?;:,])([^\s'"”)\]])`)
	ellipsisRe    = regexp.MustCompile(`\.{4,}`)
	repeatPunctRe = regexp.MustCompile(`([!?]){2,}`)
)

// Normalize applies a deterministic prosody rewrite: collapse whitespace,
// drop formal fillers, expand to contractions, and make sure punctuation is
// followed by a space so the engine inserts a natural pause. Purely textual,
// no model involved.
func Normalize(text string) string {
	out := strings.TrimSpace(text)
	if out == "" {
		return out
	}

	out = whitespaceRe.ReplaceAllString(out, " ")
	for _, filler := range formalFillers {
		out = strings.ReplaceAll(out, filler, "")
	}
	for _, c := range contractions {
		out = strings.ReplaceAll(out, c.from, c.to)
		out = strings.ReplaceAll(out, capitalize(c.from), capitalize(c.to))
	}
	out = ellipsisRe.ReplaceAllString(out, "...")
	out = repeatPunctRe.ReplaceAllString(out, "$1")
	out = punctSpaceRe.ReplaceAllString(out, "$1 $2")

	return strings.TrimSpace(out)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
