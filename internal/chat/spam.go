package chat

import (
	"regexp"
	"strings"
	"unicode"
)

// urlPattern matches http/https URLs, www. URLs and bare domains with a
// path. The bare-domain form needs a trailing "/" so version strings like
// "v2.0" and decimals like "3.14" pass.
var urlPattern = regexp.MustCompile(`(?i)(https?://\S+|www\.\S+|\S+\.(com|net|org|io|co|xyz|info|biz|ru|cn|tk|ml|ga|cf)/\S*)`)

// spamCheck pairs a detector with the reason reported to the sender.
type spamCheck struct {
	name   string
	reason string
	match  func(string) bool
}

// spamChecks run in order; the first match wins.
var spamChecks = []spamCheck{
	{name: "url", reason: "links are not allowed in messages", match: urlPattern.MatchString},
	{name: "char_flood", reason: "message repeats the same character too many times", match: hasCharFlood},
	{name: "word_flood", reason: "message repeats the same word too many times", match: hasWordFlood},
}

func detectSpam(text string) (spamCheck, bool) {
	for _, sc := range spamChecks {
		if sc.match(text) {
			return sc, true
		}
	}
	return spamCheck{}, false
}

// hasCharFlood reports 10 or more consecutive identical characters. RE2 has
// no backreferences, so this is a linear scan.
func hasCharFlood(text string) bool {
	const threshold = 10

	count := 1
	prev := rune(-1)
	for _, r := range text {
		if r == prev {
			count++
			if count >= threshold {
				return true
			}
		} else {
			count = 1
			prev = r
		}
	}
	return false
}

// hasWordFlood reports the same word 5 or more times in a row,
// case-insensitively.
func hasWordFlood(text string) bool {
	const threshold = 5

	words := strings.FieldsFunc(text, unicode.IsSpace)
	if len(words) < threshold {
		return false
	}

	count := 1
	prev := ""
	for _, w := range words {
		lower := strings.ToLower(w)
		if lower == prev {
			count++
			if count >= threshold {
				return true
			}
		} else {
			count = 1
			prev = lower
		}
	}
	return false
}
