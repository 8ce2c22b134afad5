package util

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxLogFieldLen caps user-supplied values copied into log fields.
const MaxLogFieldLen = 200

var controlChars = regexp.MustCompile(`[\x00-\x1F\x7F]+`)

// SanitizeForLog collapses control characters and newlines in user content to
// single spaces and truncates the result, so submitted usernames or reasons
// cannot forge log lines.
func SanitizeForLog(s string) string {
	if s == "" {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = controlChars.ReplaceAllString(s, " ")
	if len(s) > MaxLogFieldLen {
		cut := MaxLogFieldLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	return s
}
