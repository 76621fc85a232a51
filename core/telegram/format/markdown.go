// Package format holds text helpers for outgoing Telegram messages.
package format

import (
	"fmt"
	"strings"
)

// Version selects a Telegram markdown dialect.
type Version int

const (
	MarkdownV1 Version = 1
	MarkdownV2 Version = 2
)

var escapers = map[Version]*strings.Replacer{
	MarkdownV1: backslashed("_*`["),
	MarkdownV2: backslashed("_*[]()~`>#+-=|{}.!\\"),
}

func backslashed(specials string) *strings.Replacer {
	pairs := make([]string, 0, 2*len(specials))
	for _, r := range specials {
		pairs = append(pairs, string(r), `\`+string(r))
	}
	return strings.NewReplacer(pairs...)
}

// EscapeMarkdown makes user text render literally under the given dialect.
func EscapeMarkdown(text string, v Version) (string, error) {
	r, ok := escapers[v]
	if !ok {
		return "", fmt.Errorf("format: unsupported markdown version %d", v)
	}
	return r.Replace(text), nil
}

// MustEscapeV1 escapes text for legacy Markdown, the dialect replies use.
func MustEscapeV1(text string) string {
	return escapers[MarkdownV1].Replace(text)
}
