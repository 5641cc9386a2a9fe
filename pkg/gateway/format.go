package gateway

import "strings"

// Formatter cleans raw model output before it is persisted. The synchronizer
// treats it as a black box.
type Formatter interface {
	Clean(text string) string
}

// DefaultFormatter normalizes line endings and strips surrounding
// whitespace, leaving the body of the completion untouched.
type DefaultFormatter struct{}

var _ Formatter = (*DefaultFormatter)(nil)

func (DefaultFormatter) Clean(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.TrimSpace(text)
}

// FormatterFunc adapts a function to the Formatter interface.
type FormatterFunc func(string) string

func (f FormatterFunc) Clean(text string) string {
	return f(text)
}
