package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"strings"
)

const (
	ansiReset = "\033[0m"
	ansiBold  = "\033[1m"
	ansiRed   = "\033[31m"
	ansiCyan  = "\033[36m"
	ansiGray  = "\033[90m"
)

// detailWidth is the column at which Format wraps detail text.
const detailWidth = 72

var useColor = true

// SetColor turns ANSI colors in Format and Print on or off.
func SetColor(enabled bool) {
	useColor = enabled
}

func paint(style, s string) string {
	if !useColor || s == "" {
		return s
	}
	return style + s + ansiReset
}

// Format renders the error for a terminal: a headline, the source excerpt
// with the failing column marked, the detail, the cause and the hint.
func (e *Error) Format() string {
	var b strings.Builder

	headline := "ERROR"
	if e.Code != "" {
		headline += " " + e.Code
	}
	fmt.Fprintf(&b, "\n%s %s\n\n", paint(ansiBold+ansiRed, headline+":"), paint(ansiBold, e.Message))

	if e.Location != nil {
		fmt.Fprintf(&b, "  %s\n\n", paint(ansiCyan, e.Location.String()))
		if len(e.Excerpt) > 0 {
			e.writeExcerpt(&b)
			b.WriteString("\n")
		}
	}

	if e.Detail != "" {
		for _, line := range wrapText(e.Detail, detailWidth) {
			fmt.Fprintf(&b, "  %s\n", line)
		}
		b.WriteString("\n")
	}
	if e.Wrapped != nil {
		fmt.Fprintf(&b, "  %s %s\n\n", paint(ansiGray, "Cause:"), e.Wrapped.Error())
	}
	if e.Suggestion != "" {
		fmt.Fprintf(&b, "  %s %s\n\n", paint(ansiCyan, "Hint:"), e.Suggestion)
	}
	return b.String()
}

func (e *Error) writeExcerpt(b *strings.Builder) {
	for _, line := range e.Excerpt {
		marker := "  "
		if line.Number == e.Location.Line {
			marker = paint(ansiRed, "> ")
		}
		fmt.Fprintf(b, "  %s%4d %s %s\n", marker, line.Number, paint(ansiGray, "|"), line.Text)

		if line.Number == e.Location.Line && e.Location.Column > 0 {
			pad := strings.Repeat(" ", e.Location.Column-1)
			fmt.Fprintf(b, "  %6s %s %s%s\n", "", paint(ansiGray, "|"), pad, paint(ansiRed, "^"))
		}
	}
}

// FormatCompact renders the error on one line without colors, for log
// records: "file:line:col: CODE: message".
func (e *Error) FormatCompact() string {
	parts := make([]string, 0, 3)
	if e.Location != nil {
		parts = append(parts, e.Location.String())
	}
	if e.Code != "" {
		parts = append(parts, e.Code)
	}
	parts = append(parts, e.Message)
	return strings.Join(parts, ": ")
}

// wrapText breaks text into lines of at most width bytes at spaces. Words
// longer than width get a line of their own. Existing newlines are kept.
func wrapText(text string, width int) []string {
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		line := ""
		for _, word := range strings.Fields(para) {
			switch {
			case line == "":
				line = word
			case len(line)+1+len(word) <= width:
				line += " " + word
			default:
				lines = append(lines, line)
				line = word
			}
		}
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// Print writes err to w. An *Error anywhere in the chain is rendered with
// Format; anything else gets a single headline.
func Print(w io.Writer, err error) {
	var e *Error
	if stderrors.As(err, &e) {
		io.WriteString(w, e.Format())
		return
	}
	fmt.Fprintf(w, "\n%s %s\n\n", paint(ansiBold+ansiRed, "ERROR:"), err.Error())
}
