package errors

import (
	"fmt"
	"os"
	"strings"
)

// Category groups error codes by the part of hotshim that reports them.
type Category string

const (
	CategoryConfig   Category = "config"
	CategoryMangle   Category = "mangle"
	CategoryRegistry Category = "registry"
	CategoryBundle   Category = "bundle"
	CategoryPublish  Category = "publish"
	CategoryCLI      Category = "cli"
)

// Location points at a position in a source file.
type Location struct {
	File   string
	Line   int
	Column int
}

func (l *Location) String() string {
	if l == nil {
		return ""
	}
	s := fmt.Sprintf("%s:%d", l.File, l.Line)
	if l.Column > 0 {
		s += fmt.Sprintf(":%d", l.Column)
	}
	return s
}

// SourceLine is one numbered line of a source excerpt.
type SourceLine struct {
	Number int
	Text   string
}

// excerptRadius is the number of lines shown on each side of a location.
const excerptRadius = 2

// Error is a coded hotshim error.
type Error struct {
	Code     string
	Category Category
	Message  string

	// Detail explains the failure, e.g. esbuild's formatted messages.
	Detail string

	Location *Location

	// Excerpt holds the lines around Location, when the file was readable.
	Excerpt []SourceLine

	Suggestion string
	Wrapped    error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Code != "" {
		b.WriteString(e.Code)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Wrapped != nil {
		b.WriteString(": ")
		b.WriteString(e.Wrapped.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

// WithLocation attaches a source position and an excerpt of the file
// around it.
func (e *Error) WithLocation(file string, line, column int) *Error {
	e.Location = &Location{File: file, Line: line, Column: column}
	e.Excerpt = sourceExcerpt(file, line, excerptRadius)
	return e
}

func (e *Error) WithSuggestion(s string) *Error {
	e.Suggestion = s
	return e
}

func (e *Error) WithDetail(d string) *Error {
	e.Detail = d
	return e
}

func (e *Error) Wrap(err error) *Error {
	e.Wrapped = err
	return e
}

// sourceExcerpt returns lines line-radius through line+radius of file,
// clipped to the file. It returns nil when the file cannot be read or line
// is out of range.
func sourceExcerpt(file string, line, radius int) []SourceLine {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil
	}
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	if line < 1 || line > len(lines) {
		return nil
	}

	from := max(line-radius, 1)
	to := min(line+radius, len(lines))
	excerpt := make([]SourceLine, 0, to-from+1)
	for n := from; n <= to; n++ {
		excerpt = append(excerpt, SourceLine{Number: n, Text: lines[n-1]})
	}
	return excerpt
}

// New returns an error for a registered code. Unregistered codes get a
// generic message.
func New(code string) *Error {
	t, ok := Lookup(code)
	if !ok {
		return &Error{Code: code, Message: "Unknown error"}
	}
	return &Error{
		Code:     code,
		Category: t.Category,
		Message:  t.Message,
		Detail:   t.Detail,
	}
}
