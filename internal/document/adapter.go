package document

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrEmptyDocument is returned for empty or whitespace-only input.
var ErrEmptyDocument = errors.New("schema document cannot be empty")

const fallbackMessage = "unable to parse schema document"

// Diagnostic is a fatal, single-line parse error.
type Diagnostic struct {
	Message string
	Line    int
	Err     error
}

func (d *Diagnostic) Error() string {
	if d.Line > 0 {
		return fmt.Sprintf("line %d: %s", d.Line, d.Message)
	}
	return d.Message
}

func (d *Diagnostic) Unwrap() error {
	return d.Err
}

// Parser turns schema text into a Document.
type Parser interface {
	Parse(text string) (*Document, error)
}

// Adapter wraps a Parser so that every failure surfaces as a *Diagnostic.
type Adapter struct {
	parser Parser
}

func NewAdapter(p Parser) *Adapter {
	return &Adapter{parser: p}
}

// DefaultAdapter parses the YAML schema language.
var DefaultAdapter = NewAdapter(YAMLParser{})

// Parse parses text with the DefaultAdapter.
func Parse(text string) (*Document, error) {
	return DefaultAdapter.Parse(text)
}

func (a *Adapter) Parse(text string) (doc *Document, err error) {
	if strings.TrimSpace(text) == "" {
		return nil, &Diagnostic{Message: ErrEmptyDocument.Error(), Err: ErrEmptyDocument}
	}
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = &Diagnostic{Message: fallbackMessage, Err: fmt.Errorf("parser panic: %v", r)}
		}
	}()
	doc, err = a.parser.Parse(text)
	if err != nil {
		return nil, normalize(err)
	}
	if doc == nil {
		return nil, &Diagnostic{Message: fallbackMessage}
	}
	return doc, nil
}

func normalize(err error) *Diagnostic {
	var d *Diagnostic
	if errors.As(err, &d) {
		return d
	}
	var te *yaml.TypeError
	if errors.As(err, &te) && len(te.Errors) > 0 {
		return &Diagnostic{Message: firstLine(te.Errors[0]), Err: err}
	}
	if msg := firstLine(err.Error()); msg != "" {
		return &Diagnostic{Message: msg, Err: err}
	}
	return &Diagnostic{Message: fallbackMessage, Err: err}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	return s
}
