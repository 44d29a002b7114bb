// Package template renders automation message templates.
//
// Placeholders are written as {identifier}. Substitution is permissive:
// vocabulary keys resolve through their backing field (or to "" when the
// field is absent) and any other identifier that names a string or numeric
// context entry is passed through. Validation is strict and only accepts
// the vocabulary, since the runtime context is unknown when a rule is saved.
package template

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/onurcolak/event-automation-service/internal/domain"
)

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Renderer substitutes and validates templates against one vocabulary.
type Renderer struct {
	vocab *Vocabulary
}

func NewRenderer(vocab *Vocabulary) *Renderer {
	return &Renderer{vocab: vocab}
}

func (r *Renderer) Vocabulary() *Vocabulary {
	return r.vocab
}

type ValidationResult struct {
	Valid          bool     `json:"valid"`
	Errors         []string `json:"errors"`
	VariablesFound []string `json:"variablesFound"`
}

// Substitute renders tmpl using ctx. It never fails and does not modify ctx.
func (r *Renderer) Substitute(tmpl string, ctx map[string]any) string {
	if tmpl == "" {
		return ""
	}

	return placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := match[1 : len(match)-1]

		if variable, ok := r.vocab.Lookup(name); ok {
			return r.resolve(variable, ctx)
		}

		if s, ok := domain.ScalarString(ctx[name]); ok {
			return s
		}

		return match
	})
}

func (r *Renderer) resolve(variable Variable, ctx map[string]any) string {
	value, ok := ctx[variable.Field]
	if !ok || value == nil {
		return ""
	}

	if variable.IsDate {
		return FormatDate(value, r.vocab.DateLayout())
	}

	s, _ := domain.ScalarString(value)
	return s
}

// Validate reports every placeholder outside the vocabulary, in order of
// first occurrence.
func (r *Renderer) Validate(tmpl string) ValidationResult {
	result := ValidationResult{
		Errors:         []string{},
		VariablesFound: []string{},
	}

	seen := make(map[string]bool)
	for _, m := range placeholderPattern.FindAllStringSubmatch(tmpl, -1) {
		name := m[1]
		if seen[name] {
			continue
		}
		seen[name] = true

		result.VariablesFound = append(result.VariablesFound, name)
		if _, ok := r.vocab.Lookup(name); !ok {
			result.Errors = append(result.Errors, fmt.Sprintf("unknown variable: {%s}", name))
		}
	}

	result.Valid = len(result.Errors) == 0
	return result
}

// Preview renders tmpl against the vocabulary's sample context.
func (r *Renderer) Preview(tmpl string) string {
	return r.Substitute(tmpl, r.vocab.Sample())
}

var dateInputLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// FormatDate renders v with layout. Strings are parsed as RFC 3339 or
// ISO dates and keep the calendar date as written; unparsable input is
// returned unchanged.
func FormatDate(v any, layout string) string {
	switch t := v.(type) {
	case time.Time:
		return t.Format(layout)
	case *time.Time:
		if t == nil {
			return ""
		}
		return t.Format(layout)
	}

	raw, ok := domain.ScalarString(v)
	if !ok {
		return ""
	}

	trimmed := strings.TrimSpace(raw)
	for _, in := range dateInputLayouts {
		if parsed, err := time.Parse(in, trimmed); err == nil {
			return parsed.Format(layout)
		}
	}

	return raw
}
