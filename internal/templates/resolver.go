// Package templates resolves message template keys to rendered text.
package templates

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// ErrTemplateNotFound is returned when a template key is unknown.
var ErrTemplateNotFound = errors.New("template not found")

// Resolver renders a message body for a template key and variable set.
type Resolver interface {
	Resolve(key string, vars map[string]string) (string, error)
}

// Set is a Resolver backed by embedded text templates.
type Set struct {
	templates map[string]*template.Template
}

// Known template keys. One file per key under templates/.
var templateKeys = []string{
	"appointment_reminder",
	"appointment_confirmation",
	"appointment_cancelled",
	"campaign_generic",
	"recall",
}

// NewSet loads all embedded templates.
func NewSet() (*Set, error) {
	funcMap := template.FuncMap{
		"title":      titleCase,
		"upper":      strings.ToUpper,
		"lower":      strings.ToLower,
		"formatDate": formatDate,
		"formatTime": formatClock,
	}

	s := &Set{templates: make(map[string]*template.Template, len(templateKeys))}

	for _, key := range templateKeys {
		filename := fmt.Sprintf("templates/%s.tmpl", key)

		content, err := templatesFS.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", filename, err)
		}

		tmpl, err := template.New(key).Funcs(funcMap).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", key, err)
		}

		s.templates[key] = tmpl
	}

	return s, nil
}

// Resolve renders the template identified by key with the given variables.
// Missing variables render as empty strings.
func (s *Set) Resolve(key string, vars map[string]string) (string, error) {
	tmpl, ok := s.templates[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, key)
	}

	if vars == nil {
		vars = map[string]string{}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("execute template %s: %w", key, err)
	}

	return strings.TrimSpace(buf.String()), nil
}

// Keys returns the known template keys, for operational inspection.
func (s *Set) Keys() []string {
	keys := make([]string, 0, len(s.templates))
	for k := range s.templates {
		keys = append(keys, k)
	}
	return keys
}

// Template functions

var titleCaser = cases.Title(language.BrazilianPortuguese)

func titleCase(s string) string {
	return titleCaser.String(s)
}

// formatDate renders an RFC 3339 date or datetime as dd/mm/yyyy.
// Unparseable input passes through unchanged.
func formatDate(s string) string {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("02/01/2006")
		}
	}
	return s
}

// formatClock renders an RFC 3339 datetime as HH:MM.
func formatClock(s string) string {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Format("15:04")
	}
	return s
}
