// Package documents renders payer-facing documents from resolution records. Templates are
// static, embedded and keyed by therapy class; a class without a template is a configuration
// error.
package documents

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/gdmt-audit-server/internal/domain"
	"github.com/gdmt-audit-server/internal/ruleset"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

const classPrefix = "class."

var titles = map[domain.DocumentKind]string{
	domain.DocumentPAForm:           "Prior authorization request",
	domain.DocumentAppealLetter:     "Appeal letter",
	domain.DocumentExceptionRequest: "Coverage exception request",
}

var funcs = template.FuncMap{
	"num":  formatNumber,
	"date": formatDate,
	"join": func(items []string) string { return strings.Join(items, ", ") },
}

// Registry holds the parsed layouts and per-class justification blocks.
type Registry struct {
	root *template.Template
}

// NewRegistry parses the embedded templates.
func NewRegistry() (*Registry, error) {
	return parseRegistry(templateFS, "templates/*.tmpl")
}

func parseRegistry(fsys fs.FS, pattern string) (*Registry, error) {
	root, err := template.New("documents").Funcs(funcs).Option("missingkey=error").ParseFS(fsys, pattern)
	if err != nil {
		return nil, fmt.Errorf("parse document templates: %w", err)
	}
	return &Registry{root: root}, nil
}

// Classes returns the therapy classes that have a template, sorted.
func (r *Registry) Classes() []domain.TherapyClass {
	var out []domain.TherapyClass
	for _, t := range r.root.Templates() {
		if name := t.Name(); strings.HasPrefix(name, classPrefix) {
			out = append(out, domain.TherapyClass(strings.TrimPrefix(name, classPrefix)))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// HasTemplate reports whether the class has a justification block.
func (r *Registry) HasTemplate(class domain.TherapyClass) bool {
	return r.root.Lookup(classPrefix+string(class)) != nil
}

// Template is the pair of templates needed to render one document.
type Template struct {
	Kind   domain.DocumentKind
	Class  domain.TherapyClass
	layout *template.Template
	class  *template.Template
}

// Lookup returns the template for the document kind and class.
func (r *Registry) Lookup(kind domain.DocumentKind, class domain.TherapyClass) (Template, error) {
	layout := r.root.Lookup(string(kind))
	if layout == nil || kind == domain.DocumentNone {
		return Template{}, fmt.Errorf("%w: document kind %q", domain.ErrTemplateNotFound, kind)
	}
	block := r.root.Lookup(classPrefix + string(class))
	if block == nil {
		return Template{}, fmt.Errorf("%w: therapy class %s", domain.ErrTemplateNotFound, class)
	}
	return Template{Kind: kind, Class: class, layout: layout, class: block}, nil
}

// MustTemplate is Lookup that panics. A missing template means the ruleset and the template
// set disagree, which no retry can fix.
func (r *Registry) MustTemplate(kind domain.DocumentKind, class domain.TherapyClass) Template {
	t, err := r.Lookup(kind, class)
	if err != nil {
		panic(err)
	}
	return t
}

// Validate checks that every class in the ruleset has a template.
func (r *Registry) Validate(rs *ruleset.Ruleset) error {
	var missing []string
	for _, class := range rs.Classes() {
		if !r.HasTemplate(class) {
			missing = append(missing, string(class))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: no template for %s", domain.ErrTemplateNotFound, strings.Join(missing, ", "))
	}
	return nil
}

// Render executes the template against data.
func (t Template) Render(data FormData) (string, error) {
	var buf bytes.Buffer
	if err := t.class.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s justification: %w", t.Class, err)
	}
	data.Justification = buf.String()

	buf.Reset()
	if err := t.layout.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Kind, err)
	}
	return buf.String(), nil
}

// Generate renders one document for data. It panics when the class has no template.
func (r *Registry) Generate(kind domain.DocumentKind, data FormData, stepOrder int) (domain.GeneratedDocument, error) {
	content, err := r.MustTemplate(kind, data.TherapyClass).Render(data)
	if err != nil {
		return domain.GeneratedDocument{}, err
	}
	return domain.GeneratedDocument{
		Kind:        kind,
		Title:       fmt.Sprintf("%s: %s", titles[kind], data.ClassLabel),
		Content:     content,
		StepOrder:   stepOrder,
		GeneratedAt: data.PreparedAt,
	}, nil
}

func formatNumber(v *float64, unit string) string {
	if v == nil {
		return "not documented"
	}
	return strings.TrimSuffix(strings.TrimSuffix(fmt.Sprintf("%.1f", *v), "0"), ".") + unit
}

func formatDate(v interface{}) string {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format("2006-01-02")
	case *time.Time:
		if t == nil {
			return "not documented"
		}
		return t.UTC().Format("2006-01-02")
	default:
		return "not documented"
	}
}
