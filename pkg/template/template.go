// Package template substitutes caller-supplied variables into stored
// configuration documents.
//
// Documents are rendered through their canonical JSON text. Three marker
// styles are recognized:
//
//	{{ name }}        expression; bare names and .name both resolve variables
//	{% if cond %}     statement; endif/endfor map to end, elif to else if
//	{# note #}        comment, removed
//
// Loop variables introduced with {% for x in xs %} are available as x or $x.
// Referencing a variable that was not supplied is an error.
package template

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"github.com/txn2/config-service/pkg/conferr"
	"github.com/txn2/config-service/pkg/document"
)

var markers = []string{"{{", "}}", "{%", "%}", "{#", "#}"}

var (
	commentPattern = regexp.MustCompile(`(?s)\{#.*?#\}`)
	tokenPattern   = regexp.MustCompile(`(?s)\{%(-?)\s*(.*?)\s*(-?)%\}|\{\{(.*?)\}\}`)
	forPattern     = regexp.MustCompile(`^for\s+([A-Za-z_]\w*)(?:\s*,\s*([A-Za-z_]\w*))?\s+in\s+(.+)$`)
	identPattern   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

var blockOpeners = map[string]bool{"if": true, "with": true, "range": true, "block": true, "define": true}

// Renderer renders documents with strict-undefined semantics.
type Renderer struct {
	funcs template.FuncMap
}

// New creates a Renderer. extra functions are available to every template.
func New(extra template.FuncMap) *Renderer {
	funcs := template.FuncMap{}
	for k, v := range extra {
		funcs[k] = v
	}
	return &Renderer{funcs: funcs}
}

// HasMarkers reports whether text contains any template marker.
func HasMarkers(text string) bool {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// Render expands doc with vars. Documents without markers are returned as
// given. Every failure is a TemplateRender error.
func (r *Renderer) Render(doc document.Document, vars map[string]any) (document.Document, error) {
	text, err := document.Marshal(doc)
	if err != nil {
		return nil, conferr.Wrap(conferr.TemplateRender, "Template rendering error: "+err.Error(), err)
	}
	if !HasMarkers(string(text)) {
		return doc, nil
	}
	if vars == nil {
		vars = map[string]any{}
	}

	tmpl, err := template.New("config").
		Option("missingkey=error").
		Funcs(r.funcMap(vars)).
		Parse(translate(string(text)))
	if err != nil {
		return nil, conferr.Wrap(conferr.TemplateRender, "Template syntax error: "+err.Error(), err)
	}

	var out bytes.Buffer
	if err := tmpl.Execute(&out, vars); err != nil {
		return nil, conferr.Wrap(conferr.TemplateRender, "Template rendering error: "+err.Error(), err)
	}

	rendered, err := document.Decode(out.Bytes())
	if err != nil {
		return nil, conferr.Wrap(conferr.TemplateRender,
			"JSON parsing error after template rendering: "+err.Error(), err)
	}
	return rendered, nil
}

// funcMap exposes each identifier-safe variable as a niladic function so
// that bare names resolve. Unknown names then fail at parse time.
func (r *Renderer) funcMap(vars map[string]any) template.FuncMap {
	fm := make(template.FuncMap, len(r.funcs)+len(vars))
	for k, v := range r.funcs {
		fm[k] = v
	}
	for k, v := range vars {
		if !identPattern.MatchString(k) {
			continue
		}
		fm[k] = func() any { return v }
	}
	return fm
}

// translate rewrites comment and statement markers into text/template
// syntax. Loop variables are bound only between their for and matching end.
func translate(text string) string {
	text = commentPattern.ReplaceAllString(text, "")

	var (
		out    strings.Builder
		scopes [][]string
		last   int
	)
	for _, loc := range tokenPattern.FindAllStringSubmatchIndex(text, -1) {
		out.WriteString(text[last:loc[0]])
		last = loc[1]

		if loc[8] >= 0 {
			out.WriteString("{{" + bindLoopVars(text[loc[8]:loc[9]], scopes) + "}}")
			continue
		}

		var stmt string
		stmt, scopes = statement(text[loc[4]:loc[5]], scopes)
		open, closing := "{{", "}}"
		if loc[3] > loc[2] {
			open = "{{- "
		}
		if loc[7] > loc[6] {
			closing = " -}}"
		}
		out.WriteString(open + " " + stmt + " " + closing)
	}
	out.WriteString(text[last:])
	return out.String()
}

// statement translates one statement and returns the loop scopes in effect
// after it. Block openers push a scope and end pops one.
func statement(stmt string, scopes [][]string) (string, [][]string) {
	switch {
	case stmt == "endif" || stmt == "endfor" || stmt == "endwith" || stmt == "end":
		if len(scopes) > 0 {
			scopes = scopes[:len(scopes)-1]
		}
		return "end", scopes
	case stmt == "else":
		return stmt, scopes
	case strings.HasPrefix(stmt, "elif "):
		return "else if " + bindLoopVars(strings.TrimPrefix(stmt, "elif "), scopes), scopes
	}
	if m := forPattern.FindStringSubmatch(stmt); m != nil {
		iter := bindLoopVars(m[3], scopes)
		if m[2] != "" {
			return fmt.Sprintf("range $%s, $%s := %s", m[1], m[2], iter), append(scopes, []string{m[1], m[2]})
		}
		return fmt.Sprintf("range $%s := %s", m[1], iter), append(scopes, []string{m[1]})
	}

	translated := bindLoopVars(stmt, scopes)
	if word, _, _ := strings.Cut(stmt, " "); blockOpeners[word] {
		scopes = append(scopes, nil)
	}
	return translated, scopes
}

// bindLoopVars rewrites bare references to in-scope loop variables as
// template variables.
func bindLoopVars(expr string, scopes [][]string) string {
	for _, names := range scopes {
		for _, name := range names {
			re := regexp.MustCompile(`(^|[^\w$.])` + regexp.QuoteMeta(name) + `\b`)
			expr = re.ReplaceAllString(expr, "${1}$$"+name)
		}
	}
	return expr
}
