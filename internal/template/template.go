// Package template wraps the Handlebars-compatible template engine used
// to render llm action prompt/system-prompt strings. The engine is an
// external collaborator per the design notes: the core only calls
// Render(template, context) -> string and never re-derives template
// semantics itself.
package template

import "github.com/aymerick/raymond"

// Renderer renders a template string against a context.
type Renderer interface {
	Render(tmpl string, ctx map[string]interface{}) (string, error)
}

// Raymond is a Renderer backed by github.com/aymerick/raymond.
type Raymond struct{}

func NewRaymond() Raymond { return Raymond{} }

func (Raymond) Render(tmpl string, ctx map[string]interface{}) (string, error) {
	return raymond.Render(tmpl, ctx)
}
