// Package prompt loads and renders the stage prompt templates.
//
// Defaults for each stage are embedded in the binary. A project overrides a
// prompt by placing a file of the same name in .pipeline/prompts/ or
// prompts/. Templates use text/template with a few helpers: join, upper,
// trim, title, indent, default and json.
//
//	loader := prompt.NewLoader(".")
//	text, err := loader.Render(prompt.Plan, map[string]any{"Spec": spec})
package prompt
