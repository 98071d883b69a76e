/*
Package template renders free text that references pool values.

# Syntax

A reference is a selector wrapped in double braces. Two spellings are
accepted, with optional inner whitespace:

	{{start.query}}
	{{ llm.response }}
	{{#kb.result.items.0#}}

# Allow-lists

Nodes render with an allow-list of the selectors they are wired to. A
reference outside the list fails the render with ErrSelectorNotAllowed even if
the pool holds the value, so a node cannot read an arbitrary earlier node:

	r := template.NewRenderer(template.WithAllowedSelectors("kb.context"))
	_, err := r.Render("{{kb.context}} {{llm.response}}", p)
	// errors.Is(err, template.ErrSelectorNotAllowed)

# Conversion

	nil           ""
	scalars       natural text form
	maps, lists   indented JSON
	File          File(name=..., size=... bytes)

Result.Markdown differs from Result.Text only for lists, which render as
"- item" lines.
*/
package template
