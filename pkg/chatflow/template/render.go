package template

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/randalmurphal/chatflow/pkg/chatflow/selector"
)

// Limits applied when no option overrides them.
const (
	DefaultMaxLength    = 20 * 1024
	DefaultMaxVariables = 100
)

// Resolver looks up selector values. *pool.Pool satisfies it.
type Resolver interface {
	Resolve(sel selector.Selector) (any, bool)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(sel selector.Selector) (any, bool)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(sel selector.Selector) (any, bool) {
	return f(sel)
}

// File is a file-like value. Templates render it as a short description
// instead of its content.
type File struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Renderer substitutes {{selector}} references in templates.
//
// A Renderer is safe for concurrent use after construction.
type Renderer struct {
	allowed      []selector.Selector
	restricted   bool
	maxLength    int
	maxVariables int
	logger       *slog.Logger
}

// NewRenderer creates a Renderer with the given options.
//
// Default configuration:
//   - no allow-list (every resolvable selector may be used)
//   - MaxLength: 20 KiB
//   - MaxVariables: 100 distinct selectors
func NewRenderer(opts ...Option) *Renderer {
	r := &Renderer{
		maxLength:    DefaultMaxLength,
		maxVariables: DefaultMaxVariables,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Result is the output of one render.
type Result struct {
	// Text is the plain rendering.
	Text string
	// Markdown renders arrays as bullet lists and objects as indented JSON.
	Markdown string
	// Segments are the literal and variable pieces, in order.
	Segments []Segment
	// Metadata summarizes the render.
	Metadata Metadata
}

// Metadata describes a render for audit records.
type Metadata struct {
	UsedVariables  map[string]string `json:"used_variables"`
	TemplateLength int               `json:"template_length"`
	OutputLength   int               `json:"output_length"`
	VariableCount  int               `json:"variable_count"`
	Segments       []SegmentInfo     `json:"segments"`
}

// Map returns the metadata as a generic map, suitable for node outputs.
func (m Metadata) Map() map[string]any {
	used := make(map[string]any, len(m.UsedVariables))
	for k, v := range m.UsedVariables {
		used[k] = v
	}
	segs := make([]any, len(m.Segments))
	for i, s := range m.Segments {
		segs[i] = map[string]any{"type": string(s.Kind), "length": s.Length}
	}
	return map[string]any{
		"used_variables":  used,
		"template_length": m.TemplateLength,
		"output_length":   m.OutputLength,
		"variable_count":  m.VariableCount,
		"segments":        segs,
	}
}

// Render resolves every reference in tmpl through r.
//
// Render fails with a *RenderError when the template is empty or too long,
// references too many distinct selectors, references a selector outside the
// allow-list, or references a value r cannot resolve.
func (rd *Renderer) Render(tmpl string, r Resolver) (*Result, error) {
	if strings.TrimSpace(tmpl) == "" {
		return nil, &RenderError{Err: ErrEmptyTemplate}
	}
	if len(tmpl) > rd.maxLength {
		return nil, &RenderError{Err: ErrTemplateTooLong, Detail: fmt.Sprintf("%d > %d bytes", len(tmpl), rd.maxLength)}
	}

	matches := Parse(tmpl)
	if n := len(Selectors(tmpl)); n > rd.maxVariables {
		return nil, &RenderError{Err: ErrTooManyVariables, Detail: fmt.Sprintf("%d > %d", n, rd.maxVariables)}
	}

	// Validate and resolve each distinct selector once.
	values := make(map[string]any)
	used := make(map[string]string)
	for _, m := range matches {
		if _, done := values[m.Selector]; done {
			continue
		}
		sel, err := selector.Parse(m.Selector)
		if err != nil {
			return nil, &RenderError{Selector: m.Selector, Err: ErrInvalidSelector, Detail: err.Error()}
		}
		if rd.restricted && !rd.isAllowed(sel) {
			return nil, &RenderError{Selector: m.Selector, Err: ErrSelectorNotAllowed}
		}
		v, ok := r.Resolve(sel)
		if !ok {
			return nil, &RenderError{Selector: m.Selector, Err: ErrVariableNotFound}
		}
		values[m.Selector] = v
		used[m.Selector] = string(KindOf(v))
	}

	var segments []Segment
	last := 0
	for _, m := range matches {
		if m.Start > last {
			segments = append(segments, literal(tmpl[last:m.Start]))
		}
		segments = append(segments, valueSegment(values[m.Selector]))
		last = m.End
	}
	if last < len(tmpl) {
		segments = append(segments, literal(tmpl[last:]))
	}

	var text, md strings.Builder
	infos := make([]SegmentInfo, len(segments))
	for i, s := range segments {
		text.WriteString(s.Text)
		md.WriteString(s.Markdown())
		infos[i] = SegmentInfo{Kind: s.Kind, Length: len(s.Text)}
	}

	res := &Result{
		Text:     text.String(),
		Markdown: md.String(),
		Segments: segments,
		Metadata: Metadata{
			UsedVariables:  used,
			TemplateLength: len(tmpl),
			OutputLength:   text.Len(),
			VariableCount:  len(used),
			Segments:       infos,
		},
	}
	rd.logger.Debug("template rendered",
		slog.Int("variables", len(used)),
		slog.Int("template_length", len(tmpl)),
		slog.Int("output_length", text.Len()),
	)
	return res, nil
}

// isAllowed accepts a selector equal to an allowed entry or nested below one.
func (rd *Renderer) isAllowed(sel selector.Selector) bool {
	canon := sel.Canonical()
	for _, a := range rd.allowed {
		if canon.Prefix() != a.Prefix() || len(canon.Path()) < len(a.Path()) {
			continue
		}
		match := true
		for i, seg := range a.Path() {
			if canon.Path()[i] != seg {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// Stringify converts a value to template text: nil is empty, scalars use
// their natural form, maps and lists become indented JSON and files a short
// description.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, json.Number:
		return fmt.Sprint(val)
	case File:
		return describeFile(val)
	case *File:
		if val == nil {
			return ""
		}
		return describeFile(*val)
	case fmt.Stringer:
		return val.String()
	}

	switch KindOf(v) {
	case KindArray, KindObject:
		if s, ok := indentJSON(v); ok {
			return s
		}
	}
	return fmt.Sprintf("<%T>", v)
}

func describeFile(f File) string {
	return fmt.Sprintf("File(name=%s, size=%d bytes)", f.Name, f.Size)
}

func indentJSON(v any) (string, bool) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", false
	}
	return strings.TrimRight(buf.String(), "\n"), true
}
