package template

import (
	"reflect"
	"strings"
)

// Kind classifies a rendered segment.
type Kind string

// Segment kinds.
const (
	KindText    Kind = "text"
	KindNone    Kind = "none"
	KindString  Kind = "string"
	KindBoolean Kind = "boolean"
	KindNumber  Kind = "number"
	KindArray   Kind = "array"
	KindObject  Kind = "object"
	KindFile    Kind = "file"
)

// KindOf infers the segment kind of a resolved value.
func KindOf(v any) Kind {
	switch v.(type) {
	case nil:
		return KindNone
	case string:
		return KindString
	case bool:
		return KindBoolean
	case File, *File:
		return KindFile
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return KindNumber
	case reflect.Slice, reflect.Array:
		return KindArray
	case reflect.Map, reflect.Struct:
		return KindObject
	case reflect.Pointer:
		if rv.IsNil() {
			return KindNone
		}
		return KindOf(rv.Elem().Interface())
	}
	return KindString
}

// Segment is one piece of a rendered template.
type Segment struct {
	// Literal is true for template text between references.
	Literal bool
	// Kind is KindText for literals and the value kind otherwise.
	Kind Kind
	// Value is the resolved value (nil for literals).
	Value any
	// Text is the plain rendering.
	Text string
}

// SegmentInfo summarizes a segment in render metadata.
type SegmentInfo struct {
	Kind   Kind `json:"type"`
	Length int  `json:"length"`
}

func literal(text string) Segment {
	return Segment{Literal: true, Kind: KindText, Text: text}
}

func valueSegment(v any) Segment {
	return Segment{Kind: KindOf(v), Value: v, Text: Stringify(v)}
}

// Markdown renders arrays as "- item" lines and objects as indented JSON.
// Other segments render as Text.
func (s Segment) Markdown() string {
	if s.Literal || s.Kind != KindArray {
		return s.Text
	}
	rv := reflect.ValueOf(s.Value)
	if rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	if rv.Len() == 0 {
		return ""
	}
	lines := make([]string, rv.Len())
	for i := range lines {
		lines[i] = "- " + Stringify(rv.Index(i).Interface())
	}
	return strings.Join(lines, "\n")
}
