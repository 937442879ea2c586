// Package catalog maps decoded catalog records (items and reviews) to the
// rows of the wide-column tables and renders reconstructed entities back to
// their fixed text formats.
package catalog

import (
	"bytes"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	apperrors "catalog-loader/internal/errors"
)

// Record is one decoded input line: a JSON object keyed by field name.
type Record map[string]any

// DecodeLine decodes one input line. Anything but a single JSON object is a
// DECODE error.
func DecodeLine(line []byte) (Record, error) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return nil, apperrors.Decode("EMPTY_LINE", "line is empty").Build()
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return nil, apperrors.Decode("INVALID_JSON", "line is not a JSON object").
			WithCause(err).
			Build()
	}
	if rec == nil {
		return nil, apperrors.Decode("INVALID_JSON", "line is not a JSON object").
			WithDetails("null").
			Build()
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, apperrors.Decode("TRAILING_DATA", "line has data after the JSON object").Build()
	}
	return rec, nil
}

// String returns the textual value of key. Absent keys and JSON null report
// false; scalars that are not strings are returned as their JSON text.
func (r Record) String(key string) (string, bool) {
	v, ok := r[key]
	if !ok || v == nil {
		return "", false
	}
	return textOf(v), true
}

// StringOr returns the value of key, or def when it is absent.
func (r Record) StringOr(key, def string) string {
	if s, ok := r.String(key); ok {
		return s
	}
	return def
}

// KeyOr is StringOr for key columns: an empty value is also replaced by def.
func (r Record) KeyOr(key, def string) string {
	if s, ok := r.String(key); ok && s != "" {
		return s
	}
	return def
}

// Int returns the integer value of key. Integers, floats (truncated toward
// zero) and numeric strings are accepted; anything else yields def.
func (r Record) Int(key string, def int64) int64 {
	v, ok := r[key]
	if !ok || v == nil {
		return def
	}

	var text string
	switch n := v.(type) {
	case json.Number:
		text = n.String()
	case string:
		text = strings.TrimSpace(n)
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return def
	}

	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return int64(f)
	}
	return def
}

func textOf(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
