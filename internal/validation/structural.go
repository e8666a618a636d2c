// Package validation implements the structural pass of the Beacon data
// contract: required fields, semantic types and declared value domains,
// driven entirely by the descriptors in pkg/schema.
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"beaconcore/pkg/domain"
	"beaconcore/pkg/schema"
)

type options struct {
	rejectUnknownFields bool
}

// Option configures a Validator.
type Option func(*options)

// WithRejectUnknownFields reports fields the schema does not declare as
// errors. By default they are ignored so newer clients stay compatible.
func WithRejectUnknownFields() Option {
	return func(o *options) { o.rejectUnknownFields = true }
}

// Validator runs the structural pass. It holds no mutable state and is safe
// for concurrent use.
type Validator struct {
	opts options
}

// New constructs a structural validator.
func New(opts ...Option) *Validator {
	v := &Validator{}
	for _, opt := range opts {
		if opt != nil {
			opt(&v.opts)
		}
	}
	return v
}

// Validate checks a decoded raw value (maps, slices, strings, numbers,
// booleans and nils as produced by encoding/json) against the schema of rt.
// Every problem is collected; on failure the error is a FieldErrors. On
// success the returned record is the typed, post-defaulting interpretation
// of raw.
func (v *Validator) Validate(rt domain.RecordType, raw any) (domain.Record, error) {
	if _, ok := schema.FieldsOf(rt); !ok {
		return nil, fmt.Errorf("unknown record type %q", rt)
	}
	w := walker{opts: v.opts}
	normalized := w.record(rt, raw, "")
	if len(w.errs) > 0 {
		return nil, w.errs
	}
	return decode(rt, normalized)
}

// ValidateRecord re-validates an already typed record through its JSON form.
func (v *Validator) ValidateRecord(rec domain.Record) (domain.Record, error) {
	if rec == nil || reflect.ValueOf(rec).Kind() == reflect.Pointer && reflect.ValueOf(rec).IsNil() {
		return nil, fmt.Errorf("record is nil")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", rec.RecordType(), err)
	}
	return v.DecodeJSON(rec.RecordType(), data)
}

// DecodeJSON decodes a JSON document and validates it as rt. Numbers are
// kept exact so 64-bit counters survive.
func (v *Validator) DecodeJSON(rt domain.RecordType, data []byte) (domain.Record, error) {
	raw, err := DecodeRaw(data)
	if err != nil {
		return nil, err
	}
	return v.Validate(rt, raw)
}

// DecodeRaw decodes JSON into the raw representation Validate expects.
func DecodeRaw(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if err := dec.Decode(new(any)); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode json: unexpected data after the document")
	}
	return raw, nil
}

func decode(rt domain.RecordType, normalized map[string]any) (domain.Record, error) {
	target, ok := domain.NewRecord(rt)
	if !ok {
		return nil, fmt.Errorf("no record constructor for %q", rt)
	}
	data, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", rt, err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return nil, fmt.Errorf("decode %s: %w", rt, err)
	}
	return reflect.ValueOf(target).Elem().Interface().(domain.Record), nil
}

type walker struct {
	opts options
	errs FieldErrors
}

func (w *walker) add(path string, kind ErrorKind, expected string, value any, msg string) {
	if path == "" {
		path = "$"
	}
	w.errs = append(w.errs, FieldError{Field: path, Kind: kind, Expected: expected, Value: value, Message: msg})
}

func (w *walker) record(rt domain.RecordType, raw any, path string) map[string]any {
	fields, _ := schema.FieldsOf(rt)
	m, ok := raw.(map[string]any)
	if !ok {
		w.add(path, KindTypeMismatch, schema.RecordOf(rt).String(), nil, fmt.Sprintf("expected object, got %s", describe(raw)))
		return nil
	}

	out := make(map[string]any, len(fields))
	declared := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		declared[f.Name] = struct{}{}
		fieldPath := join(path, f.Name)
		val, present := m[f.Name]
		if present && val == nil {
			present = false
		}
		if present && f.Required && f.Type.Kind == schema.KindString {
			if s, isString := val.(string); isString && strings.TrimSpace(s) == "" {
				present = false
			}
		}
		if !present {
			if f.Required {
				w.add(fieldPath, KindMissing, f.Type.String(), nil, "required field is missing")
			} else if f.Default != nil {
				out[f.Name] = f.Default
			}
			continue
		}
		norm, ok := w.value(f.Type, f.Domain, val, fieldPath)
		if !ok {
			continue
		}
		// An empty optional map carries nothing; keep it absent so the typed
		// record encodes the same way on every pass.
		if nm, isMap := norm.(map[string]any); isMap && f.Type.Kind == schema.KindMap && len(nm) == 0 && !f.Required {
			continue
		}
		out[f.Name] = norm
	}

	if w.opts.rejectUnknownFields {
		var unknown []string
		for k := range m {
			if _, ok := declared[k]; !ok {
				unknown = append(unknown, k)
			}
		}
		sort.Strings(unknown)
		for _, k := range unknown {
			w.add(join(path, k), KindUnexpected, "", nil, fmt.Sprintf("field is not part of %s", rt))
		}
	}
	return out
}

func (w *walker) value(t schema.Type, d schema.Domain, val any, path string) (any, bool) {
	switch t.Kind {
	case schema.KindString:
		s, ok := val.(string)
		if !ok {
			w.mismatch(t, val, path)
			return nil, false
		}
		return s, w.stringDomain(d, s, path)
	case schema.KindBool:
		b, ok := val.(bool)
		if !ok {
			w.mismatch(t, val, path)
			return nil, false
		}
		return b, true
	case schema.KindLong, schema.KindInt:
		n, ok := toInteger(val, t.Kind)
		if !ok {
			w.mismatch(t, val, path)
			return nil, false
		}
		return n, w.numericDomain(d, float64(n), n, path)
	case schema.KindDouble:
		f, ok := toFloat(val)
		if !ok {
			w.mismatch(t, val, path)
			return nil, false
		}
		return f, w.numericDomain(d, f, f, path)
	case schema.KindArray:
		return w.array(t, val, path)
	case schema.KindMap:
		return w.stringMap(t, val, path)
	case schema.KindRecord:
		before := len(w.errs)
		m := w.record(t.Record, val, path)
		return m, len(w.errs) == before
	default:
		w.add(path, KindTypeMismatch, t.String(), nil, fmt.Sprintf("unsupported semantic type %s", t))
		return nil, false
	}
}

func (w *walker) array(t schema.Type, val any, path string) (any, bool) {
	var items []any
	switch v := val.(type) {
	case []any:
		items = v
	case []string:
		items = make([]any, len(v))
		for i, s := range v {
			items[i] = s
		}
	default:
		w.mismatch(t, val, path)
		return nil, false
	}
	out := make([]any, 0, len(items))
	ok := true
	for i, item := range items {
		itemPath := fmt.Sprintf("%s[%d]", path, i)
		if item == nil {
			w.add(itemPath, KindTypeMismatch, t.Elem.String(), nil, "array elements must not be null")
			ok = false
			continue
		}
		norm, itemOK := w.value(*t.Elem, schema.Domain{}, item, itemPath)
		if !itemOK {
			ok = false
			continue
		}
		out = append(out, norm)
	}
	return out, ok
}

func (w *walker) stringMap(t schema.Type, val any, path string) (any, bool) {
	switch v := val.(type) {
	case map[string]string:
		out := make(map[string]any, len(v))
		for k, s := range v {
			out[k] = s
		}
		return out, true
	case map[string]any:
		out := make(map[string]any, len(v))
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ok := true
		for _, k := range keys {
			s, isString := v[k].(string)
			if !isString {
				w.add(join(path, k), KindTypeMismatch, "string", nil, fmt.Sprintf("expected string, got %s", describe(v[k])))
				ok = false
				continue
			}
			out[k] = s
		}
		return out, ok
	default:
		w.mismatch(t, val, path)
		return nil, false
	}
}

func (w *walker) mismatch(t schema.Type, val any, path string) {
	w.add(path, KindTypeMismatch, t.String(), nil, fmt.Sprintf("expected %s, got %s", t, describe(val)))
}

func (w *walker) stringDomain(d schema.Domain, s, path string) bool {
	ok := true
	if len(d.Enum) > 0 && !contains(d.Enum, s) {
		w.add(path, KindOutOfDomain, "one of "+strings.Join(d.Enum, ","), s, fmt.Sprintf("value %q is not allowed", s))
		ok = false
	}
	if d.Format == schema.FormatDateTime {
		if _, err := schema.ParseDateTime(s); err != nil {
			w.add(path, KindOutOfDomain, string(schema.FormatDateTime), s, err.Error())
			ok = false
		}
	}
	return ok
}

func (w *walker) numericDomain(d schema.Domain, f float64, original any, path string) bool {
	if d.Min != nil && f < *d.Min {
		w.add(path, KindOutOfDomain, rangeText(d), original, fmt.Sprintf("value %v is below minimum %v", original, *d.Min))
		return false
	}
	if d.Max != nil && f > *d.Max {
		w.add(path, KindOutOfDomain, rangeText(d), original, fmt.Sprintf("value %v is above maximum %v", original, *d.Max))
		return false
	}
	return true
}

func rangeText(d schema.Domain) string {
	lo, hi := "-inf", "+inf"
	if d.Min != nil {
		lo = strconv.FormatFloat(*d.Min, 'g', -1, 64)
	}
	if d.Max != nil {
		hi = strconv.FormatFloat(*d.Max, 'g', -1, 64)
	}
	return "[" + lo + "," + hi + "]"
}

func toInteger(val any, kind schema.Kind) (int64, bool) {
	var n int64
	switch v := val.(type) {
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			return 0, false
		}
		n = i
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || v < math.MinInt64 || v >= math.MaxInt64 {
			return 0, false
		}
		n = int64(v)
	case int:
		n = int64(v)
	case int32:
		n = int64(v)
	case int64:
		n = v
	default:
		return 0, false
	}
	if kind == schema.KindInt && (n < math.MinInt32 || n > math.MaxInt32) {
		return 0, false
	}
	return n, true
}

func toFloat(val any) (float64, bool) {
	var f float64
	switch v := val.(type) {
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func describe(val any) string {
	switch val.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64, float32, int, int32, int64:
		return "number"
	case []any, []string:
		return "array"
	case map[string]any, map[string]string:
		return "object"
	default:
		return fmt.Sprintf("%T", val)
	}
}

func join(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

func contains(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}
