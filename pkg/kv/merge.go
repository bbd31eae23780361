package kv

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"
)

var (
	// ErrMergeNotFound means there was no existing value to merge into.
	ErrMergeNotFound = errors.New("kv: no existing value to merge into")
	// ErrInvalidJSON means one side of a merge did not parse as JSON.
	ErrInvalidJSON = errors.New("kv: value is not valid JSON")
)

// maxArrayIndex bounds the keys treated as array indices when ordering
// object keys (2^32 - 1 is not itself an index).
const maxArrayIndex = 1<<32 - 1

// MergeJSON merges incoming into existing and returns the result re-encoded
// as compact JSON.
//
// When both values are arrays the incoming value is appended as a single
// element, so [1,2] merged with [3,4] gives [1,2,[3,4]]. Otherwise both sides
// are spread into one object in order, later keys overriding earlier ones.
// Arrays spread as index keys, strings as one key per UTF-16 code unit, and
// numbers, booleans and null contribute nothing.
//
// Output follows JavaScript serialization: in every object, keys that are
// array indices come first in ascending order, followed by the rest in
// insertion order; numbers use their shortest round-trip form; strings are
// escaped minimally, without HTML escaping.
func MergeJSON(existing, incoming string) (string, error) {
	if existing == "" {
		return "", ErrMergeNotFound
	}
	ex, err := decodeJSON(existing)
	if err != nil {
		return "", fmt.Errorf("existing value: %w", err)
	}
	in, err := decodeJSON(incoming)
	if err != nil {
		return "", fmt.Errorf("incoming value: %w", err)
	}

	var merged any
	if exArr, ok := ex.([]any); ok {
		if _, ok := in.([]any); ok {
			merged = append(exArr, in)
		}
	}
	if merged == nil {
		obj := newOrderedObject()
		obj.spread(ex)
		obj.spread(in)
		merged = obj
	}

	var buf bytes.Buffer
	encodeValue(&buf, merged)
	return buf.String(), nil
}

// decodeJSON parses s into nil, bool, float64, string, []any or
// *orderedObject values.
func decodeJSON(s string) (any, error) {
	if !json.Valid([]byte(s)) {
		return nil, ErrInvalidJSON
	}
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	return decodeValue(dec)
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		if t == '[' {
			arr := []any{}
			for dec.More() {
				v, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, v)
			}
			_, err := dec.Token()
			return arr, err
		}
		obj := newOrderedObject()
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := kt.(string)
			if !ok {
				return nil, fmt.Errorf("unexpected object key %v", kt)
			}
			v, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			obj.set(key, v)
		}
		_, err := dec.Token()
		return obj, err
	case json.Number:
		f, err := strconv.ParseFloat(string(t), 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return nil, err
		}
		return f, nil
	}
	// string, bool or nil
	return tok, nil
}

// codeUnit is one UTF-16 code unit of a spread string. A lone surrogate has
// no UTF-8 form, so it is kept as a unit and escaped on output.
type codeUnit uint16

// orderedObject keeps the first-seen position of each key.
type orderedObject struct {
	keys   []string
	values map[string]any
}

func newOrderedObject() *orderedObject {
	return &orderedObject{values: make(map[string]any)}
}

func (o *orderedObject) set(key string, value any) {
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = value
}

func (o *orderedObject) spread(v any) {
	switch v := v.(type) {
	case *orderedObject:
		for _, k := range v.keys {
			o.set(k, v.values[k])
		}
	case []any:
		for i, e := range v {
			o.set(strconv.Itoa(i), e)
		}
	case string:
		for i, u := range utf16.Encode([]rune(v)) {
			o.set(strconv.Itoa(i), codeUnit(u))
		}
	}
}

// orderedKeys returns array-index keys ascending, then the rest in insertion order.
func (o *orderedObject) orderedKeys() []string {
	var indices []uint64
	rest := make([]string, 0, len(o.keys))
	for _, k := range o.keys {
		if n, ok := arrayIndex(k); ok {
			indices = append(indices, n)
			continue
		}
		rest = append(rest, k)
	}
	if len(indices) == 0 {
		return rest
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
	keys := make([]string, 0, len(o.keys))
	for _, n := range indices {
		keys = append(keys, strconv.FormatUint(n, 10))
	}
	return append(keys, rest...)
}

// arrayIndex reports whether key is the canonical decimal form of an array index.
func arrayIndex(key string) (uint64, bool) {
	n, err := strconv.ParseUint(key, 10, 64)
	if err != nil || n >= maxArrayIndex || strconv.FormatUint(n, 10) != key {
		return 0, false
	}
	return n, true
}

func encodeValue(buf *bytes.Buffer, v any) {
	switch v := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(v))
	case float64:
		buf.WriteString(formatNumber(v))
	case string:
		encodeString(buf, v)
	case codeUnit:
		if utf16.IsSurrogate(rune(v)) {
			fmt.Fprintf(buf, `"\u%04x"`, uint16(v))
			return
		}
		encodeString(buf, string(rune(v)))
	case []any:
		buf.WriteByte('[')
		for i, e := range v {
			if i > 0 {
				buf.WriteByte(',')
			}
			encodeValue(buf, e)
		}
		buf.WriteByte(']')
	case *orderedObject:
		buf.WriteByte('{')
		for i, k := range v.orderedKeys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			encodeString(buf, k)
			buf.WriteByte(':')
			encodeValue(buf, v.values[k])
		}
		buf.WriteByte('}')
	}
}

// encodeString quotes s, escaping only quotes, backslashes and control
// characters. HTML characters and U+2028/U+2029 are written as is.
func encodeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(buf, `\u%04x`, r)
				continue
			}
			buf.WriteRune(r)
		}
	}
	buf.WriteByte('"')
}

// formatNumber renders f the way JavaScript's Number to string conversion
// does. Non-finite values, from literals out of float64 range, become null.
func formatNumber(f float64) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return "null"
	}
	if f == 0 {
		return "0"
	}
	sign := ""
	if f < 0 {
		sign, f = "-", -f
	}

	// Shortest round-trip digits d.ddd and exponent x, so f = 0.dddd * 10^n.
	mant, exp, _ := strings.Cut(strconv.FormatFloat(f, 'e', -1, 64), "e")
	digits := strings.Replace(mant, ".", "", 1)
	x, _ := strconv.Atoi(exp)
	k, n := len(digits), x+1

	switch {
	case k <= n && n <= 21:
		return sign + digits + strings.Repeat("0", n-k)
	case 0 < n && n <= 21:
		return sign + digits[:n] + "." + digits[n:]
	case -6 < n && n <= 0:
		return sign + "0." + strings.Repeat("0", -n) + digits
	}

	e := "e+"
	if n-1 < 0 {
		e = "e-"
	}
	e += strconv.Itoa(abs(n - 1))
	if k == 1 {
		return sign + digits + e
	}
	return sign + digits[:1] + "." + digits[1:] + e
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
