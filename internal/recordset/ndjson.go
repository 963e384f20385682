package recordset

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// MaxLineBytes bounds a single NDJSON record.
const MaxLineBytes = 16 * 1024 * 1024

// ParseError reports a malformed record line.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("ndjson line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var errNotObject = errors.New("record is not a JSON object")

// ReadNDJSON parses newline-delimited JSON objects into a RecordSet, one row
// per non-blank line. The schema is the union over all rows: top-level and
// nested keys keep first-seen order, and a key absent from a row is null there.
func ReadNDJSON(r io.Reader) (*RecordSet, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), MaxLineBytes)

	root := newBuilder()
	var rows []map[string]any
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		row, err := parseLine(line, root)
		if err != nil {
			return nil, &ParseError{Line: lineNumber, Err: err}
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, &ParseError{Line: lineNumber + 1, Err: fmt.Errorf("line exceeds %d bytes", MaxLineBytes)}
		}
		return nil, fmt.Errorf("scan ndjson: %w", err)
	}

	columns := make([]Column, 0, len(root.order))
	for _, name := range root.order {
		typ := root.fields[name].finish()
		values := make([]any, len(rows))
		for i, row := range rows {
			values[i] = conform(row[name], typ)
		}
		columns = append(columns, Column{Name: name, Type: typ, Values: values})
	}
	return New(columns...)
}

func parseLine(line []byte, root *builder) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errNotObject
	}
	row, err := parseObject(dec, root)
	if err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after record")
	}
	return row, nil
}

func parseObject(dec *json.Decoder, b *builder) (map[string]any, error) {
	b.sawRecord = true
	obj := make(map[string]any)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected object key %v", tok)
		}
		v, err := parseValue(dec, b.field(key))
		if err != nil {
			return nil, err
		}
		obj[key] = v
	}
	if _, err := dec.Token(); err != nil { // '}'
		return nil, err
	}
	return obj, nil
}

func parseValue(dec *json.Decoder, b *builder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return parseObject(dec, b)
		case '[':
			b.sawList = true
			elem := b.element()
			list := []any{}
			for dec.More() {
				v, err := parseValue(dec, elem)
				if err != nil {
					return nil, err
				}
				list = append(list, v)
			}
			if _, err := dec.Token(); err != nil { // ']'
				return nil, err
			}
			return list, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", t)
		}
	case nil:
		return nil, nil
	case bool:
		b.observe(Bool)
		return t, nil
	case string:
		b.observe(String)
		return t, nil
	case json.Number:
		s := t.String()
		if !strings.ContainsAny(s, ".eE") {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				b.observe(Int64)
				return n, nil
			}
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("number %s: %w", s, err)
		}
		b.observe(Float64)
		return f, nil
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			b.observe(Int64)
			return int64(t), nil
		}
		b.observe(Float64)
		return t, nil
	default:
		return nil, fmt.Errorf("unexpected token %T", tok)
	}
}

// builder accumulates the observed shape of one value position.
type builder struct {
	sawRecord bool
	sawList   bool
	sawScalar bool
	scalar    Scalar

	order  []string
	fields map[string]*builder
	elem   *builder
}

func newBuilder() *builder {
	return &builder{fields: make(map[string]*builder)}
}

func (b *builder) field(name string) *builder {
	if fb, ok := b.fields[name]; ok {
		return fb
	}
	fb := newBuilder()
	b.fields[name] = fb
	b.order = append(b.order, name)
	return fb
}

func (b *builder) element() *builder {
	if b.elem == nil {
		b.elem = newBuilder()
	}
	return b.elem
}

func (b *builder) observe(s Scalar) {
	if !b.sawScalar {
		b.sawScalar = true
		b.scalar = s
		return
	}
	b.scalar = mergeScalar(b.scalar, s)
}

func mergeScalar(a, b Scalar) Scalar {
	switch {
	case a == b:
		return a
	case (a == Int64 && b == Float64) || (a == Float64 && b == Int64):
		return Float64
	default:
		return String
	}
}

func (b *builder) finish() Type {
	kinds := 0
	for _, saw := range []bool{b.sawRecord, b.sawList, b.sawScalar} {
		if saw {
			kinds++
		}
	}
	switch {
	case kinds == 0:
		return ScalarType(Null)
	case kinds > 1:
		return ScalarType(String)
	case b.sawRecord:
		fields := make([]Field, len(b.order))
		for i, name := range b.order {
			fields[i] = Field{Name: name, Type: b.fields[name].finish()}
		}
		return RecordType(fields...)
	case b.sawList:
		if b.elem == nil {
			return ListOf(ScalarType(Null))
		}
		return ListOf(b.elem.finish())
	default:
		return ScalarType(b.scalar)
	}
}

// conform coerces a parsed value to the inferred type of its position.
func conform(v any, t Type) any {
	if v == nil {
		return nil
	}
	switch t.Kind {
	case KindRecord:
		m, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		for _, f := range t.Fields {
			if fv, present := m[f.Name]; present {
				m[f.Name] = conform(fv, f.Type)
			}
		}
		return m
	case KindList:
		l, ok := v.([]any)
		if !ok {
			return nil
		}
		for i := range l {
			l[i] = conform(l[i], *t.Elem)
		}
		return l
	}
	switch t.Scalar {
	case Float64:
		if n, ok := v.(int64); ok {
			return float64(n)
		}
	case String:
		return stringify(v)
	}
	return v
}

func stringify(v any) any {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}
