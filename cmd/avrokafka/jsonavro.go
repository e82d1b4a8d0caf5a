// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"slices"

	"github.com/hamba/avro/v2"
)

// fromJSON decodes a JSON document into the native values hamba/avro expects
// for schema.  Numbers are checked against the width of their Avro type.
func fromJSON(schema avro.Schema, raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	return convert(schema, v, "$")
}

func convert(schema avro.Schema, v any, path string) (any, error) {
	switch s := schema.(type) {
	case *avro.RefSchema:
		return convert(s.Schema(), v, path)

	case *avro.PrimitiveSchema:
		return convertPrimitive(s.Type(), v, path)

	case *avro.RecordSchema:
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, mismatch(path, "object", v)
		}
		out := make(map[string]any, len(s.Fields()))
		for _, f := range s.Fields() {
			fv, ok := obj[f.Name()]
			if !ok {
				if f.HasDefault() {
					out[f.Name()] = f.Default()
					continue
				}
				return nil, fmt.Errorf("%s: missing field %q", path, f.Name())
			}
			c, err := convert(f.Type(), fv, path+"."+f.Name())
			if err != nil {
				return nil, err
			}
			out[f.Name()] = c
		}
		return out, nil

	case *avro.EnumSchema:
		sym, ok := v.(string)
		if !ok {
			return nil, mismatch(path, "string", v)
		}
		if !slices.Contains(s.Symbols(), sym) {
			return nil, fmt.Errorf("%s: %q is not a symbol of %s", path, sym, s.FullName())
		}
		return sym, nil

	case *avro.ArraySchema:
		arr, ok := v.([]any)
		if !ok {
			return nil, mismatch(path, "array", v)
		}
		out := make([]any, len(arr))
		for i, item := range arr {
			c, err := convert(s.Items(), item, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil

	case *avro.MapSchema:
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, mismatch(path, "object", v)
		}
		out := make(map[string]any, len(obj))
		for k, item := range obj {
			c, err := convert(s.Values(), item, path+"."+k)
			if err != nil {
				return nil, err
			}
			out[k] = c
		}
		return out, nil

	case *avro.UnionSchema:
		if v == nil {
			if s.Nullable() {
				return nil, nil
			}
			return nil, fmt.Errorf("%s: null is not allowed", path)
		}
		for _, branch := range s.Types() {
			if branch.Type() == avro.Null {
				continue
			}
			if c, err := convert(branch, v, path); err == nil {
				return c, nil
			}
		}
		return nil, fmt.Errorf("%s: value matches no branch of the union", path)

	case *avro.FixedSchema:
		str, ok := v.(string)
		if !ok {
			return nil, mismatch(path, "string", v)
		}
		if len(str) != s.Size() {
			return nil, fmt.Errorf("%s: fixed %s needs %d bytes, got %d", path, s.FullName(), s.Size(), len(str))
		}
		arr := reflect.New(reflect.ArrayOf(s.Size(), reflect.TypeOf(byte(0)))).Elem()
		reflect.Copy(arr, reflect.ValueOf([]byte(str)))
		return arr.Interface(), nil
	}

	return nil, fmt.Errorf("%s: unsupported schema type %s", path, schema.Type())
}

func convertPrimitive(typ avro.Type, v any, path string) (any, error) {
	switch typ {
	case avro.Null:
		if v != nil {
			return nil, mismatch(path, "null", v)
		}
		return nil, nil

	case avro.Boolean:
		b, ok := v.(bool)
		if !ok {
			return nil, mismatch(path, "boolean", v)
		}
		return b, nil

	case avro.Int, avro.Long:
		n, ok := v.(json.Number)
		if !ok {
			return nil, mismatch(path, "integer", v)
		}
		i, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("%s: %s is not an integer", path, n)
		}
		if typ == avro.Long {
			return i, nil
		}
		if i < math.MinInt32 || i > math.MaxInt32 {
			return nil, fmt.Errorf("%s: %d overflows int", path, i)
		}
		return int(i), nil

	case avro.Float, avro.Double:
		n, ok := v.(json.Number)
		if !ok {
			return nil, mismatch(path, "number", v)
		}
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("%s: %s is not a number", path, n)
		}
		if typ == avro.Float {
			return float32(f), nil
		}
		return f, nil

	case avro.String:
		str, ok := v.(string)
		if !ok {
			return nil, mismatch(path, "string", v)
		}
		return str, nil

	case avro.Bytes:
		str, ok := v.(string)
		if !ok {
			return nil, mismatch(path, "string", v)
		}
		return []byte(str), nil
	}

	return nil, fmt.Errorf("%s: unsupported primitive type %s", path, typ)
}

func mismatch(path, want string, got any) error {
	return fmt.Errorf("%s: expected %s, got %T", path, want, got)
}
