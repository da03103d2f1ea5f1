// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package jsbridge

import (
	"encoding/json"
	"fmt"
)

// Kind classifies a dynamic value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindMap
	KindInvalid
)

// String returns the string representation of a Kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "invalid"
	}
}

// KindOf reports the kind of a dynamic value. Only nil, bool, float64, string,
// []any and map[string]any are dynamic; everything else is KindInvalid.
func KindOf(v any) Kind {
	switch v.(type) {
	case nil:
		return KindNull
	case bool:
		return KindBool
	case float64:
		return KindNumber
	case string:
		return KindString
	case []any:
		return KindList
	case map[string]any:
		return KindMap
	default:
		return KindInvalid
	}
}

// ToDynamic converts an arbitrary Go value to its dynamic form, the shape
// script engines exchange with native code. Values that are already dynamic
// are returned as is; anything else goes through its JSON encoding.
func ToDynamic(v any) (any, error) {
	if isDynamic(v) {
		return v, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to convert %T to dynamic value: %w", v, err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to convert %T to dynamic value: %w", v, err)
	}
	return out, nil
}

// ToDynamicList converts every element of args with ToDynamic.
func ToDynamicList(args ...any) ([]any, error) {
	out := make([]any, len(args))
	for i, arg := range args {
		v, err := ToDynamic(arg)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func isDynamic(v any) bool {
	switch t := v.(type) {
	case nil, bool, float64, string:
		return true
	case []any:
		for _, e := range t {
			if !isDynamic(e) {
				return false
			}
		}
		return true
	case map[string]any:
		for _, e := range t {
			if !isDynamic(e) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// toJSON encodes a dynamic value; a nil list encodes as [].
func toJSON(v any) (string, error) {
	if l, ok := v.([]any); ok && l == nil {
		return "[]", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// fromJSON decodes a JSON document into its dynamic form. Empty input and
// "undefined" decode to nil.
func fromJSON(s string) (any, error) {
	if s == "" || s == "undefined" {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}
