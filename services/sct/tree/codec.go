// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tree

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// Format names a tree serialization format.
type Format string

const (
	// FormatJSON is an order-preserving JSON object per node.
	FormatJSON Format = "json"

	// FormatYAML is an order-preserving YAML mapping per node.
	FormatYAML Format = "yaml"

	// FormatMsgpack is a compact binary encoding with fields as pairs.
	FormatMsgpack Format = "msgpack"
)

var (
	// ErrUnknownFormat is returned for an unsupported Format.
	ErrUnknownFormat = errors.New("unknown tree format")

	// ErrMalformedDump is returned when a dump does not describe a tree.
	ErrMalformedDump = errors.New("malformed tree dump")
)

// ParseFormat converts a format name ("json", "yaml", "yml", "msgpack").
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "msgpack", "mp":
		return FormatMsgpack, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Dump serializes a tree.
//
// Description:
//
//	Every node becomes {type, data, position} where data holds the fields in
//	order and position is present only for located nodes. Lists of nodes
//	become arrays, scalars are written as-is.
//
// Inputs:
//
//	n - The root node. Must not be nil.
//	f - The output format.
//
// Outputs:
//
//	[]byte - The encoded tree.
//	error  - ErrUnknownFormat, or an encoder failure.
func Dump(n Node, f Format) ([]byte, error) {
	if n == nil {
		return nil, fmt.Errorf("%w: nil root", ErrMalformedDump)
	}
	switch f {
	case FormatJSON:
		var buf bytes.Buffer
		if err := writeJSON(&buf, encodeNode(n)); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case FormatYAML:
		doc, err := toYAML(encodeNode(n))
		if err != nil {
			return nil, err
		}
		return yaml.Marshal(doc)
	case FormatMsgpack:
		var buf bytes.Buffer
		enc := msgpack.NewEncoder(&buf)
		enc.SetSortMapKeys(true)
		if err := enc.Encode(toMsgpack(encodeNode(n))); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

// Load reconstructs a tree dumped with Dump.
//
// Description:
//
//	Nodes are rebuilt as Generic values inside c, so they carry the
//	catalogue's priorities. A nil catalogue yields priority 0 everywhere.
//	Dump(Load(Dump(t))) equals Dump(t).
func Load(data []byte, f Format, c *Catalogue) (Node, error) {
	var raw any
	switch f {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		v, err := readJSON(dec)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDump, err)
		}
		raw = v
	case FormatYAML:
		var doc yaml.Node
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDump, err)
		}
		v, err := fromYAML(&doc)
		if err != nil {
			return nil, err
		}
		raw = v
	case FormatMsgpack:
		var v any
		if err := msgpack.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDump, err)
		}
		o, err := fromMsgpack(v)
		if err != nil {
			return nil, err
		}
		raw = o
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}

	o, ok := raw.(object)
	if !ok {
		return nil, fmt.Errorf("%w: root is not a node", ErrMalformedDump)
	}
	g, err := buildNode(o, c)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// =============================================================================
// Ordered intermediate form
// =============================================================================

type member struct {
	key   string
	value any
}

// object is a JSON-like object that keeps key order.
type object []member

func (o object) get(key string) (any, bool) {
	for _, m := range o {
		if m.key == key {
			return m.value, true
		}
	}
	return nil, false
}

func encodeNode(n Node) object {
	data := object{}
	for _, name := range n.FieldNames() {
		v, _ := n.Field(name)
		data = append(data, member{key: name, value: encodeValue(v)})
	}
	o := object{{key: "type", value: n.Kind()}, {key: "data", value: data}}
	if pos, ok := n.Position(); ok {
		o = append(o, member{key: "position", value: object{
			{key: "line_start", value: pos.LineStart},
			{key: "column_start", value: pos.ColumnStart},
			{key: "line_end", value: pos.LineEnd},
			{key: "column_end", value: pos.ColumnEnd},
		}})
	}
	return o
}

func encodeValue(v any) any {
	switch val := v.(type) {
	case Node:
		return encodeNode(val)
	case []Node:
		out := make([]any, len(val))
		for i, n := range val {
			out[i] = encodeValue(n)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = encodeValue(item)
		}
		return out
	}
	return v
}

func buildNode(o object, c *Catalogue) (*Generic, error) {
	kindRaw, _ := o.get("type")
	kind, ok := kindRaw.(string)
	if !ok || kind == "" {
		return nil, fmt.Errorf("%w: node without type", ErrMalformedDump)
	}

	var fields []Field
	if dataRaw, ok := o.get("data"); ok && dataRaw != nil {
		data, ok := dataRaw.(object)
		if !ok {
			return nil, fmt.Errorf("%w: data of %s is not an object", ErrMalformedDump, kind)
		}
		for _, m := range data {
			v, err := buildValue(m.value, c)
			if err != nil {
				return nil, err
			}
			fields = append(fields, Field{Name: m.key, Value: v})
		}
	}

	g := c.Node(kind, fields...)
	if posRaw, ok := o.get("position"); ok && posRaw != nil {
		po, ok := posRaw.(object)
		if !ok {
			return nil, fmt.Errorf("%w: position of %s is not an object", ErrMalformedDump, kind)
		}
		pos, err := buildPosition(po)
		if err != nil {
			return nil, err
		}
		g = g.WithPosition(pos)
	}
	return g, nil
}

func buildValue(v any, c *Catalogue) (any, error) {
	switch val := v.(type) {
	case object:
		g, err := buildNode(val, c)
		if err != nil {
			return nil, err
		}
		return g, nil
	case []any:
		items := make([]any, len(val))
		allNodes := true
		for i, item := range val {
			built, err := buildValue(item, c)
			if err != nil {
				return nil, err
			}
			items[i] = built
			if _, ok := built.(Node); !ok {
				allNodes = false
			}
		}
		if !allNodes {
			return items, nil
		}
		nodes := make([]Node, len(items))
		for i, item := range items {
			nodes[i] = item.(Node)
		}
		return nodes, nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return int(i), nil
		}
		return val.Float64()
	}
	return v, nil
}

func buildPosition(o object) (Position, error) {
	var pos Position
	targets := map[string]*int{
		"line_start":   &pos.LineStart,
		"column_start": &pos.ColumnStart,
		"line_end":     &pos.LineEnd,
		"column_end":   &pos.ColumnEnd,
	}
	for key, dst := range targets {
		raw, ok := o.get(key)
		if !ok {
			return Position{}, fmt.Errorf("%w: position without %s", ErrMalformedDump, key)
		}
		i, ok := toInt(raw)
		if !ok {
			return Position{}, fmt.Errorf("%w: position %s is not an integer", ErrMalformedDump, key)
		}
		*dst = i
	}
	return pos, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	}
	return 0, false
}

// =============================================================================
// JSON
// =============================================================================

func writeJSON(w *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case object:
		w.WriteByte('{')
		for i, m := range val {
			if i > 0 {
				w.WriteByte(',')
			}
			key, _ := json.Marshal(m.key)
			w.Write(key)
			w.WriteByte(':')
			if err := writeJSON(w, m.value); err != nil {
				return err
			}
		}
		w.WriteByte('}')
	case []any:
		w.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				w.WriteByte(',')
			}
			if err := writeJSON(w, item); err != nil {
				return err
			}
		}
		w.WriteByte(']')
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("encoding scalar: %w", err)
		}
		w.Write(b)
	}
	return nil
}

func readJSON(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}

	switch delim {
	case '{':
		o := object{}
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := keyTok.(string)
			if !ok {
				return nil, fmt.Errorf("object key %v is not a string", keyTok)
			}
			v, err := readJSON(dec)
			if err != nil {
				return nil, err
			}
			o = append(o, member{key: key, value: v})
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return o, nil
	case '[':
		arr := []any{}
		for dec.More() {
			v, err := readJSON(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil
	}
	return nil, fmt.Errorf("unexpected delimiter %v", delim)
}

// =============================================================================
// YAML
// =============================================================================

func toYAML(v any) (*yaml.Node, error) {
	switch val := v.(type) {
	case object:
		n := &yaml.Node{Kind: yaml.MappingNode}
		for _, m := range val {
			child, err := toYAML(m.value)
			if err != nil {
				return nil, err
			}
			key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: m.key}
			n.Content = append(n.Content, key, child)
		}
		return n, nil
	case []any:
		n := &yaml.Node{Kind: yaml.SequenceNode}
		for _, item := range val {
			child, err := toYAML(item)
			if err != nil {
				return nil, err
			}
			n.Content = append(n.Content, child)
		}
		return n, nil
	}
	n := &yaml.Node{}
	if err := n.Encode(v); err != nil {
		return nil, fmt.Errorf("encoding scalar: %w", err)
	}
	return n, nil
}

func fromYAML(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) != 1 {
			return nil, fmt.Errorf("%w: empty document", ErrMalformedDump)
		}
		return fromYAML(n.Content[0])
	case yaml.MappingNode:
		o := object{}
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := fromYAML(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			o = append(o, member{key: n.Content[i].Value, value: v})
		}
		return o, nil
	case yaml.SequenceNode:
		arr := []any{}
		for _, c := range n.Content {
			v, err := fromYAML(c)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		return arr, nil
	case yaml.AliasNode:
		return fromYAML(n.Alias)
	}
	var v any
	if err := n.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDump, err)
	}
	return v, nil
}

// =============================================================================
// msgpack
// =============================================================================

// toMsgpack encodes node objects as maps with data as [name, value] pairs,
// which keeps field order through the unordered msgpack map.
func toMsgpack(v any) any {
	switch val := v.(type) {
	case object:
		out := make(map[string]any, len(val))
		for _, m := range val {
			switch m.key {
			case "data":
				data, _ := m.value.(object)
				pairs := make([]any, 0, len(data))
				for _, d := range data {
					pairs = append(pairs, []any{d.key, toMsgpack(d.value)})
				}
				out["data"] = pairs
			case "position":
				pos := map[string]any{}
				for _, p := range m.value.(object) {
					pos[p.key] = p.value
				}
				out["position"] = pos
			default:
				out[m.key] = m.value
			}
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = toMsgpack(item)
		}
		return out
	}
	return v
}

func fromMsgpack(v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		kind, ok := val["type"]
		if !ok {
			return nil, fmt.Errorf("%w: map without type", ErrMalformedDump)
		}
		o := object{{key: "type", value: kind}}

		data := object{}
		pairs, _ := val["data"].([]any)
		for _, p := range pairs {
			pair, ok := p.([]any)
			if !ok || len(pair) != 2 {
				return nil, fmt.Errorf("%w: field is not a pair", ErrMalformedDump)
			}
			name, ok := pair[0].(string)
			if !ok {
				return nil, fmt.Errorf("%w: field name is not a string", ErrMalformedDump)
			}
			fv, err := fromMsgpack(pair[1])
			if err != nil {
				return nil, err
			}
			data = append(data, member{key: name, value: fv})
		}
		o = append(o, member{key: "data", value: data})

		if posRaw, ok := val["position"].(map[string]any); ok {
			pos := object{}
			for _, key := range []string{"line_start", "column_start", "line_end", "column_end"} {
				pos = append(pos, member{key: key, value: posRaw[key]})
			}
			o = append(o, member{key: "position", value: pos})
		}
		return o, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			built, err := fromMsgpack(item)
			if err != nil {
				return nil, err
			}
			out[i] = built
		}
		return out, nil
	}
	return v, nil
}
