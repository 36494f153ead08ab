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
	"slices"
	"sort"
	"strings"
)

// KindInfo describes one node kind of a language.
type KindInfo struct {
	// Kind is the tag the parser emits.
	Kind string

	// Priority is the selection priority of nodes of this kind.
	Priority int

	// Display is the human phrase used in feedback ("expression").
	// Defaults to Kind with underscores replaced by spaces.
	Display string

	// Fields maps field names to human phrases ("left operand").
	Fields map[string]string

	// Subkinds turns the entry into a family: a search for the family
	// matches any of the listed kinds.
	Subkinds []string

	// ListFields names the fields that hold a list of nodes however many
	// the source has, including none.
	ListFields []string
}

// IsFamily reports whether the entry groups other kinds.
func (k KindInfo) IsFamily() bool {
	return len(k.Subkinds) > 0
}

// Catalogue is the static kind table of one language.
//
// Description:
//
//	The catalogue maps kinds to priorities and display phrases, and
//	friendly aliases ("Expr") to kinds. It is filled during setup with
//	Add and Alias and must not be modified once nodes are built from it.
//
// Thread Safety:
//
//	Safe for concurrent reads after setup.
type Catalogue struct {
	language        string
	defaultPriority int
	kinds           map[string]KindInfo
	aliases         map[string]string
}

// NewCatalogue creates a catalogue for language holding kinds.
func NewCatalogue(language string, kinds ...KindInfo) *Catalogue {
	c := &Catalogue{
		language: language,
		kinds:    make(map[string]KindInfo, len(kinds)),
		aliases:  make(map[string]string),
	}
	for _, k := range kinds {
		c.Add(k)
	}
	return c
}

// Language returns the language name.
func (c *Catalogue) Language() string {
	return c.language
}

// Add registers or replaces a kind. Returns c for chaining.
func (c *Catalogue) Add(info KindInfo) *Catalogue {
	c.kinds[info.Kind] = info
	return c
}

// Alias registers a friendly name for kind. Returns c for chaining.
func (c *Catalogue) Alias(name, kind string) *Catalogue {
	c.aliases[name] = kind
	return c
}

// WithDefaultPriority sets the priority of kinds absent from the table.
func (c *Catalogue) WithDefaultPriority(p int) *Catalogue {
	c.defaultPriority = p
	return c
}

// Lookup resolves a kind or alias to its entry.
func (c *Catalogue) Lookup(name string) (KindInfo, bool) {
	if c == nil {
		return KindInfo{}, false
	}
	if kind, ok := c.aliases[name]; ok {
		name = kind
	}
	info, ok := c.kinds[name]
	return info, ok
}

// Priority returns the priority of kind.
func (c *Catalogue) Priority(kind string) int {
	if c == nil {
		return 0
	}
	if info, ok := c.Lookup(kind); ok {
		return info.Priority
	}
	return c.defaultPriority
}

// DisplayName returns the human phrase for kind.
func (c *Catalogue) DisplayName(kind string) string {
	if info, ok := c.Lookup(kind); ok && info.Display != "" {
		return info.Display
	}
	return humanize(kind)
}

// FieldName returns the human phrase for field of kind.
func (c *Catalogue) FieldName(kind, field string) string {
	if info, ok := c.Lookup(kind); ok {
		if phrase, ok := info.Fields[field]; ok {
			return phrase
		}
	}
	return humanize(field)
}

// IsListField reports whether field of kind always holds a []Node.
func (c *Catalogue) IsListField(kind, field string) bool {
	info, ok := c.Lookup(kind)
	return ok && slices.Contains(info.ListFields, field)
}

// ListFields returns the list fields of kind.
func (c *Catalogue) ListFields(kind string) []string {
	info, _ := c.Lookup(kind)
	return info.ListFields
}

// Kinds returns every registered kind, sorted.
func (c *Catalogue) Kinds() []string {
	out := make([]string, 0, len(c.kinds))
	for k := range c.kinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Node builds a node of kind that takes its priority from c.
func (c *Catalogue) Node(kind string, fields ...Field) *Generic {
	g := New(kind, fields...)
	g.catalogue = c
	return g
}

func humanize(s string) string {
	return strings.ReplaceAll(s, "_", " ")
}
