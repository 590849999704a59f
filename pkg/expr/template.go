// Package expr implements the restricted template language used by
// block properties and standalone variables: literal text interspersed
// with ${name|filter:arg|...} placeholders, plus ordered regex replace
// chains and numeric parsing for number blocks.
//
// Templates are parsed once per declaration and re-evaluated against
// variable snapshots; resolution is a pure function of the lookup it is
// given and never fails. An unknown variable resolves to the empty
// string and an unknown filter passes the value through unchanged, so a
// malformed declaration degrades the one widget it feeds rather than
// the whole display.
package expr

import (
	"fmt"
	"strings"
)

// Lookup resolves a qualified variable name to its current value.
type Lookup func(name string) (string, bool)

// node is one segment of a parsed template.
type node struct {
	literal string
	ref     string   // qualified variable name, "" for literals
	filters []filter // applied left to right
}

// Template is a parsed property expression.
type Template struct {
	raw   string
	nodes []node
}

// Parse parses a template string. The only possible syntax error is an
// unterminated ${...} placeholder.
func Parse(s string) (*Template, error) {
	t := &Template{raw: s}
	var lit strings.Builder
	i := 0
	for i < len(s) {
		c := s[i]
		if c != '$' {
			lit.WriteByte(c)
			i++
			continue
		}
		// '$' not followed by '{' is literal, including a trailing '$'.
		if i+1 >= len(s) || s[i+1] != '{' {
			lit.WriteByte(c)
			if i+1 < len(s) {
				lit.WriteByte(s[i+1])
			}
			i += 2
			continue
		}
		end := strings.IndexByte(s[i+2:], '}')
		if end < 0 {
			return nil, fmt.Errorf("unterminated placeholder in %q", s)
		}
		if lit.Len() > 0 {
			t.nodes = append(t.nodes, node{literal: lit.String()})
			lit.Reset()
		}
		ref, filters := parsePlaceholder(s[i+2 : i+2+end])
		t.nodes = append(t.nodes, node{ref: ref, filters: filters})
		i += 2 + end + 1
	}
	if lit.Len() > 0 {
		t.nodes = append(t.nodes, node{literal: lit.String()})
	}
	return t, nil
}

// MustParse is Parse for statically known templates.
func MustParse(s string) *Template {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

func parsePlaceholder(s string) (string, []filter) {
	parts := strings.Split(s, "|")
	ref := strings.TrimSpace(parts[0])
	var filters []filter
	for _, p := range parts[1:] {
		name, arg, _ := strings.Cut(p, ":")
		filters = append(filters, filter{name: strings.TrimSpace(name), arg: arg})
	}
	return ref, filters
}

// String returns the original template text.
func (t *Template) String() string {
	if t == nil {
		return ""
	}
	return t.raw
}

// IsLiteral reports whether the template contains no placeholders.
func (t *Template) IsLiteral() bool {
	if t == nil {
		return true
	}
	for _, n := range t.nodes {
		if n.ref != "" {
			return false
		}
	}
	return true
}

// References returns the qualified variable names the template reads,
// in order of appearance. Duplicates are preserved.
func (t *Template) References() []string {
	if t == nil {
		return nil
	}
	var refs []string
	for _, n := range t.nodes {
		if n.ref != "" {
			refs = append(refs, n.ref)
		}
	}
	return refs
}

// UnknownFilters returns the names of filters the engine does not
// implement. They behave as pass-throughs at resolve time; callers log
// them once at load.
func (t *Template) UnknownFilters() []string {
	if t == nil {
		return nil
	}
	var unknown []string
	for _, n := range t.nodes {
		for _, f := range n.filters {
			if !f.known() {
				unknown = append(unknown, f.name)
			}
		}
	}
	return unknown
}

// Resolve expands the template against the given lookup. Unknown
// variables resolve to the empty string.
func (t *Template) Resolve(vars Lookup) string {
	if t == nil {
		return ""
	}
	var b strings.Builder
	for _, n := range t.nodes {
		if n.ref == "" {
			b.WriteString(n.literal)
			continue
		}
		v, _ := vars(n.ref)
		for _, f := range n.filters {
			v = f.apply(v)
		}
		b.WriteString(v)
	}
	return b.String()
}

// ResolveMap is Resolve against a plain map.
func (t *Template) ResolveMap(vars map[string]string) string {
	return t.Resolve(func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	})
}
