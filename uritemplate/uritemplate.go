// Package uritemplate implements the subset of RFC 6570 URI Templates that the
// MCP resource-template routing layer needs: expansion of a template against a
// variable binding, and matching of a concrete URI back into bindings.
package uritemplate

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// operator is the leading character of a template expression, e.g. the '+' in
// "{+path}". The empty operator has no leading character.
type operator byte

const (
	opSimple    operator = 0
	opReserved  operator = '+'
	opFragment  operator = '#'
	opLabel     operator = '.'
	opPathSeg   operator = '/'
	opQuery     operator = '?'
	opQueryCont operator = '&'
)

// expression is one {...} region of the template.
type expression struct {
	op   operator
	vars []string
}

// Template is a compiled RFC 6570 (subset) URI template.
type Template struct {
	pattern string
	parts   []part
	vars    []string
	match   *regexp.Regexp
}

// part is either a literal run of text or a parsed expression.
type part struct {
	literal string
	expr    *expression
}

// InvalidPatternError is returned by Parse when a pattern cannot be compiled.
type InvalidPatternError struct {
	Pattern string
	Reason  string
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("uritemplate: invalid pattern %q: %s", e.Pattern, e.Reason)
}

var operatorPrefixes = map[byte]operator{
	'+': opReserved,
	'#': opFragment,
	'.': opLabel,
	'/': opPathSeg,
	'?': opQuery,
	'&': opQueryCont,
}

// Parse compiles a URI template pattern.
func Parse(pattern string) (*Template, error) {
	t := &Template{pattern: pattern}
	seen := make(map[string]bool)

	var regexBuf strings.Builder
	regexBuf.WriteString("^")

	i := 0
	for i < len(pattern) {
		open := strings.IndexByte(pattern[i:], '{')
		if open == -1 {
			lit := pattern[i:]
			t.parts = append(t.parts, part{literal: lit})
			regexBuf.WriteString(regexp.QuoteMeta(lit))
			break
		}
		open += i
		if open > i {
			lit := pattern[i:open]
			t.parts = append(t.parts, part{literal: lit})
			regexBuf.WriteString(regexp.QuoteMeta(lit))
		}
		close := strings.IndexByte(pattern[open:], '}')
		if close == -1 {
			return nil, &InvalidPatternError{Pattern: pattern, Reason: "unterminated '{'"}
		}
		close += open

		body := pattern[open+1 : close]
		if body == "" {
			return nil, &InvalidPatternError{Pattern: pattern, Reason: "empty expression"}
		}

		op := opSimple
		varlist := body
		if o, ok := operatorPrefixes[body[0]]; ok {
			op = o
			varlist = body[1:]
		} else if body[0] == ',' || body[0] == '}' {
			return nil, &InvalidPatternError{Pattern: pattern, Reason: "invalid operator"}
		}
		if varlist == "" {
			return nil, &InvalidPatternError{Pattern: pattern, Reason: "expression has no variables"}
		}
		names := strings.Split(varlist, ",")
		for _, n := range names {
			if n == "" {
				return nil, &InvalidPatternError{Pattern: pattern, Reason: "empty variable name"}
			}
			if !seen[n] {
				seen[n] = true
				t.vars = append(t.vars, n)
			}
		}

		e := &expression{op: op, vars: names}
		t.parts = append(t.parts, part{expr: e})
		prefix, _ := modifierEffects(op)
		regexBuf.WriteString(regexp.QuoteMeta(prefix))
		regexBuf.WriteString(matchGroupFor(op))

		i = close + 1
	}
	regexBuf.WriteString("$")

	re, err := regexp.Compile(regexBuf.String())
	if err != nil {
		return nil, &InvalidPatternError{Pattern: pattern, Reason: err.Error()}
	}
	t.match = re
	return t, nil
}

// matchGroupFor returns the capture-group regex for a single expression,
// per spec §4.A's operator -> character-class table.
func matchGroupFor(op operator) string {
	switch op {
	case opQuery, opQueryCont:
		return "([^&]+)"
	case opReserved, opFragment:
		return "([^/]+(?:/[^/]+)*)"
	default:
		return "([^/]+)"
	}
}

// String returns the original pattern text.
func (t *Template) String() string {
	return t.pattern
}

// Variables returns the variable names referenced by the template, in the
// order they first appear.
func (t *Template) Variables() []string {
	out := make([]string, len(t.vars))
	copy(out, t.vars)
	return out
}

var unreservedOrReserved = func(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return true
	case strings.ContainsRune("-._~:/?#[]@!$&'()*+,;=", r):
		return true
	}
	return false
}

// Expand substitutes vars into the template. Any expression whose variables
// are all absent from vars is erased (replaced with an empty string) once
// substitution of the present variables is complete.
func (t *Template) Expand(vars map[string]any) string {
	var out strings.Builder
	for _, p := range t.parts {
		if p.expr == nil {
			out.WriteString(p.literal)
			continue
		}
		out.WriteString(expandExpression(p.expr, vars))
	}
	return out.String()
}

func expandExpression(e *expression, vars map[string]any) string {
	prefix, encode := modifierEffects(e.op)

	var rendered []string
	for _, name := range e.vars {
		v, ok := vars[name]
		if !ok || v == nil {
			continue
		}
		rendered = append(rendered, stringify(v, encode))
	}
	if len(rendered) == 0 {
		// every variable in this expression is absent: erase it.
		return ""
	}
	return prefix + strings.Join(rendered, ",")
}

func modifierEffects(op operator) (prefix string, encode bool) {
	switch op {
	case opReserved:
		return "", false
	case opFragment:
		return "#", false
	case opQuery:
		return "?", false
	case opQueryCont:
		return "&", false
	case opLabel:
		return ".", false
	case opPathSeg:
		return "/", false
	default:
		return "", true
	}
}

func stringify(v any, encode bool) string {
	var s string
	switch vv := v.(type) {
	case string:
		s = vv
	case []string:
		parts := make([]string, len(vv))
		for i, e := range vv {
			parts[i] = maybeEncode(e, encode)
		}
		return strings.Join(parts, ",")
	case []any:
		parts := make([]string, len(vv))
		for i, e := range vv {
			parts[i] = maybeEncode(fmt.Sprintf("%v", e), encode)
		}
		return strings.Join(parts, ",")
	default:
		s = fmt.Sprintf("%v", vv)
	}
	return maybeEncode(s, encode)
}

func maybeEncode(s string, encode bool) string {
	if !encode {
		return s
	}
	var out strings.Builder
	for _, r := range s {
		if unreservedOrReserved(r) && r != '%' {
			out.WriteRune(r)
			continue
		}
		out.WriteString(url.PathEscape(string(r)))
	}
	return out.String()
}

// Match attempts to match uri against the compiled template, returning the
// bound variables on success.
//
// BUG: a multi-name expression such as {a,b} compiles to a single capture
// group; both a and b receive the identical raw, comma-joined capture. RFC
// 6570-correct behavior would split the capture per variable. This is a known
// limitation, preserved intentionally (see SPEC_FULL.md §7.1).
func (t *Template) Match(uri string) (map[string]string, bool) {
	m := t.match.FindStringSubmatch(uri)
	if m == nil {
		return nil, false
	}
	bindings := make(map[string]string)
	group := 1
	for _, p := range t.parts {
		if p.expr == nil {
			continue
		}
		captured := m[group]
		group++
		for _, name := range p.expr.vars {
			bindings[name] = captured
		}
	}
	return bindings, true
}
