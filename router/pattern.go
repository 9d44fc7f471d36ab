package router

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Pattern syntax:
//
//	/posts/:id          dynamic segment
//	/files/*path        wildcard, matches the rest of the path
//	/posts(/:slug)      optional group, may nest
//
// A trailing slash is always optional.

type nodeKind int

const (
	literalNode nodeKind = iota
	paramNode
	wildcardNode
	groupNode
)

type node struct {
	kind     nodeKind
	text     string // literal text or param name
	children []node
}

type pattern struct {
	source string
	nodes  []node
	re     *regexp.Regexp
	names  []string
}

// normalizePattern enforces a leading slash, unless the pattern opens with
// an optional group that supplies it, and drops a trailing one.
func normalizePattern(p string) string {
	p = strings.TrimSpace(p)
	if !strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "(/") {
		p = "/" + p
	}
	for len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

func compilePattern(raw string) (*pattern, error) {
	src := normalizePattern(raw)
	nodes, rest, err := parseNodes(src, 0)
	if err != nil {
		return nil, err
	}
	if rest != len(src) {
		return nil, fmt.Errorf("%w: unbalanced ')' in %q", ErrInvalidPattern, raw)
	}

	var b strings.Builder
	var names []string
	b.WriteString("^")
	if src != "/" {
		writeRegexp(&b, nodes, &names)
	}
	b.WriteString("/?$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidPattern, raw, err)
	}
	return &pattern{source: src, nodes: nodes, re: re, names: names}, nil
}

// parseNodes parses src from pos until the end or a closing parenthesis,
// returning the position it stopped at.
func parseNodes(src string, pos int) ([]node, int, error) {
	var nodes []node
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			nodes = append(nodes, node{kind: literalNode, text: lit.String()})
			lit.Reset()
		}
	}

	for pos < len(src) {
		switch c := src[pos]; c {
		case ':', '*':
			flush()
			start := pos + 1
			end := start
			for end < len(src) && isNameChar(src[end]) {
				end++
			}
			name := src[start:end]
			if name == "" {
				if c == ':' {
					return nil, pos, fmt.Errorf("%w: unnamed param in %q", ErrInvalidPattern, src)
				}
				name = "splat"
			}
			kind := paramNode
			if c == '*' {
				kind = wildcardNode
			}
			nodes = append(nodes, node{kind: kind, text: name})
			pos = end
		case '(':
			flush()
			children, next, err := parseNodes(src, pos+1)
			if err != nil {
				return nil, next, err
			}
			if next >= len(src) || src[next] != ')' {
				return nil, next, fmt.Errorf("%w: unclosed '(' in %q", ErrInvalidPattern, src)
			}
			nodes = append(nodes, node{kind: groupNode, children: children})
			pos = next + 1
		case ')':
			flush()
			return nodes, pos, nil
		default:
			lit.WriteByte(c)
			pos++
		}
	}
	flush()
	return nodes, pos, nil
}

func isNameChar(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

func writeRegexp(b *strings.Builder, nodes []node, names *[]string) {
	for _, n := range nodes {
		switch n.kind {
		case literalNode:
			b.WriteString(regexp.QuoteMeta(n.text))
		case paramNode:
			*names = append(*names, n.text)
			b.WriteString("([^/]+)")
		case wildcardNode:
			*names = append(*names, n.text)
			b.WriteString("(.*?)")
		case groupNode:
			b.WriteString("(?:")
			writeRegexp(b, n.children, names)
			b.WriteString(")?")
		}
	}
}

// match returns the params extracted from the escaped path, or false. Each
// param is decoded exactly once.
func (p *pattern) match(path string) (map[string]string, bool) {
	m := p.re.FindStringSubmatch(path)
	if m == nil {
		return nil, false
	}
	params := make(map[string]string, len(p.names))
	for i, name := range p.names {
		v := m[i+1]
		if v == "" {
			continue
		}
		if unescaped, err := url.PathUnescape(v); err == nil {
			v = unescaped
		}
		params[name] = v
	}
	return params, true
}

// reverse builds a path from data. Optional groups are emitted only when
// every param inside them is present; a missing required param fails.
func (p *pattern) reverse(data map[string]any) (string, bool) {
	out, ok := reverseNodes(p.nodes, data)
	if !ok {
		return "", false
	}
	if out == "" {
		return "/", true
	}
	return out, true
}

func reverseNodes(nodes []node, data map[string]any) (string, bool) {
	var b strings.Builder
	for _, n := range nodes {
		switch n.kind {
		case literalNode:
			b.WriteString(n.text)
		case paramNode, wildcardNode:
			v, ok := data[n.text]
			if !ok || v == nil {
				return "", false
			}
			s := fmt.Sprint(v)
			if s == "" {
				return "", false
			}
			if n.kind == paramNode {
				s = url.PathEscape(s)
			}
			b.WriteString(s)
		case groupNode:
			if s, ok := reverseNodes(n.children, data); ok {
				b.WriteString(s)
			}
		}
	}
	return b.String(), true
}
