// Package newick reads rooted trees in Newick format.
//
// Branch-model regions are marked with a label wrapped in underscores directly after
// a branch length, e.g. "(a:0.1,(b:0.2,c:0.3):0.4_m1_);" puts the branch to the
// (b,c) clade and everything below it under model "m1". Comments in square brackets
// are skipped; names may be single-quoted.
package newick

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/phylosim/phylosim/sim"
)

// Parse reads one tree terminated by ';'.
func Parse(s string) (*sim.Tree, error) {
	p := &parser{src: s}
	p.skip()
	if p.done() {
		return nil, fmt.Errorf("%w: empty newick string", sim.ErrInvalidParameter)
	}
	root, err := p.subtree(0)
	if err != nil {
		return nil, err
	}
	p.skip()
	if p.peek() != ';' {
		return nil, p.errorf("expected ';' at end of tree")
	}
	p.pos++
	p.skip()
	if !p.done() {
		return nil, p.errorf("unexpected text after ';'")
	}
	return &sim.Tree{Root: root}, nil
}

// ReadFile parses the first tree in a file.
func ReadFile(path string) (*sim.Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tree file: %w", err)
	}
	return Parse(strings.TrimSpace(string(data)))
}

// Format writes t back as Newick, including branch-model labels.
func Format(t *sim.Tree) string {
	var sb strings.Builder
	var write func(n *sim.Node, root bool)
	write = func(n *sim.Node, root bool) {
		if !n.IsLeaf() {
			sb.WriteByte('(')
			for i, c := range n.Children {
				if i > 0 {
					sb.WriteByte(',')
				}
				write(c, false)
			}
			sb.WriteByte(')')
		}
		sb.WriteString(quoteName(n.Name))
		if !root {
			sb.WriteByte(':')
			sb.WriteString(strconv.FormatFloat(n.BranchLength, 'g', -1, 64))
			if n.ModelLabel != "" {
				sb.WriteString("_" + n.ModelLabel + "_")
			}
		}
	}
	if t != nil && t.Root != nil {
		write(t.Root, true)
	}
	sb.WriteByte(';')
	return sb.String()
}

func quoteName(name string) string {
	if strings.ContainsAny(name, "()[],:; \t'") {
		return "'" + strings.ReplaceAll(name, "'", "''") + "'"
	}
	return name
}

// maxDepth bounds nesting so malformed input cannot exhaust the stack.
const maxDepth = 10000

type parser struct {
	src string
	pos int
}

func (p *parser) done() bool { return p.pos >= len(p.src) }

func (p *parser) peek() byte {
	if p.done() {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: newick offset %d: %s", sim.ErrInvalidParameter, p.pos, fmt.Sprintf(format, args...))
}

// skip consumes whitespace and [bracketed comments].
func (p *parser) skip() {
	for !p.done() {
		switch c := p.peek(); {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			p.pos++
		case c == '[':
			end := strings.IndexByte(p.src[p.pos:], ']')
			if end < 0 {
				p.pos = len(p.src)
				return
			}
			p.pos += end + 1
		default:
			return
		}
	}
}

func (p *parser) subtree(depth int) (*sim.Node, error) {
	if depth > maxDepth {
		return nil, p.errorf("tree nested deeper than %d levels", maxDepth)
	}
	n := &sim.Node{}
	p.skip()
	if p.peek() == '(' {
		p.pos++
		for {
			child, err := p.subtree(depth + 1)
			if err != nil {
				return nil, err
			}
			n.Children = append(n.Children, child)
			p.skip()
			switch p.peek() {
			case ',':
				p.pos++
				continue
			case ')':
				p.pos++
			default:
				return nil, p.errorf("expected ',' or ')'")
			}
			break
		}
	}
	p.skip()
	name, err := p.name()
	if err != nil {
		return nil, err
	}
	n.Name = name
	p.skip()
	if p.peek() == ':' {
		p.pos++
		p.skip()
		length, err := p.number()
		if err != nil {
			return nil, err
		}
		n.BranchLength = length
		label, err := p.label()
		if err != nil {
			return nil, err
		}
		n.ModelLabel = label
	}
	if n.IsLeaf() && n.Name == "" {
		return nil, p.errorf("leaf without a name")
	}
	return n, nil
}

func (p *parser) name() (string, error) {
	if p.peek() == '\'' {
		var sb strings.Builder
		p.pos++
		for {
			if p.done() {
				return "", p.errorf("unterminated quoted name")
			}
			c := p.src[p.pos]
			p.pos++
			if c == '\'' {
				if p.peek() == '\'' {
					sb.WriteByte('\'')
					p.pos++
					continue
				}
				return sb.String(), nil
			}
			sb.WriteByte(c)
		}
	}
	start := p.pos
	for !p.done() && !strings.ContainsRune("()[],:; \t\r\n'", rune(p.peek())) {
		p.pos++
	}
	return p.src[start:p.pos], nil
}

func (p *parser) number() (float64, error) {
	start := p.pos
	for !p.done() && strings.ContainsRune("0123456789.eE+-", rune(p.peek())) {
		// '_' ends the number; an exponent sign only follows e/E
		c := p.peek()
		if (c == '+' || c == '-') && p.pos > start && p.src[p.pos-1] != 'e' && p.src[p.pos-1] != 'E' {
			break
		}
		p.pos++
	}
	if start == p.pos {
		return 0, p.errorf("expected a branch length")
	}
	v, err := strconv.ParseFloat(p.src[start:p.pos], 64)
	if err != nil {
		return 0, p.errorf("invalid branch length %q", p.src[start:p.pos])
	}
	return v, nil
}

// label reads an optional "_name_" directly after a branch length.
func (p *parser) label() (string, error) {
	if p.peek() != '_' {
		return "", nil
	}
	end := strings.IndexByte(p.src[p.pos+1:], '_')
	if end < 0 {
		return "", p.errorf("unterminated branch-model label")
	}
	label := p.src[p.pos+1 : p.pos+1+end]
	if label == "" || strings.ContainsAny(label, "()[],:; \t\r\n") {
		return "", p.errorf("invalid branch-model label %q", label)
	}
	p.pos += end + 2
	return label, nil
}
