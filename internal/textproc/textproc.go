// Package textproc normalises user text before recognition.
package textproc

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/ppiankov/intentra/internal/model"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// Preprocessor rewrites text before it reaches the recognizers
type Preprocessor interface {
	Preprocess(ctx context.Context, text string, rc model.Context) (string, error)
}

// Func adapts a plain function to Preprocessor
type Func func(ctx context.Context, text string, rc model.Context) (string, error)

// Preprocess calls f
func (f Func) Preprocess(ctx context.Context, text string, rc model.Context) (string, error) {
	return f(ctx, text, rc)
}

// Step is one named transformation
type Step struct {
	Name string
	Fn   func(string) (string, error)
}

// Chain applies steps in order
type Chain struct {
	steps []Step
}

// Built-in step names
const (
	StepHTML  = "html"
	StepWidth = "width"
	StepNFKC  = "nfkc"
	StepSpace = "space"
	StepLower = "lower"
)

var builtin = map[string]func(string) (string, error){
	StepHTML:  StripHTML,
	StepWidth: func(s string) (string, error) { return width.Fold.String(s), nil },
	StepNFKC:  func(s string) (string, error) { return norm.NFKC.String(s), nil },
	StepSpace: func(s string) (string, error) { return CollapseSpace(s), nil },
	StepLower: func(s string) (string, error) { return strings.ToLower(s), nil },
}

// StepNames returns the built-in step names in a stable order
func StepNames() []string {
	return []string{StepHTML, StepWidth, StepNFKC, StepSpace, StepLower}
}

// NewChain builds a chain from step names. Unknown names are rejected.
func NewChain(names ...string) (*Chain, error) {
	c := &Chain{}
	for _, name := range names {
		key := strings.ToLower(strings.TrimSpace(name))
		fn, ok := builtin[key]
		if !ok {
			return nil, fmt.Errorf("unknown preprocess step %q (supported: %s)", name, strings.Join(StepNames(), ", "))
		}
		c.steps = append(c.steps, Step{Name: key, Fn: fn})
	}
	return c, nil
}

// Steps returns the step names in order
func (c *Chain) Steps() []string {
	names := make([]string, len(c.steps))
	for i, s := range c.steps {
		names[i] = s.Name
	}
	return names
}

// Preprocess runs every step. The first failing step aborts the chain.
func (c *Chain) Preprocess(ctx context.Context, text string, _ model.Context) (string, error) {
	out := text
	for _, s := range c.steps {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		var err error
		out, err = s.Fn(out)
		if err != nil {
			return "", fmt.Errorf("step %s: %w", s.Name, err)
		}
	}
	return out, nil
}

// CollapseSpace trims text and replaces runs of whitespace with one space
func CollapseSpace(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// StripHTML returns the text content of an HTML fragment. Script and style
// contents are dropped; block-level elements become whitespace.
func StripHTML(s string) (string, error) {
	if !strings.ContainsAny(s, "<&") {
		return s, nil
	}

	nodes, err := html.ParseFragment(strings.NewReader(s), &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			switch n.Data {
			case "script", "style":
				return
			case "br", "p", "div", "li", "tr":
				b.WriteByte(' ')
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return b.String(), nil
}
