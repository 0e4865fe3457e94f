package vellum

import (
	"errors"
	"strings"

	"github.com/vellumtext/vellum/lexer"
)

// Node is a compiled template fragment. Render evaluates the node against
// the variable scope and returns its textual output. Implementations should
// embed NodeBase so parse errors and debug reports can point at the
// originating source token.
type Node interface {
	Render(c *Context) (string, error)
}

// NodeBase carries the source position shared by all node kinds. The parser
// fills it in when the node is added to a node list; a node constructed by a
// tag function does not set it itself.
type NodeBase struct {
	Token  *lexer.Token
	Origin *Origin
}

func (b *NodeBase) base() *NodeBase { return b }

// MustBeFirst reports whether the node is only valid as the first tag of a
// template. The default is false; tags like template inheritance roots
// override it.
func (b *NodeBase) MustBeFirst() bool { return false }

// bindSource attaches the source position unless one is already set, so a
// node reused inside another node keeps its original location.
func (b *NodeBase) bindSource(token *lexer.Token, origin *Origin) {
	if b.Token == nil {
		b.Token = token
	}
	if b.Origin == nil {
		b.Origin = origin
	}
}

// RenderAnnotated renders a node and annotates any failure with the node's
// source position. When the engine runs in debug mode the first failing node
// also records the full source context for the debug report; an error that
// is already annotated is passed through untouched, so the innermost node
// wins.
func RenderAnnotated(n Node, c *Context) (string, error) {
	s, err := n.Render(c)
	if err == nil {
		return s, nil
	}
	var te *Error
	if !errors.As(err, &te) {
		te = &Error{Kind: ErrRender, Message: err.Error(), Cause: err}
	}
	if nb, ok := n.(interface{ base() *NodeBase }); ok {
		te.WithToken(nb.base().Token).WithOrigin(nb.base().Origin)
		if te.Debug == nil {
			if t := c.RenderContext.Template(); t != nil && t.engine != nil && t.engine.debug {
				te.Debug = t.exceptionInfo(te, nb.base().Token)
			}
		}
	}
	return "", te
}

// TextNode is the literal text between tags. It renders as-is.
type TextNode struct {
	NodeBase
	Text string
}

func (n *TextNode) Render(c *Context) (string, error) {
	return n.Text, nil
}

// VariableNode renders a filter expression, escaped and localized per the
// context settings.
type VariableNode struct {
	NodeBase
	Expr *FilterExpression
}

func (n *VariableNode) Render(c *Context) (string, error) {
	value, err := n.Expr.Resolve(c, false)
	if err != nil {
		return "", err
	}
	return RenderValueInContext(value, c), nil
}

// RenderValueInContext converts any resolved value to a string suitable for
// template output: times are converted to the active timezone, numbers and
// dates are localized, and the result is escaped unless it carries the safe
// taint or autoescaping is off.
func RenderValueInContext(value any, c *Context) string {
	value = TemplateLocaltime(value, c.UseTZ)
	value = Localize(value, c)
	if c.Autoescape {
		return string(ConditionalEscape(value))
	}
	return Stringify(value)
}

// NodeList is an ordered sequence of nodes rendered by concatenation. It is
// itself a Node, so tag bodies nest naturally.
type NodeList struct {
	NodeBase
	nodes []Node

	// containsNonText is set once any node other than literal text has been
	// appended; must-be-first tags check it.
	containsNonText bool
}

// NewNodeList creates a node list over the given nodes.
func NewNodeList(nodes ...Node) *NodeList {
	nl := &NodeList{}
	for _, n := range nodes {
		nl.Append(n)
	}
	return nl
}

// Append adds a node at the end of the list.
func (nl *NodeList) Append(n Node) {
	if _, isText := n.(*TextNode); !isText {
		nl.containsNonText = true
	}
	nl.nodes = append(nl.nodes, n)
}

// Nodes returns the nodes in render order.
func (nl *NodeList) Nodes() []Node {
	return nl.nodes
}

// Len returns the number of nodes in the list.
func (nl *NodeList) Len() int {
	return len(nl.nodes)
}

// Render renders every node in order and concatenates the output. Each node
// is rendered annotated, so a failure deep in a tag body surfaces with the
// position of the node that raised it.
func (nl *NodeList) Render(c *Context) (string, error) {
	var b strings.Builder
	for _, n := range nl.nodes {
		bit, err := RenderAnnotated(n, c)
		if err != nil {
			return "", err
		}
		b.WriteString(bit)
	}
	return b.String(), nil
}

// ChildNodeLister exposes a node's nested node lists so tree walks can
// descend into tag bodies.
type ChildNodeLister interface {
	ChildNodeLists() []*NodeList
}

// NodesByType collects every node of a concrete type from the tree in
// pre-order, descending into any node that exposes child node lists.
func NodesByType[T Node](nl *NodeList) []T {
	var out []T
	for _, n := range nl.nodes {
		if match, ok := n.(T); ok {
			out = append(out, match)
		}
		if child, ok := n.(ChildNodeLister); ok {
			for _, sub := range child.ChildNodeLists() {
				out = append(out, NodesByType[T](sub)...)
			}
		}
	}
	return out
}
