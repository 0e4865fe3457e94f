package vellum

import (
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/vellumtext/vellum/lexer"
)

// DefaultLibrary returns the builtin tags and filters. Engines created with
// New register it automatically.
func DefaultLibrary() *Library {
	lib := NewLibrary()

	lib.Tag("autoescape", autoescapeTag)
	lib.Tag("comment", commentTag)
	lib.Tag("filter", filterTag)
	lib.Tag("firstof", firstofTag)
	lib.Tag("for", forTag)
	lib.Tag("if", ifTag)
	lib.Tag("verbatim", verbatimTag)
	lib.Tag("with", withTag)

	lib.Filter("add", addFilter)
	lib.Filter("date", dateFilter, FilterExpectsLocaltime)
	lib.Filter("default", defaultFilter)
	lib.Filter("escape", escapeFilter, FilterIsSafe)
	lib.Filter("join", joinFilter, FilterIsSafe, FilterNeedsAutoescape)
	lib.Filter("length", lengthFilter)
	lib.Filter("lower", lowerFilter, FilterIsSafe)
	lib.Filter("safe", safeFilter, FilterIsSafe)
	lib.Filter("truncatechars", truncatecharsFilter, FilterIsSafe)
	// upper can turn entities into markup ("&amp;" -> "&AMP;"), so its
	// output is never considered safe.
	lib.Filter("upper", upperFilter)

	return lib
}

// CommentNode renders nothing; its body was discarded at parse time.
type CommentNode struct {
	NodeBase
}

func (n *CommentNode) Render(c *Context) (string, error) {
	return "", nil
}

func commentTag(p *Parser, token *lexer.Token) (Node, error) {
	if err := p.SkipPast("endcomment"); err != nil {
		return nil, err
	}
	return &CommentNode{}, nil
}

// VerbatimNode holds pre-rendered literal content.
type VerbatimNode struct {
	NodeBase
	Content string
}

func (n *VerbatimNode) Render(c *Context) (string, error) {
	return n.Content, nil
}

func verbatimTag(p *Parser, token *lexer.Token) (Node, error) {
	nodelist, err := p.Parse("endverbatim")
	if err != nil {
		return nil, err
	}
	p.DeleteFirstToken()
	// The body is all literal text, so it can be rendered once now.
	content, err := nodelist.Render(NewContext(nil))
	if err != nil {
		return nil, err
	}
	return &VerbatimNode{Content: content}, nil
}

type ifCondition struct {
	expr     *FilterExpression // nil for the else branch
	negated  bool
	nodelist *NodeList
}

// IfNode renders the first branch whose condition is truthy.
type IfNode struct {
	NodeBase
	conditions []ifCondition
}

func (n *IfNode) Render(c *Context) (string, error) {
	for _, cond := range n.conditions {
		match := true
		if cond.expr != nil {
			v, err := cond.expr.Resolve(c, true)
			if err != nil {
				return "", err
			}
			match = IsTrue(v)
			if cond.negated {
				match = !match
			}
		}
		if match {
			return cond.nodelist.Render(c)
		}
	}
	return "", nil
}

func (n *IfNode) ChildNodeLists() []*NodeList {
	lists := make([]*NodeList, len(n.conditions))
	for i, cond := range n.conditions {
		lists[i] = cond.nodelist
	}
	return lists
}

func compileCondition(p *Parser, bits []string, tagName string) (ifCondition, error) {
	negated := false
	if len(bits) > 0 && bits[0] == "not" {
		negated = true
		bits = bits[1:]
	}
	if len(bits) != 1 {
		return ifCondition{}, NewError(ErrSyntax,
			"'%s' tag takes a single, optionally negated condition", tagName)
	}
	expr, err := p.CompileFilter(bits[0])
	if err != nil {
		return ifCondition{}, err
	}
	return ifCondition{expr: expr, negated: negated}, nil
}

func ifTag(p *Parser, token *lexer.Token) (Node, error) {
	node := &IfNode{}
	cond, err := compileCondition(p, token.SplitContents()[1:], "if")
	if err != nil {
		return nil, err
	}
	for {
		nodelist, err := p.Parse("elif", "else", "endif")
		if err != nil {
			return nil, err
		}
		cond.nodelist = nodelist
		node.conditions = append(node.conditions, cond)

		end := p.NextToken()
		command, _, _ := strings.Cut(end.Contents, " ")
		switch command {
		case "elif":
			cond, err = compileCondition(p, end.SplitContents()[1:], "elif")
			if err != nil {
				return nil, err
			}
		case "else":
			nodelist, err := p.Parse("endif")
			if err != nil {
				return nil, err
			}
			node.conditions = append(node.conditions, ifCondition{nodelist: nodelist})
			p.DeleteFirstToken()
			return node, nil
		default: // endif
			return node, nil
		}
	}
}

// ForNode renders its body once per item of a resolved sequence, exposing
// the forloop counters. An empty or missing sequence renders the empty
// branch instead.
type ForNode struct {
	NodeBase
	loopvars      []string
	sequence      *FilterExpression
	reversed      bool
	nodelistLoop  *NodeList
	nodelistEmpty *NodeList
}

func (n *ForNode) Render(c *Context) (string, error) {
	values, err := n.sequence.Resolve(c, true)
	if err != nil {
		return "", err
	}
	var items []any
	if values != nil {
		var ok bool
		items, ok = iterItems(values)
		if !ok {
			return "", NewError(ErrRender, "'for' loop sequence %s is not iterable: %T",
				n.sequence, values)
		}
	}
	if len(items) == 0 {
		if n.nodelistEmpty != nil {
			return n.nodelistEmpty.Render(c)
		}
		return "", nil
	}
	if n.reversed {
		reversed := make([]any, len(items))
		for i, item := range items {
			reversed[len(items)-1-i] = item
		}
		items = reversed
	}

	parentloop := map[string]any{}
	if parent, ok := c.Get("forloop"); ok {
		if m, ok := parent.(map[string]any); ok {
			parentloop = m
		}
	}
	release := c.Push()
	defer release()

	loop := map[string]any{"parentloop": parentloop}
	c.Set("forloop", loop)

	var b strings.Builder
	total := len(items)
	for i, item := range items {
		loop["counter0"] = i
		loop["counter"] = i + 1
		loop["revcounter"] = total - i
		loop["revcounter0"] = total - i - 1
		loop["first"] = i == 0
		loop["last"] = i == total-1

		if len(n.loopvars) > 1 {
			sub, ok := iterItems(item)
			if !ok || len(sub) != len(n.loopvars) {
				got := 1
				if ok {
					got = len(sub)
				}
				return "", NewError(ErrRender,
					"Need %d values to unpack in for loop; got %d.", len(n.loopvars), got)
			}
			for j, name := range n.loopvars {
				c.Set(name, sub[j])
			}
		} else {
			c.Set(n.loopvars[0], item)
		}

		bit, err := RenderAnnotated(n.nodelistLoop, c)
		if err != nil {
			return "", err
		}
		b.WriteString(bit)
	}
	return b.String(), nil
}

func (n *ForNode) ChildNodeLists() []*NodeList {
	lists := []*NodeList{n.nodelistLoop}
	if n.nodelistEmpty != nil {
		lists = append(lists, n.nodelistEmpty)
	}
	return lists
}

func forTag(p *Parser, token *lexer.Token) (Node, error) {
	bits := token.SplitContents()
	if len(bits) < 4 {
		return nil, NewError(ErrSyntax,
			"'for' statements should have at least four words: %s", token.Contents)
	}
	isReversed := bits[len(bits)-1] == "reversed"
	inIndex := len(bits) - 2
	if isReversed {
		inIndex = len(bits) - 3
	}
	if bits[inIndex] != "in" {
		return nil, NewError(ErrSyntax,
			"'for' statements should use the format 'for x in y': %s", token.Contents)
	}

	var loopvars []string
	for _, chunk := range strings.Split(strings.Join(bits[1:inIndex], " "), ",") {
		name := strings.TrimSpace(chunk)
		if name == "" || strings.ContainsAny(name, " \"'"+lexer.FilterSeparator) {
			return nil, NewError(ErrSyntax,
				"'for' tag received an invalid argument: %s", token.Contents)
		}
		loopvars = append(loopvars, name)
	}
	sequence, err := p.CompileFilter(bits[inIndex+1])
	if err != nil {
		return nil, err
	}

	nodelistLoop, err := p.Parse("empty", "endfor")
	if err != nil {
		return nil, err
	}
	var nodelistEmpty *NodeList
	if p.NextToken().Contents == "empty" {
		nodelistEmpty, err = p.Parse("endfor")
		if err != nil {
			return nil, err
		}
		p.DeleteFirstToken()
	}
	return &ForNode{
		loopvars:      loopvars,
		sequence:      sequence,
		reversed:      isReversed,
		nodelistLoop:  nodelistLoop,
		nodelistEmpty: nodelistEmpty,
	}, nil
}

// WithNode renders its body with extra variables pushed onto the scope.
type WithNode struct {
	NodeBase
	extraContext map[string]*FilterExpression
	nodelist     *NodeList
}

func (n *WithNode) Render(c *Context) (string, error) {
	values := make(map[string]any, len(n.extraContext))
	for key, expr := range n.extraContext {
		v, err := expr.Resolve(c, false)
		if err != nil {
			return "", err
		}
		values[key] = v
	}
	release := c.Push(values)
	defer release()
	return n.nodelist.Render(c)
}

func (n *WithNode) ChildNodeLists() []*NodeList {
	return []*NodeList{n.nodelist}
}

func withTag(p *Parser, token *lexer.Token) (Node, error) {
	bits := token.SplitContents()
	extraContext, remaining, err := TokenKwargs(bits[1:], p, true)
	if err != nil {
		return nil, err
	}
	if len(extraContext) == 0 {
		return nil, NewError(ErrSyntax,
			"'with' expected at least one variable assignment")
	}
	if len(remaining) > 0 {
		return nil, NewError(ErrSyntax,
			"'with' received an invalid token: '%s'", remaining[0])
	}
	nodelist, err := p.Parse("endwith")
	if err != nil {
		return nil, err
	}
	p.DeleteFirstToken()
	return &WithNode{extraContext: extraContext, nodelist: nodelist}, nil
}

// AutoescapeControlNode forces autoescaping on or off for its body.
type AutoescapeControlNode struct {
	NodeBase
	setting  bool
	nodelist *NodeList
}

func (n *AutoescapeControlNode) Render(c *Context) (string, error) {
	old := c.Autoescape
	c.Autoescape = n.setting
	defer func() { c.Autoescape = old }()
	return n.nodelist.Render(c)
}

func (n *AutoescapeControlNode) ChildNodeLists() []*NodeList {
	return []*NodeList{n.nodelist}
}

func autoescapeTag(p *Parser, token *lexer.Token) (Node, error) {
	args := token.SplitContents()
	if len(args) != 2 {
		return nil, NewError(ErrSyntax, "'autoescape' tag requires exactly one argument.")
	}
	if args[1] != "on" && args[1] != "off" {
		return nil, NewError(ErrSyntax, "'autoescape' argument should be 'on' or 'off'")
	}
	nodelist, err := p.Parse("endautoescape")
	if err != nil {
		return nil, err
	}
	p.DeleteFirstToken()
	return &AutoescapeControlNode{setting: args[1] == "on", nodelist: nodelist}, nil
}

// FilterNode renders its body, then pushes the output through a filter
// chain.
type FilterNode struct {
	NodeBase
	expr     *FilterExpression
	nodelist *NodeList
}

func (n *FilterNode) Render(c *Context) (string, error) {
	output, err := n.nodelist.Render(c)
	if err != nil {
		return "", err
	}
	release := c.Push(map[string]any{"var": output})
	defer release()
	filtered, err := n.expr.Resolve(c, false)
	if err != nil {
		return "", err
	}
	return Stringify(filtered), nil
}

func (n *FilterNode) ChildNodeLists() []*NodeList {
	return []*NodeList{n.nodelist}
}

func filterTag(p *Parser, token *lexer.Token) (Node, error) {
	_, rest, ok := strings.Cut(token.Contents, " ")
	if !ok {
		return nil, NewError(ErrSyntax, "'filter' tag requires at least one filter")
	}
	expr, err := p.CompileFilter("var|" + rest)
	if err != nil {
		return nil, err
	}
	for _, bf := range expr.filters {
		if bf.name == "escape" || bf.name == "safe" {
			return nil, NewError(ErrSyntax,
				"\"filter %s\" is not permitted.  Use the \"autoescape\" tag instead.", bf.name)
		}
	}
	nodelist, err := p.Parse("endfilter")
	if err != nil {
		return nil, err
	}
	p.DeleteFirstToken()
	return &FilterNode{expr: expr, nodelist: nodelist}, nil
}

// FirstOfNode renders the first of its expressions that resolves truthy,
// optionally storing it in a variable instead.
type FirstOfNode struct {
	NodeBase
	exprs []*FilterExpression
	asvar string
}

func (n *FirstOfNode) Render(c *Context) (string, error) {
	first := ""
	for _, expr := range n.exprs {
		v, err := expr.Resolve(c, true)
		if err != nil {
			return "", err
		}
		if IsTrue(v) {
			first = RenderValueInContext(v, c)
			break
		}
	}
	if n.asvar != "" {
		c.Set(n.asvar, MarkSafe(first))
		return "", nil
	}
	return first, nil
}

func firstofTag(p *Parser, token *lexer.Token) (Node, error) {
	bits := token.SplitContents()[1:]
	asvar := ""
	if len(bits) >= 2 && bits[len(bits)-2] == "as" {
		asvar = bits[len(bits)-1]
		bits = bits[:len(bits)-2]
	}
	if len(bits) == 0 {
		return nil, NewError(ErrSyntax, "'firstof' statement requires at least one argument")
	}
	exprs := make([]*FilterExpression, len(bits))
	for i, bit := range bits {
		expr, err := p.CompileFilter(bit)
		if err != nil {
			return nil, err
		}
		exprs[i] = expr
	}
	return &FirstOfNode{exprs: exprs, asvar: asvar}, nil
}

func upperFilter(value any) string {
	return strings.ToUpper(Stringify(value))
}

func lowerFilter(value any) string {
	return strings.ToLower(Stringify(value))
}

func defaultFilter(value, fallback any) any {
	if IsTrue(value) {
		return value
	}
	return fallback
}

func lengthFilter(value any) int {
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String, reflect.Chan:
		return rv.Len()
	}
	return 0
}

func joinFilter(value, sep any, autoescape bool) (any, error) {
	items, ok := iterItems(value)
	if !ok {
		return value, nil
	}
	strs := make([]string, len(items))
	for i, item := range items {
		if autoescape {
			strs[i] = string(ConditionalEscape(item))
		} else {
			strs[i] = Stringify(item)
		}
	}
	return MarkSafe(strings.Join(strs, string(ConditionalEscape(sep)))), nil
}

func safeFilter(value any) any {
	return MarkSafe(Stringify(value))
}

func escapeFilter(value any) any {
	return ConditionalEscape(value)
}

func dateFilter(value any, layout ...string) string {
	t, ok := value.(time.Time)
	if !ok {
		return ""
	}
	l := DefaultDateLayout
	if len(layout) > 0 && layout[0] != "" {
		l = layout[0]
	}
	return t.Format(l)
}

func truncatecharsFilter(value any, limit int) string {
	s := Stringify(value)
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	if limit < 1 {
		return "…"
	}
	return string(runes[:limit-1]) + "…"
}

func addFilter(value, arg any) any {
	if a, ok := toInt(value); ok {
		if b, ok := toInt(arg); ok {
			return a + b
		}
	}
	lhs := reflect.ValueOf(value)
	rhs := reflect.ValueOf(arg)
	if lhs.Kind() == reflect.String && rhs.Kind() == reflect.String {
		return Stringify(value) + Stringify(arg)
	}
	if lhs.Kind() == reflect.Slice && rhs.Kind() == reflect.Slice && lhs.Type() == rhs.Type() {
		return reflect.AppendSlice(lhs, rhs).Interface()
	}
	return ""
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case int32:
		return int(t), true
	case float64:
		return int(t), true
	case float32:
		return int(t), true
	case string:
		n, err := strconv.Atoi(t)
		return n, err == nil
	case SafeString:
		n, err := strconv.Atoi(string(t))
		return n, err == nil
	}
	return 0, false
}

// iterItems turns an iterable value into a flat item slice. Maps yield their
// keys in a stable sorted order; strings yield single-character strings.
func iterItems(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case string:
		out := make([]any, 0, len(s))
		for _, r := range s {
			out = append(out, string(r))
		}
		return out, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil, false
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, true
	case reflect.Map:
		out := make([]any, 0, rv.Len())
		for _, key := range rv.MapKeys() {
			out = append(out, key.Interface())
		}
		sort.Slice(out, func(i, j int) bool {
			return Stringify(out[i]) < Stringify(out[j])
		})
		return out, true
	}
	return nil, false
}
