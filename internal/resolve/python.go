package resolve

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/sculpt/internal/graph"
)

type pyCtx struct {
	scope  int
	owner  int
	parent int
	cls    int
	qual   string
	inFunc bool
}

type pyExtractor struct {
	src    []byte
	fi     *FileIndex
	scopes scopes
}

func newPyExtractor(src []byte, fi *FileIndex) *pyExtractor {
	return &pyExtractor{src: src, fi: fi}
}

func (x *pyExtractor) text(n *sitter.Node) string {
	return n.Content(x.src)
}

func (x *pyExtractor) run(root *sitter.Node) {
	mod := x.scopes.push(-1, scopeModule, x.fi.Scope)
	c := pyCtx{scope: mod, owner: -1, parent: -1, cls: -1, qual: x.fi.Module + "."}
	for i, st := range namedChildren(root) {
		if st.Type() == "comment" {
			continue
		}
		x.fi.Statements = append(x.fi.Statements, Stmt{Span: spanOf(st), Type: st.Type()})
		if i == 0 && isDocString(st) {
			x.fi.DocSpan = spanOf(st)
			continue
		}
		x.statement(st, c)
	}
	for name, idx := range x.fi.Scope {
		if idx < 0 {
			delete(x.fi.Scope, name)
		}
	}
}

func (x *pyExtractor) add(d Decl) int {
	x.fi.Decls = append(x.fi.Decls, d)
	return len(x.fi.Decls) - 1
}

func (x *pyExtractor) bind(scope int, name string, idx int) {
	x.scopes[scope].names[name] = idx
}

func isDocString(n *sitter.Node) bool {
	return n.Type() == "expression_statement" && n.NamedChildCount() == 1 && n.NamedChild(0).Type() == "string"
}

func (x *pyExtractor) docString(body *sitter.Node) Span {
	if body == nil || body.NamedChildCount() == 0 {
		return Span{}
	}
	if first := body.NamedChild(0); isDocString(first) {
		return spanOf(first)
	}
	return Span{}
}

func (x *pyExtractor) extSpan(outer *sitter.Node) Span {
	start, _ := leadingComments(x.src, outer)
	return Span{Start: start, End: int(outer.EndByte())}
}

func (x *pyExtractor) statement(n *sitter.Node, c pyCtx) {
	switch n.Type() {
	case "function_definition":
		x.function(n, n, c)
	case "class_definition":
		x.classDef(n, n, c)
	case "decorated_definition":
		def := n.ChildByFieldName("definition")
		if def == nil {
			return
		}
		switch def.Type() {
		case "function_definition":
			x.function(def, n, c)
		case "class_definition":
			x.classDef(def, n, c)
		}
	case "import_statement", "import_from_statement", "future_import_statement":
		x.imports(n, c)
	case "expression_statement":
		x.expressionStatement(n, c)
	case "for_statement":
		for _, ch := range namedChildren(n) {
			if sameNode(ch, n.ChildByFieldName("left")) {
				continue
			}
			x.clause(ch, c)
		}
	case "comment", "pass_statement", "break_statement", "continue_statement",
		"global_statement", "nonlocal_statement", "ERROR":
	default:
		for _, ch := range namedChildren(n) {
			x.clause(ch, c)
		}
	}
}

// clause walks one child of a compound statement.
func (x *pyExtractor) clause(n *sitter.Node, c pyCtx) {
	switch n.Type() {
	case "block":
		for _, st := range namedChildren(n) {
			x.statement(st, c)
		}
	case "elif_clause", "else_clause", "finally_clause", "case_clause":
		for _, ch := range namedChildren(n) {
			x.clause(ch, c)
		}
	case "except_clause", "except_group_clause":
		first := true
		for _, ch := range namedChildren(n) {
			if ch.Type() == "block" {
				x.clause(ch, c)
				continue
			}
			if first {
				x.expr(ch, c)
			}
			first = false
		}
	case "case_pattern", "comment":
	default:
		x.expr(n, c)
	}
}

func (x *pyExtractor) decorators(outer *sitter.Node, c pyCtx) {
	if outer.Type() != "decorated_definition" {
		return
	}
	for _, ch := range namedChildren(outer) {
		if ch.Type() == "decorator" {
			x.expr(ch, c)
		}
	}
}

func (x *pyExtractor) function(def, outer *sitter.Node, c pyCtx) {
	nameNode := def.ChildByFieldName("name")
	params := def.ChildByFieldName("parameters")
	body := def.ChildByFieldName("body")
	if nameNode == nil || body == nil {
		return
	}
	name := x.text(nameNode)

	if c.inFunc {
		x.decorators(outer, c)
		x.paramRefs(params, c)
		x.expr(def.ChildByFieldName("return_type"), c)
		inner := c
		inner.scope = x.scopes.push(c.scope, scopeFunction, x.localNames(params, body))
		inner.cls = -1
		x.clause(body, inner)
		return
	}

	d := Decl{
		Kind:          graph.Function,
		Name:          name,
		QualifiedName: c.qual + name,
		Span:          spanOf(def),
		NameSpan:      spanOf(nameNode),
		ExtSpan:       x.extSpan(outer),
		Statement:     spanOf(outer),
		DocSpan:       x.docString(body),
		Parent:        c.parent,
		Params:        x.paramList(params),
	}
	if c.cls >= 0 {
		d.Variant = "method"
	}
	if params != nil {
		d.ReturnInsert = int(params.EndByte())
	}
	if rt := def.ChildByFieldName("return_type"); rt != nil {
		d.ReturnType = spanOf(rt)
	}
	idx := x.add(d)
	x.bind(c.scope, name, idx)

	head := c
	head.owner = idx
	x.decorators(outer, head)
	x.paramRefs(params, head)
	x.expr(def.ChildByFieldName("return_type"), head)

	inner := pyCtx{
		scope:  x.scopes.push(c.scope, scopeFunction, x.localNames(params, body)),
		owner:  idx,
		parent: idx,
		cls:    -1,
		qual:   c.qual + name + ".",
		inFunc: true,
	}
	x.clause(body, inner)
}

func (x *pyExtractor) classDef(def, outer *sitter.Node, c pyCtx) {
	nameNode := def.ChildByFieldName("name")
	body := def.ChildByFieldName("body")
	if nameNode == nil || body == nil {
		return
	}
	name := x.text(nameNode)

	if c.inFunc {
		x.decorators(outer, c)
		x.expr(def.ChildByFieldName("superclasses"), c)
		inner := c
		inner.scope = x.scopes.push(c.scope, scopeClass, nil)
		x.clause(body, inner)
		return
	}

	idx := x.add(Decl{
		Kind:          graph.Class,
		Name:          name,
		QualifiedName: c.qual + name,
		Span:          spanOf(def),
		NameSpan:      spanOf(nameNode),
		ExtSpan:       x.extSpan(outer),
		Statement:     spanOf(outer),
		DocSpan:       x.docString(body),
		Parent:        c.parent,
	})
	x.bind(c.scope, name, idx)

	head := c
	head.owner = idx
	x.decorators(outer, head)
	x.expr(def.ChildByFieldName("superclasses"), head)

	inner := pyCtx{
		scope:  x.scopes.push(c.scope, scopeClass, nil),
		owner:  idx,
		parent: idx,
		cls:    idx,
		qual:   c.qual + name + ".",
	}
	for _, st := range namedChildren(body) {
		if st.Type() == "expression_statement" && st.NamedChildCount() > 0 && st.NamedChild(0).Type() == "assignment" {
			x.classAttr(idx, st, st.NamedChild(0), inner)
			continue
		}
		x.statement(st, inner)
	}
}

func (x *pyExtractor) classAttr(cls int, stmt, assign *sitter.Node, c pyCtx) {
	left := assign.ChildByFieldName("left")
	typ := assign.ChildByFieldName("type")
	for _, id := range x.targets(left, nil) {
		a := Attr{Name: x.text(id), Span: spanOf(stmt), NameSpan: spanOf(id)}
		if typ != nil {
			a.TypeSpan = spanOf(typ)
		}
		x.fi.Decls[cls].Attrs = append(x.fi.Decls[cls].Attrs, a)
		x.bind(c.scope, a.Name, localName)
	}
	x.expr(typ, c)
	x.expr(assign.ChildByFieldName("right"), c)
}

func (x *pyExtractor) expressionStatement(n *sitter.Node, c pyCtx) {
	for _, ch := range namedChildren(n) {
		switch ch.Type() {
		case "assignment":
			if !c.inFunc && c.cls < 0 {
				x.moduleAssignment(ch, n, c, -1)
				continue
			}
			x.localAssignment(ch, c)
		case "augmented_assignment":
			x.expr(ch.ChildByFieldName("left"), c)
			x.expr(ch.ChildByFieldName("right"), c)
		default:
			x.expr(ch, c)
		}
	}
}

func (x *pyExtractor) localAssignment(n *sitter.Node, c pyCtx) {
	for _, t := range x.nonNameTargets(n.ChildByFieldName("left")) {
		x.expr(t, c)
	}
	x.expr(n.ChildByFieldName("type"), c)
	right := n.ChildByFieldName("right")
	if right != nil && right.Type() == "assignment" {
		x.localAssignment(right, c)
		return
	}
	x.expr(right, c)
}

// moduleAssignment declares one Variable per plain name target. Chained
// assignments share the enclosing statement.
func (x *pyExtractor) moduleAssignment(assign, stmt *sitter.Node, c pyCtx, owner int) {
	left := assign.ChildByFieldName("left")
	right := assign.ChildByFieldName("right")
	typ := assign.ChildByFieldName("type")

	ids := x.targets(left, nil)
	var declared []int
	for _, id := range ids {
		d := Decl{
			Kind:          graph.Variable,
			Name:          x.text(id),
			QualifiedName: c.qual + x.text(id),
			Span:          spanOf(stmt),
			NameSpan:      spanOf(id),
			ExtSpan:       x.extSpan(stmt),
			Statement:     spanOf(stmt),
			Parent:        c.parent,
		}
		if len(ids) == 1 && sameNode(id, left) {
			d.TypeInsert = int(id.EndByte())
			if typ != nil {
				d.TypeSpan = spanOf(typ)
			}
		}
		declared = append(declared, x.add(d))
	}
	if owner < 0 && len(declared) > 0 {
		owner = declared[0]
	}
	for _, idx := range declared {
		x.bind(c.scope, x.fi.Decls[idx].Name, idx)
	}

	valueCtx := c
	valueCtx.owner = owner
	for _, t := range x.nonNameTargets(left) {
		x.expr(t, valueCtx)
	}
	x.expr(typ, valueCtx)
	if right != nil && right.Type() == "assignment" {
		x.moduleAssignment(right, stmt, c, owner)
		return
	}
	x.expr(right, valueCtx)
}

// targets collects the identifiers bound by an assignment target.
func (x *pyExtractor) targets(n *sitter.Node, out []*sitter.Node) []*sitter.Node {
	if n == nil {
		return out
	}
	switch n.Type() {
	case "identifier":
		return append(out, n)
	case "pattern_list", "tuple_pattern", "list_pattern", "tuple", "list",
		"parenthesized_expression", "list_splat_pattern", "list_splat", "expression_list":
		for _, ch := range namedChildren(n) {
			out = x.targets(ch, out)
		}
	}
	return out
}

// nonNameTargets returns attribute and subscript targets, which read names.
func (x *pyExtractor) nonNameTargets(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "attribute", "subscript":
		return []*sitter.Node{n}
	case "pattern_list", "tuple_pattern", "list_pattern", "tuple", "list",
		"parenthesized_expression", "list_splat_pattern", "list_splat", "expression_list":
		var out []*sitter.Node
		for _, ch := range namedChildren(n) {
			out = append(out, x.nonNameTargets(ch)...)
		}
		return out
	}
	return nil
}

func (x *pyExtractor) paramList(params *sitter.Node) []Param {
	var out []Param
	for _, p := range namedChildren(params) {
		if p.Type() == "comment" {
			continue
		}
		param := Param{Span: spanOf(p), TypeInsert: -1}
		switch p.Type() {
		case "identifier":
			param.Name, param.NameSpan = x.text(p), spanOf(p)
		case "typed_parameter":
			if id := firstIdentifier(p); id != nil {
				param.Name, param.NameSpan = x.text(id), spanOf(id)
			}
			if t := p.ChildByFieldName("type"); t != nil {
				param.TypeSpan = spanOf(t)
			}
		case "default_parameter", "typed_default_parameter":
			if nm := p.ChildByFieldName("name"); nm != nil {
				param.Name, param.NameSpan = x.text(nm), spanOf(nm)
			}
			if t := p.ChildByFieldName("type"); t != nil {
				param.TypeSpan = spanOf(t)
			}
			if v := p.ChildByFieldName("value"); v != nil {
				param.Default = spanOf(v)
			}
		case "list_splat_pattern", "dictionary_splat_pattern":
			if id := firstIdentifier(p); id != nil {
				param.Name, param.NameSpan = x.text(id), spanOf(id)
			}
		default:
			param.Name = x.text(p)
			param.Separator = true
		}
		if !param.Separator && param.NameSpan != (Span{}) {
			param.TypeInsert = param.NameSpan.End
		}
		out = append(out, param)
	}
	return out
}

func firstIdentifier(n *sitter.Node) *sitter.Node {
	for _, ch := range namedChildren(n) {
		switch ch.Type() {
		case "identifier":
			return ch
		case "list_splat_pattern", "dictionary_splat_pattern":
			return firstIdentifier(ch)
		}
	}
	return nil
}

// paramRefs walks annotations and default values, which are evaluated in
// the enclosing scope.
func (x *pyExtractor) paramRefs(params *sitter.Node, c pyCtx) {
	for _, p := range namedChildren(params) {
		x.expr(p.ChildByFieldName("type"), c)
		x.expr(p.ChildByFieldName("value"), c)
	}
}

// localNames collects every name a function body binds locally.
func (x *pyExtractor) localNames(params, body *sitter.Node) map[string]int {
	names := make(map[string]int)
	for _, p := range namedChildren(params) {
		switch p.Type() {
		case "identifier":
			names[x.text(p)] = localName
		case "default_parameter", "typed_default_parameter":
			if nm := p.ChildByFieldName("name"); nm != nil {
				names[x.text(nm)] = localName
			}
		default:
			if id := firstIdentifier(p); id != nil {
				names[x.text(id)] = localName
			}
		}
	}
	x.prescan(body, names)
	return names
}

func (x *pyExtractor) prescan(n *sitter.Node, names map[string]int) {
	for _, ch := range namedChildren(n) {
		switch ch.Type() {
		case "function_definition", "class_definition":
			if nm := ch.ChildByFieldName("name"); nm != nil {
				names[x.text(nm)] = localName
			}
			continue
		case "decorated_definition":
			if def := ch.ChildByFieldName("definition"); def != nil {
				if nm := def.ChildByFieldName("name"); nm != nil {
					names[x.text(nm)] = localName
				}
			}
			continue
		case "lambda", "list_comprehension", "set_comprehension", "dictionary_comprehension", "generator_expression":
			continue
		case "global_statement", "nonlocal_statement":
			for _, id := range namedChildren(ch) {
				if id.Type() == "identifier" {
					if ch.Type() == "global_statement" {
						names[x.text(id)] = globalName
					} else {
						names[x.text(id)] = localName
					}
				}
			}
			continue
		case "assignment", "augmented_assignment", "for_statement", "for_in_clause":
			for _, id := range x.targets(ch.ChildByFieldName("left"), nil) {
				x.markLocal(names, x.text(id))
			}
		case "named_expression":
			if nm := ch.ChildByFieldName("name"); nm != nil {
				x.markLocal(names, x.text(nm))
			}
		case "as_pattern_target":
			for _, id := range x.targets(ch.NamedChild(0), nil) {
				x.markLocal(names, x.text(id))
			}
		case "except_clause":
			kids := namedChildren(ch)
			if len(kids) > 1 && kids[1].Type() == "identifier" {
				x.markLocal(names, x.text(kids[1]))
			}
		case "import_statement", "import_from_statement":
			for _, item := range namedChildren(ch) {
				if local := x.importLocal(item); local != "" && !sameNode(item, ch.ChildByFieldName("module_name")) {
					x.markLocal(names, local)
				}
			}
			continue
		}
		x.prescan(ch, names)
	}
}

func (x *pyExtractor) markLocal(names map[string]int, name string) {
	if names[name] != globalName {
		names[name] = localName
	}
}

func (x *pyExtractor) importLocal(item *sitter.Node) string {
	switch item.Type() {
	case "dotted_name":
		if item.NamedChildCount() > 0 {
			return x.text(item.NamedChild(0))
		}
	case "aliased_import":
		if a := item.ChildByFieldName("alias"); a != nil {
			return x.text(a)
		}
	}
	return ""
}

func (x *pyExtractor) imports(n *sitter.Node, c pyCtx) {
	stmt := spanOf(n)
	ext := x.extSpan(n)

	var module string
	var moduleSpan Span
	modNode := n.ChildByFieldName("module_name")
	switch {
	case modNode != nil:
		module, moduleSpan = x.text(modNode), spanOf(modNode)
	case n.Type() == "future_import_statement":
		module = "__future__"
	}

	var items []*sitter.Node
	for _, ch := range namedChildren(n) {
		if sameNode(ch, modNode) || ch.Type() == "comment" {
			continue
		}
		items = append(items, ch)
	}
	spans := make([]Span, len(items))
	for i, it := range items {
		spans[i] = spanOf(it)
	}

	for i, it := range items {
		spec := &ImportSpec{
			Module:     module,
			ModuleSpan: moduleSpan,
			Statement:  stmt,
			Items:      spans,
			Item:       i,
			GroupItem:  -1,
		}
		var local string
		var localSpan Span
		switch {
		case n.Type() == "import_statement" && it.Type() == "dotted_name":
			spec.Module, spec.ModuleSpan, spec.IsModule = x.text(it), spanOf(it), true
			first := it.NamedChild(0)
			if first == nil {
				continue
			}
			local, localSpan = x.text(first), spanOf(first)
		case n.Type() == "import_statement" && it.Type() == "aliased_import":
			name, alias := it.ChildByFieldName("name"), it.ChildByFieldName("alias")
			if name == nil || alias == nil {
				continue
			}
			spec.Module, spec.ModuleSpan, spec.IsModule = x.text(name), spanOf(name), true
			spec.Alias = x.text(alias)
			local, localSpan = spec.Alias, spanOf(alias)
		case it.Type() == "wildcard_import":
			spec.Name, spec.NameSpan = "*", spanOf(it)
			local, localSpan = "*", spanOf(it)
		case it.Type() == "dotted_name":
			spec.Name, spec.NameSpan = x.text(it), spanOf(it)
			local, localSpan = spec.Name, spec.NameSpan
		case it.Type() == "aliased_import":
			name, alias := it.ChildByFieldName("name"), it.ChildByFieldName("alias")
			if name == nil || alias == nil {
				continue
			}
			spec.Name, spec.NameSpan = x.text(name), spanOf(name)
			spec.Alias = x.text(alias)
			local, localSpan = spec.Alias, spanOf(alias)
		default:
			continue
		}

		idx := x.add(Decl{
			Kind:          graph.Import,
			Name:          local,
			QualifiedName: c.qual + local,
			Span:          stmt,
			NameSpan:      localSpan,
			ExtSpan:       ext,
			Statement:     stmt,
			Parent:        c.parent,
			Import:        spec,
		})
		if local == "*" {
			x.fi.Wildcards = append(x.fi.Wildcards, idx)
			continue
		}
		x.bind(c.scope, local, idx)
	}
}

func (x *pyExtractor) expr(n *sitter.Node, c pyCtx) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "identifier":
		x.ref(n, nil, c)
	case "attribute":
		if base, chain := attributeChain(n); base != nil {
			x.ref(base, chain, c)
			return
		}
		x.expr(n.ChildByFieldName("object"), c)
	case "call":
		fn := n.ChildByFieldName("function")
		x.expr(fn, c)
		x.markCall(fn, n)
		x.expr(n.ChildByFieldName("arguments"), c)
	case "keyword_argument":
		x.expr(n.ChildByFieldName("value"), c)
	case "named_expression":
		x.expr(n.ChildByFieldName("value"), c)
	case "as_pattern":
		if n.NamedChildCount() > 0 {
			x.expr(n.NamedChild(0), c)
		}
	case "lambda":
		x.lambda(n, c)
	case "list_comprehension", "set_comprehension", "dictionary_comprehension", "generator_expression":
		x.comprehension(n, c)
	case "string":
		for _, ch := range namedChildren(n) {
			if ch.Type() == "interpolation" && ch.NamedChildCount() > 0 {
				x.expr(ch.NamedChild(0), c)
			}
		}
	case "integer", "float", "true", "false", "none", "comment", "ellipsis", "ERROR":
	default:
		for _, ch := range namedChildren(n) {
			x.expr(ch, c)
		}
	}
}

// attributeChain splits a.b.c into its base identifier and the attribute
// tokens. base is nil when the chain does not start at a plain name.
func attributeChain(n *sitter.Node) (base *sitter.Node, chain []*sitter.Node) {
	cur := n
	for cur != nil && cur.Type() == "attribute" {
		attr := cur.ChildByFieldName("attribute")
		if attr == nil {
			return nil, nil
		}
		chain = append([]*sitter.Node{attr}, chain...)
		cur = cur.ChildByFieldName("object")
	}
	if cur == nil || cur.Type() != "identifier" {
		return nil, nil
	}
	return cur, chain
}

func (x *pyExtractor) markCall(fn, call *sitter.Node) {
	if fn == nil {
		return
	}
	switch fn.Type() {
	case "identifier":
		x.fi.Calls[int(fn.StartByte())] = spanOf(call)
	case "attribute":
		if attr := fn.ChildByFieldName("attribute"); attr != nil {
			x.fi.Calls[int(attr.StartByte())] = spanOf(call)
		}
	}
}

func (x *pyExtractor) ref(name *sitter.Node, chain []*sitter.Node, c pyCtx) {
	binding := x.scopes.lookup(c.scope, x.text(name))
	if binding == localName {
		return
	}
	r := Ref{Name: x.text(name), Span: spanOf(name), Owner: c.owner, Binding: binding}
	for _, ch := range chain {
		r.Chain = append(r.Chain, x.text(ch))
		r.ChainSpans = append(r.ChainSpans, spanOf(ch))
	}
	x.fi.Refs = append(x.fi.Refs, r)
}

func (x *pyExtractor) lambda(n *sitter.Node, c pyCtx) {
	names := make(map[string]int)
	params := n.ChildByFieldName("parameters")
	for _, p := range namedChildren(params) {
		switch p.Type() {
		case "identifier":
			names[x.text(p)] = localName
		case "default_parameter":
			if nm := p.ChildByFieldName("name"); nm != nil {
				names[x.text(nm)] = localName
			}
			x.expr(p.ChildByFieldName("value"), c)
		default:
			if id := firstIdentifier(p); id != nil {
				names[x.text(id)] = localName
			}
		}
	}
	inner := c
	inner.scope = x.scopes.push(c.scope, scopeFunction, names)
	x.expr(n.ChildByFieldName("body"), inner)
}

func (x *pyExtractor) comprehension(n *sitter.Node, c pyCtx) {
	names := make(map[string]int)
	for _, ch := range namedChildren(n) {
		if ch.Type() == "for_in_clause" {
			for _, id := range x.targets(ch.ChildByFieldName("left"), nil) {
				names[x.text(id)] = localName
			}
		}
	}
	inner := c
	inner.scope = x.scopes.push(c.scope, scopeFunction, names)
	for _, ch := range namedChildren(n) {
		if ch.Type() == "for_in_clause" {
			x.expr(ch.ChildByFieldName("right"), inner)
			continue
		}
		x.expr(ch, inner)
	}
}
