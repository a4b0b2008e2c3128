package resolve

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/sculpt/internal/graph"
)

type esCtx struct {
	scope  int
	owner  int
	parent int
	qual   string
	top    bool
	inFunc bool
}

func (c esCtx) nested() esCtx {
	c.top = false
	return c
}

// esExtractor handles TypeScript, TSX and JavaScript, which share their
// declaration and import vocabulary.
type esExtractor struct {
	src    []byte
	fi     *FileIndex
	scopes scopes
}

func newESExtractor(src []byte, fi *FileIndex) *esExtractor {
	return &esExtractor{src: src, fi: fi}
}

func (x *esExtractor) text(n *sitter.Node) string {
	return n.Content(x.src)
}

func (x *esExtractor) run(root *sitter.Node) {
	mod := x.scopes.push(-1, scopeModule, x.fi.Scope)
	c := esCtx{scope: mod, owner: -1, parent: -1, qual: x.fi.Module + ".", top: true}
	for _, st := range namedChildren(root) {
		switch st.Type() {
		case "comment", "hash_bang_line":
			continue
		}
		x.fi.Statements = append(x.fi.Statements, Stmt{Span: spanOf(st), Type: st.Type()})
		x.statement(st, c)
	}
}

func (x *esExtractor) add(d Decl) int {
	x.fi.Decls = append(x.fi.Decls, d)
	return len(x.fi.Decls) - 1
}

func (x *esExtractor) extSpan(outer *sitter.Node) Span {
	start, _ := leadingComments(x.src, outer)
	return Span{Start: start, End: int(outer.EndByte())}
}

func (x *esExtractor) jsDoc(outer *sitter.Node) Span {
	_, nearest := leadingComments(x.src, outer)
	if nearest != (Span{}) && strings.HasPrefix(string(x.src[nearest.Start:nearest.End]), "/**") {
		return nearest
	}
	return Span{}
}

func isESStatement(n *sitter.Node) bool {
	t := n.Type()
	if strings.HasSuffix(t, "_statement") || strings.HasSuffix(t, "_declaration") {
		return true
	}
	switch t {
	case "statement_block", "else_clause", "catch_clause", "finally_clause",
		"switch_body", "switch_case", "switch_default":
		return true
	}
	return false
}

func isFunctionValue(n *sitter.Node) bool {
	switch n.Type() {
	case "arrow_function", "function", "function_expression", "generator_function":
		return true
	}
	return false
}

// typeOf unwraps a type_annotation to the annotated type.
func typeOf(n *sitter.Node) Span {
	if n.Type() == "type_annotation" && n.NamedChildCount() > 0 {
		return spanOf(n.NamedChild(0))
	}
	return spanOf(n)
}

func stringContent(n *sitter.Node) Span {
	s := spanOf(n)
	if s.Len() >= 2 {
		return Span{Start: s.Start + 1, End: s.End - 1}
	}
	return s
}

func (x *esExtractor) statement(n *sitter.Node, c esCtx) {
	switch n.Type() {
	case "import_statement":
		if c.top {
			x.imports(n, c)
		}
	case "export_statement":
		if c.top {
			x.export(n, c)
			return
		}
		for _, ch := range namedChildren(n) {
			x.statement(ch, c)
		}
	case "function_declaration", "generator_function_declaration", "function_signature":
		x.function(n, n, c, false, false)
	case "class_declaration", "abstract_class_declaration":
		x.classDecl(n, n, c, false, false)
	case "interface_declaration", "type_alias_declaration", "enum_declaration":
		x.typeDecl(n, n, c, false)
	case "lexical_declaration", "variable_declaration":
		x.variables(n, n, c, false)
	case "comment", "empty_statement", "debugger_statement", "break_statement", "continue_statement", "ERROR":
	case "for_in_statement":
		left := n.ChildByFieldName("left")
		for _, ch := range namedChildren(n) {
			if sameNode(ch, left) {
				continue
			}
			x.child(ch, c.nested())
		}
	case "catch_clause":
		names := make(map[string]int)
		for _, id := range x.patternIdentifiers(n.ChildByFieldName("parameter"), nil) {
			names[x.text(id)] = localName
		}
		inner := c.nested()
		inner.scope = x.scopes.push(c.scope, scopeFunction, names)
		x.child(n.ChildByFieldName("body"), inner)
	default:
		for _, ch := range namedChildren(n) {
			x.child(ch, c.nested())
		}
	}
}

func (x *esExtractor) child(n *sitter.Node, c esCtx) {
	if n == nil {
		return
	}
	if isESStatement(n) {
		x.statement(n, c)
		return
	}
	x.expr(n, c)
}

func (x *esExtractor) function(n, outer *sitter.Node, c esCtx, exported, isDefault bool) {
	if !c.top {
		x.closure(n, c)
		return
	}
	nameNode := n.ChildByFieldName("name")
	params := n.ChildByFieldName("parameters")
	d := Decl{
		Kind:      graph.Function,
		Name:      "default",
		Span:      spanOf(n),
		ExtSpan:   x.extSpan(outer),
		Statement: spanOf(outer),
		DocSpan:   x.jsDoc(outer),
		Parent:    c.parent,
		Exported:  exported,
		Default:   isDefault,
		Params:    x.paramList(params),
	}
	if nameNode != nil {
		d.Name, d.NameSpan = x.text(nameNode), spanOf(nameNode)
	}
	d.QualifiedName = c.qual + d.Name
	if params != nil {
		d.ReturnInsert = int(params.EndByte())
	}
	if rt := n.ChildByFieldName("return_type"); rt != nil {
		d.ReturnType = typeOf(rt)
	}
	idx := x.add(d)
	if nameNode != nil {
		x.scopes[c.scope].names[d.Name] = idx
	}

	inner := c.nested()
	inner.owner, inner.parent = idx, idx
	inner.qual = c.qual + d.Name + "."
	x.closure(n, inner)
}

// closure walks a function-like node: parameter annotations and defaults
// in the enclosing scope, the body in a fresh one.
func (x *esExtractor) closure(n *sitter.Node, c esCtx) {
	names := make(map[string]int)
	if single := n.ChildByFieldName("parameter"); single != nil {
		names[x.text(single)] = localName
	}
	for _, p := range namedChildren(n.ChildByFieldName("parameters")) {
		for _, id := range x.patternIdentifiers(paramPattern(p), nil) {
			names[x.text(id)] = localName
		}
		x.expr(p.ChildByFieldName("type"), c)
		x.expr(paramValue(p), c)
		for _, dec := range namedChildren(p) {
			if dec.Type() == "decorator" {
				x.expr(dec, c)
			}
		}
	}
	x.expr(n.ChildByFieldName("return_type"), c)

	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	x.prescan(body, names)
	inner := c.nested()
	inner.inFunc = true
	inner.scope = x.scopes.push(c.scope, scopeFunction, names)
	if body.Type() == "statement_block" {
		for _, st := range namedChildren(body) {
			x.child(st, inner)
		}
		return
	}
	x.expr(body, inner)
}

func paramPattern(p *sitter.Node) *sitter.Node {
	switch p.Type() {
	case "required_parameter", "optional_parameter":
		return p.ChildByFieldName("pattern")
	case "assignment_pattern":
		return p.ChildByFieldName("left")
	}
	return p
}

func paramValue(p *sitter.Node) *sitter.Node {
	if v := p.ChildByFieldName("value"); v != nil {
		return v
	}
	if p.Type() == "assignment_pattern" {
		return p.ChildByFieldName("right")
	}
	return nil
}

func (x *esExtractor) paramList(params *sitter.Node) []Param {
	var out []Param
	for _, p := range namedChildren(params) {
		if p.Type() == "comment" {
			continue
		}
		param := Param{Span: spanOf(p), TypeInsert: -1}
		pat := paramPattern(p)
		if pat != nil && pat.Type() == "rest_pattern" && pat.NamedChildCount() > 0 {
			pat = pat.NamedChild(0)
		}
		if pat != nil {
			param.Name, param.NameSpan = x.text(pat), spanOf(pat)
			param.TypeInsert = int(pat.EndByte())
			if q := childOfType(p, "?"); q != nil {
				param.TypeInsert = int(q.EndByte())
			}
		}
		if t := p.ChildByFieldName("type"); t != nil {
			param.TypeSpan = typeOf(t)
		}
		if v := paramValue(p); v != nil {
			param.Default = spanOf(v)
		}
		out = append(out, param)
	}
	return out
}

// patternIdentifiers collects the names a binding pattern introduces.
func (x *esExtractor) patternIdentifiers(n *sitter.Node, out []*sitter.Node) []*sitter.Node {
	if n == nil {
		return out
	}
	switch n.Type() {
	case "identifier", "shorthand_property_identifier_pattern":
		return append(out, n)
	case "pair_pattern":
		return x.patternIdentifiers(n.ChildByFieldName("value"), out)
	case "assignment_pattern", "object_assignment_pattern":
		return x.patternIdentifiers(n.ChildByFieldName("left"), out)
	case "object_pattern", "array_pattern", "rest_pattern":
		for _, ch := range namedChildren(n) {
			out = x.patternIdentifiers(ch, out)
		}
	case "lexical_declaration", "variable_declaration":
		for _, vd := range namedChildren(n) {
			if vd.Type() == "variable_declarator" {
				out = x.patternIdentifiers(vd.ChildByFieldName("name"), out)
			}
		}
	}
	return out
}

func (x *esExtractor) prescan(n *sitter.Node, names map[string]int) {
	for _, ch := range namedChildren(n) {
		switch ch.Type() {
		case "variable_declarator":
			for _, id := range x.patternIdentifiers(ch.ChildByFieldName("name"), nil) {
				names[x.text(id)] = localName
			}
		case "function_declaration", "generator_function_declaration", "class_declaration", "abstract_class_declaration":
			if nm := ch.ChildByFieldName("name"); nm != nil {
				names[x.text(nm)] = localName
			}
			continue
		case "arrow_function", "function", "function_expression", "generator_function", "method_definition", "class":
			continue
		case "for_in_statement":
			for _, id := range x.patternIdentifiers(ch.ChildByFieldName("left"), nil) {
				names[x.text(id)] = localName
			}
		}
		x.prescan(ch, names)
	}
}

func (x *esExtractor) classDecl(n, outer *sitter.Node, c esCtx, exported, isDefault bool) {
	body := n.ChildByFieldName("body")
	if !c.top {
		for _, ch := range namedChildren(n) {
			if ch.Type() == "decorator" || ch.Type() == "class_heritage" {
				x.expr(ch, c)
			}
		}
		x.classBody(body, c, -1)
		return
	}
	nameNode := n.ChildByFieldName("name")
	d := Decl{
		Kind:      graph.Class,
		Name:      "default",
		Span:      spanOf(n),
		ExtSpan:   x.extSpan(outer),
		Statement: spanOf(outer),
		DocSpan:   x.jsDoc(outer),
		Parent:    c.parent,
		Exported:  exported,
		Default:   isDefault,
	}
	if nameNode != nil {
		d.Name, d.NameSpan = x.text(nameNode), spanOf(nameNode)
	}
	d.QualifiedName = c.qual + d.Name
	idx := x.add(d)
	if nameNode != nil {
		x.scopes[c.scope].names[d.Name] = idx
	}

	head := c.nested()
	head.owner, head.parent = idx, idx
	head.qual = c.qual + d.Name + "."
	for _, ch := range namedChildren(n) {
		if ch.Type() == "decorator" || ch.Type() == "class_heritage" {
			x.expr(ch, head)
		}
	}
	x.classBody(body, head, idx)
}

// classBody walks class members. Members become declarations only when
// cls names a declared class.
func (x *esExtractor) classBody(body *sitter.Node, c esCtx, cls int) {
	for _, m := range namedChildren(body) {
		switch m.Type() {
		case "method_definition", "method_signature", "abstract_method_signature":
			nm := m.ChildByFieldName("name")
			if nm != nil && nm.Type() == "computed_property_name" {
				x.expr(nm, c)
			}
			if cls < 0 || nm == nil {
				x.closure(m, c)
				continue
			}
			params := m.ChildByFieldName("parameters")
			d := Decl{
				Kind:          graph.Function,
				Variant:       "method",
				Name:          x.text(nm),
				QualifiedName: c.qual + x.text(nm),
				Span:          spanOf(m),
				NameSpan:      spanOf(nm),
				ExtSpan:       x.extSpan(m),
				Statement:     spanOf(m),
				DocSpan:       x.jsDoc(m),
				Parent:        cls,
				Params:        x.paramList(params),
			}
			if params != nil {
				d.ReturnInsert = int(params.EndByte())
			}
			if rt := m.ChildByFieldName("return_type"); rt != nil {
				d.ReturnType = typeOf(rt)
			}
			idx := x.add(d)
			mc := c
			mc.owner, mc.parent = idx, idx
			x.closure(m, mc)
		case "public_field_definition", "field_definition":
			nm := m.ChildByFieldName("name")
			if nm == nil {
				nm = m.ChildByFieldName("property")
			}
			typ := m.ChildByFieldName("type")
			if cls >= 0 && nm != nil {
				a := Attr{Name: x.text(nm), Span: spanOf(m), NameSpan: spanOf(nm)}
				if typ != nil {
					a.TypeSpan = typeOf(typ)
				}
				x.fi.Decls[cls].Attrs = append(x.fi.Decls[cls].Attrs, a)
			}
			for _, ch := range namedChildren(m) {
				if ch.Type() == "decorator" {
					x.expr(ch, c)
				}
			}
			x.expr(typ, c)
			x.expr(m.ChildByFieldName("value"), c)
		case "class_static_block":
			x.child(m.ChildByFieldName("body"), c)
		case "comment":
		default:
			x.expr(m, c)
		}
	}
}

var typeVariants = map[string]string{
	"interface_declaration":  "interface",
	"type_alias_declaration": "type",
	"enum_declaration":       "enum",
}

func (x *esExtractor) typeDecl(n, outer *sitter.Node, c esCtx, exported bool) {
	nameNode := n.ChildByFieldName("name")
	if !c.top || nameNode == nil {
		for _, ch := range namedChildren(n) {
			if !sameNode(ch, nameNode) {
				x.expr(ch, c)
			}
		}
		return
	}
	name := x.text(nameNode)
	idx := x.add(Decl{
		Kind:          graph.Class,
		Variant:       typeVariants[n.Type()],
		Name:          name,
		QualifiedName: c.qual + name,
		Span:          spanOf(n),
		NameSpan:      spanOf(nameNode),
		ExtSpan:       x.extSpan(outer),
		Statement:     spanOf(outer),
		DocSpan:       x.jsDoc(outer),
		Parent:        c.parent,
		Exported:      exported,
	})
	x.scopes[c.scope].names[name] = idx

	head := c.nested()
	head.owner = idx
	for _, ch := range namedChildren(n) {
		if !sameNode(ch, nameNode) {
			x.expr(ch, head)
		}
	}
}

func (x *esExtractor) variables(n, outer *sitter.Node, c esCtx, exported bool) {
	var declarators []*sitter.Node
	for _, ch := range namedChildren(n) {
		if ch.Type() == "variable_declarator" {
			declarators = append(declarators, ch)
		}
	}
	if !c.top {
		for _, vd := range declarators {
			x.expr(vd.ChildByFieldName("type"), c)
			x.expr(vd.ChildByFieldName("value"), c)
		}
		return
	}

	single := len(declarators) == 1
	items := make([]Span, len(declarators))
	for i, vd := range declarators {
		items[i] = spanOf(vd)
	}
	for i, vd := range declarators {
		nameNode := vd.ChildByFieldName("name")
		value := vd.ChildByFieldName("value")
		typ := vd.ChildByFieldName("type")
		ids := x.patternIdentifiers(nameNode, nil)

		first := -1
		for _, id := range ids {
			d := Decl{
				Kind:          graph.Variable,
				Name:          x.text(id),
				QualifiedName: c.qual + x.text(id),
				NameSpan:      spanOf(id),
				Statement:     spanOf(outer),
				Parent:        c.parent,
				Exported:      exported,
			}
			if single {
				d.Span, d.ExtSpan, d.DocSpan = spanOf(n), x.extSpan(outer), x.jsDoc(outer)
			} else {
				d.Span, d.ExtSpan = spanOf(vd), spanOf(vd)
				d.Items, d.Item = items, i
			}
			if sameNode(id, nameNode) {
				d.TypeInsert = int(nameNode.EndByte())
				if typ != nil {
					d.TypeSpan = typeOf(typ)
				}
				if value != nil && isFunctionValue(value) {
					d.Kind, d.Variant = graph.Function, "arrow"
					params := value.ChildByFieldName("parameters")
					d.Params = x.paramList(params)
					if params != nil {
						d.ReturnInsert = int(params.EndByte())
					}
					if rt := value.ChildByFieldName("return_type"); rt != nil {
						d.ReturnType = typeOf(rt)
					}
				}
			}
			idx := x.add(d)
			x.scopes[c.scope].names[d.Name] = idx
			if first < 0 {
				first = idx
			}
		}

		vc := c.nested()
		if first >= 0 {
			vc.owner = first
		}
		x.expr(typ, vc)
		x.expr(value, vc)
	}
}

func (x *esExtractor) imports(n *sitter.Node, c esCtx) {
	stmt := spanOf(n)
	ext := x.extSpan(n)
	typeOnly := childOfType(n, "type") != nil

	if req := childOfType(n, "import_require_clause"); req != nil {
		id := childOfType(req, "identifier")
		src := req.ChildByFieldName("source")
		if id == nil || src == nil {
			return
		}
		spec := &ImportSpec{
			Module:     unquote(x.text(src)),
			ModuleSpan: stringContent(src),
			IsModule:   true,
			Statement:  stmt,
			Items:      []Span{spanOf(id)},
			GroupItem:  -1,
		}
		x.addImport(x.text(id), spanOf(id), spec, ext, c)
		return
	}

	src := n.ChildByFieldName("source")
	clause := childOfType(n, "import_clause")
	if src == nil || clause == nil {
		return
	}
	var units []*sitter.Node
	for _, u := range namedChildren(clause) {
		if u.Type() != "comment" {
			units = append(units, u)
		}
	}
	items := make([]Span, len(units))
	for i, u := range units {
		items[i] = spanOf(u)
	}

	for ui, u := range units {
		base := ImportSpec{
			Module:     unquote(x.text(src)),
			ModuleSpan: stringContent(src),
			Statement:  stmt,
			Items:      items,
			Item:       ui,
			GroupItem:  -1,
			TypeOnly:   typeOnly,
		}
		switch u.Type() {
		case "identifier":
			spec := base
			spec.Name, spec.NameSpan = "default", spanOf(u)
			x.addImport(x.text(u), spanOf(u), &spec, ext, c)
		case "namespace_import":
			id := childOfType(u, "identifier")
			if id == nil {
				continue
			}
			spec := base
			spec.IsModule = true
			x.addImport(x.text(id), spanOf(id), &spec, ext, c)
		case "named_imports":
			var specs []*sitter.Node
			for _, s := range namedChildren(u) {
				if s.Type() == "import_specifier" {
					specs = append(specs, s)
				}
			}
			group := make([]Span, len(specs))
			for i, s := range specs {
				group[i] = spanOf(s)
			}
			for gi, s := range specs {
				name := s.ChildByFieldName("name")
				if name == nil {
					continue
				}
				spec := base
				spec.Name, spec.NameSpan = unquote(x.text(name)), spanOf(name)
				spec.Group, spec.GroupItem = group, gi
				if childOfType(s, "type") != nil {
					spec.TypeOnly = true
				}
				local, localSpan := spec.Name, spec.NameSpan
				if alias := s.ChildByFieldName("alias"); alias != nil {
					spec.Alias = x.text(alias)
					local, localSpan = spec.Alias, spanOf(alias)
				}
				x.addImport(local, localSpan, &spec, ext, c)
			}
		}
	}
}

func (x *esExtractor) addImport(local string, localSpan Span, spec *ImportSpec, ext Span, c esCtx) {
	idx := x.add(Decl{
		Kind:          graph.Import,
		Name:          local,
		QualifiedName: c.qual + local,
		Span:          spec.Statement,
		NameSpan:      localSpan,
		ExtSpan:       ext,
		Statement:     spec.Statement,
		Parent:        -1,
		Import:        spec,
	})
	x.scopes[c.scope].names[local] = idx
}

func (x *esExtractor) export(n *sitter.Node, c esCtx) {
	stmt := spanOf(n)
	ext := x.extSpan(n)
	isDefault := childOfType(n, "default") != nil

	if decl := n.ChildByFieldName("declaration"); decl != nil {
		switch decl.Type() {
		case "function_declaration", "generator_function_declaration", "function_signature":
			x.function(decl, n, c, true, isDefault)
		case "class_declaration", "abstract_class_declaration":
			x.classDecl(decl, n, c, true, isDefault)
		case "interface_declaration", "type_alias_declaration", "enum_declaration":
			x.typeDecl(decl, n, c, true)
		case "lexical_declaration", "variable_declaration":
			x.variables(decl, n, c, true)
		default:
			x.statement(decl, c.nested())
		}
		return
	}

	if value := n.ChildByFieldName("value"); value != nil {
		if value.Type() == "identifier" {
			x.add(Decl{
				Kind:          graph.Export,
				Name:          "default",
				QualifiedName: c.qual + "default",
				Span:          stmt,
				NameSpan:      spanOf(value),
				ExtSpan:       ext,
				Statement:     stmt,
				Parent:        -1,
				Exported:      true,
				Default:       true,
				Import: &ImportSpec{
					Name:      x.text(value),
					NameSpan:  spanOf(value),
					Statement: stmt,
					Items:     []Span{spanOf(value)},
					GroupItem: -1,
				},
			})
			return
		}
		switch value.Type() {
		case "class":
			x.classDecl(value, n, c, true, true)
			return
		case "function", "function_expression", "generator_function":
			x.function(value, n, c, true, true)
			return
		}
		kind := graph.Variable
		if isFunctionValue(value) {
			kind = graph.Function
		}
		idx := x.add(Decl{
			Kind:          kind,
			Name:          "default",
			QualifiedName: c.qual + "default",
			Span:          spanOf(value),
			ExtSpan:       ext,
			Statement:     stmt,
			DocSpan:       x.jsDoc(n),
			Parent:        -1,
			Exported:      true,
			Default:       true,
		})
		vc := c.nested()
		vc.owner = idx
		x.expr(value, vc)
		return
	}

	var module string
	var moduleSpan Span
	if src := n.ChildByFieldName("source"); src != nil {
		module, moduleSpan = unquote(x.text(src)), stringContent(src)
	}
	reExport := module != ""

	if clause := childOfType(n, "export_clause"); clause != nil {
		var specs []*sitter.Node
		for _, s := range namedChildren(clause) {
			if s.Type() == "export_specifier" {
				specs = append(specs, s)
			}
		}
		items := make([]Span, len(specs))
		for i, s := range specs {
			items[i] = spanOf(s)
		}
		for i, s := range specs {
			name := s.ChildByFieldName("name")
			if name == nil {
				continue
			}
			spec := &ImportSpec{
				Module:     module,
				ModuleSpan: moduleSpan,
				Name:       unquote(x.text(name)),
				NameSpan:   spanOf(name),
				ReExport:   reExport,
				Statement:  stmt,
				Items:      items,
				Item:       i,
				GroupItem:  -1,
			}
			exported, exportedSpan := spec.Name, spanOf(name)
			if alias := s.ChildByFieldName("alias"); alias != nil {
				spec.Alias = unquote(x.text(alias))
				exported, exportedSpan = spec.Alias, spanOf(alias)
			}
			x.add(Decl{
				Kind:          graph.Export,
				Name:          exported,
				QualifiedName: c.qual + exported,
				Span:          stmt,
				NameSpan:      exportedSpan,
				ExtSpan:       ext,
				Statement:     stmt,
				Parent:        -1,
				Exported:      true,
				Default:       exported == "default",
				Import:        spec,
			})
		}
		return
	}

	if !reExport {
		return
	}
	if ns := childOfType(n, "namespace_export"); ns != nil {
		id := childOfType(ns, "identifier")
		if id == nil {
			return
		}
		x.add(Decl{
			Kind:          graph.Export,
			Name:          x.text(id),
			QualifiedName: c.qual + x.text(id),
			Span:          stmt,
			NameSpan:      spanOf(id),
			ExtSpan:       ext,
			Statement:     stmt,
			Parent:        -1,
			Exported:      true,
			Import: &ImportSpec{
				Module:     module,
				ModuleSpan: moduleSpan,
				IsModule:   true,
				ReExport:   true,
				Statement:  stmt,
				Items:      []Span{spanOf(ns)},
				GroupItem:  -1,
			},
		})
		return
	}
	idx := x.add(Decl{
		Kind:          graph.Export,
		Name:          "*",
		QualifiedName: c.qual + "*",
		Span:          stmt,
		ExtSpan:       ext,
		Statement:     stmt,
		Parent:        -1,
		Exported:      true,
		Import: &ImportSpec{
			Module:     module,
			ModuleSpan: moduleSpan,
			Name:       "*",
			ReExport:   true,
			Statement:  stmt,
			GroupItem:  -1,
		},
	})
	x.fi.Wildcards = append(x.fi.Wildcards, idx)
}

func (x *esExtractor) expr(n *sitter.Node, c esCtx) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "identifier", "type_identifier", "shorthand_property_identifier":
		x.ref(n, nil, c)
	case "member_expression":
		if base, chain := memberChain(n); base != nil {
			x.ref(base, chain, c)
			return
		}
		x.expr(n.ChildByFieldName("object"), c)
	case "nested_type_identifier":
		mod := n.ChildByFieldName("module")
		name := n.ChildByFieldName("name")
		if mod != nil && name != nil && mod.Type() == "identifier" {
			x.ref(mod, []*sitter.Node{name}, c)
			return
		}
		x.expr(mod, c)
	case "call_expression":
		fn := n.ChildByFieldName("function")
		x.expr(fn, c)
		x.markCall(fn, n)
		x.expr(n.ChildByFieldName("type_arguments"), c)
		x.expr(n.ChildByFieldName("arguments"), c)
	case "new_expression":
		ctor := n.ChildByFieldName("constructor")
		x.expr(ctor, c)
		x.markCall(ctor, n)
		x.expr(n.ChildByFieldName("arguments"), c)
	case "arrow_function", "function", "function_expression", "generator_function", "method_definition",
		"method_signature", "abstract_method_signature", "call_signature", "construct_signature",
		"function_type", "constructor_type":
		x.closure(n, c)
	case "class":
		for _, ch := range namedChildren(n) {
			if ch.Type() == "decorator" || ch.Type() == "class_heritage" {
				x.expr(ch, c)
			}
		}
		x.classBody(n.ChildByFieldName("body"), c, -1)
	case "pair":
		if key := n.ChildByFieldName("key"); key != nil && key.Type() == "computed_property_name" {
			x.expr(key, c)
		}
		x.expr(n.ChildByFieldName("value"), c)
	case "property_signature", "public_field_definition", "field_definition", "enum_assignment":
		x.expr(n.ChildByFieldName("type"), c)
		x.expr(n.ChildByFieldName("value"), c)
	case "statement_block":
		for _, st := range namedChildren(n) {
			x.child(st, c.nested())
		}
	case "string", "number", "regex", "comment", "true", "false", "null", "undefined", "this", "super",
		"property_identifier", "private_property_identifier", "predefined_type", "literal_type",
		"string_fragment", "escape_sequence", "import", "jsx_text", "jsx_closing_element", "ERROR":
	default:
		for _, ch := range namedChildren(n) {
			x.child(ch, c)
		}
	}
}

// memberChain splits a.b.c into its base identifier and property tokens.
func memberChain(n *sitter.Node) (base *sitter.Node, chain []*sitter.Node) {
	cur := n
	for cur != nil && cur.Type() == "member_expression" {
		prop := cur.ChildByFieldName("property")
		if prop == nil {
			return nil, nil
		}
		chain = append([]*sitter.Node{prop}, chain...)
		cur = cur.ChildByFieldName("object")
	}
	if cur == nil || cur.Type() != "identifier" {
		return nil, nil
	}
	return cur, chain
}

func (x *esExtractor) markCall(fn, call *sitter.Node) {
	if fn == nil {
		return
	}
	switch fn.Type() {
	case "identifier":
		x.fi.Calls[int(fn.StartByte())] = spanOf(call)
	case "member_expression":
		if prop := fn.ChildByFieldName("property"); prop != nil {
			x.fi.Calls[int(prop.StartByte())] = spanOf(call)
		}
	}
}

func (x *esExtractor) ref(name *sitter.Node, chain []*sitter.Node, c esCtx) {
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
