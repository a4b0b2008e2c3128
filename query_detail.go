package sculpt

import (
	"fmt"
)

// SymbolDetail bundles a symbol with its structural metadata.
type SymbolDetail struct {
	Symbol     SymbolResult
	Location   Location
	Docstring  string
	ReturnType string       // functions only
	Type       string       // variables only
	Parameters []*Parameter // empty for non-functions
	Members    []*Symbol    // methods and nested declarations
	Attributes []*Node      // class attributes and fields
	// Target is the declaration an import or export binding resolves to,
	// or nil.
	Target *Symbol
}

// SymbolDetail returns sym with its parameters, members and attributes.
func (cb *Codebase) SymbolDetail(sym *Symbol) (*SymbolDetail, error) {
	if !sym.Alive() {
		return nil, fmt.Errorf("sculpt: symbol detail %s: %w", sym.node.QualifiedName, ErrStaleNode)
	}
	detail := &SymbolDetail{
		Symbol:     cb.refCounts(sym),
		Docstring:  sym.Docstring(),
		ReturnType: sym.ReturnType(),
		Type:       sym.Type(),
		Parameters: sym.Parameters(),
		Members:    sym.Children(),
		Attributes: sym.Attributes(),
	}
	if loc, ok := cb.symbolLocation(sym.node.ID); ok {
		detail.Location = loc
	}
	if d := sym.decl(); d != nil && d.Import != nil {
		if res, err := cb.resolver.Resolve(sym.node.File, sym.node.Decl); err == nil {
			detail.Target = cb.symbol(res.Root)
		}
	}
	if detail.Parameters == nil {
		detail.Parameters = []*Parameter{}
	}
	if detail.Members == nil {
		detail.Members = []*Symbol{}
	}
	if detail.Attributes == nil {
		detail.Attributes = []*Node{}
	}
	return detail, nil
}

// SymbolDetailAt is a position-based convenience that resolves the
// narrowest declaration at the 1-based (line, col) of p. Returns nil with
// no error if no declaration contains the position.
func (cb *Codebase) SymbolDetailAt(p string, line, col int) (*SymbolDetail, error) {
	p = cleanPath(p)
	off, ok := cb.offset(p, line, col)
	if !ok {
		return nil, nil
	}
	sym := cb.SymbolAt(p, off)
	if sym == nil {
		return nil, nil
	}
	return cb.SymbolDetail(sym)
}
