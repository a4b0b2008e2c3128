package sculpt

import (
	"fmt"

	"github.com/jward/sculpt/internal/graph"
	"github.com/jward/sculpt/internal/parse"
)

// SetReturnType replaces a function's return annotation. An empty t
// removes it.
func (s *Symbol) SetReturnType(t string) error {
	d, err := s.editable()
	if err != nil {
		return err
	}
	if d.Kind != graph.Function {
		return fmt.Errorf("sculpt: return type of %s %s: %w", d.Kind, d.Name, ErrUnsupported)
	}
	lang, err := s.annotated()
	if err != nil {
		return err
	}
	sep := ": "
	if lang == parse.Python {
		sep = " -> "
	}
	return s.annotate(d.ReturnType, d.ReturnInsert, sep, t)
}

// SetType replaces a variable's annotation. An empty t removes it.
func (s *Symbol) SetType(t string) error {
	d, err := s.editable()
	if err != nil {
		return err
	}
	if d.Kind != graph.Variable {
		return fmt.Errorf("sculpt: type of %s %s: %w", d.Kind, d.Name, ErrUnsupported)
	}
	if _, err := s.annotated(); err != nil {
		return err
	}
	return s.annotate(d.TypeSpan, d.TypeInsert, ": ", t)
}

// SetType replaces the parameter's annotation. An empty t removes it.
func (p *Parameter) SetType(t string) error {
	if _, err := p.check(); err != nil {
		return err
	}
	if _, lang, _ := p.cb.content(p.path); lang == parse.JavaScript {
		return fmt.Errorf("sculpt: %s: JavaScript has no annotations: %w", p.path, ErrUnsupported)
	}
	if p.param.Separator {
		return fmt.Errorf("sculpt: separator parameter cannot be annotated: %w", ErrUnsupported)
	}
	return p.anchor.annotate(p.param.TypeSpan, p.param.TypeInsert, ": ", t)
}

// annotated returns the language of s, failing for JavaScript.
func (s *Symbol) annotated() (parse.Language, error) {
	_, lang, _ := s.cb.content(s.path)
	if lang == parse.JavaScript {
		return lang, fmt.Errorf("sculpt: %s: JavaScript has no annotations: %w", s.path, ErrUnsupported)
	}
	return lang, nil
}

// annotate edits the annotation at typ, which starts after sep at insert.
// insert <= 0 means the declaration has no place for one.
func (a anchor) annotate(typ Span, insert int, sep, t string) error {
	present := typ != (Span{})
	switch {
	case present && t == "":
		return a.queue(insert, typ.End, "")
	case present:
		return a.queue(typ.Start, typ.End, t)
	case t == "":
		return nil
	case insert <= 0:
		return fmt.Errorf("sculpt: %s: no annotation slot: %w", a.path, ErrUnsupported)
	}
	return a.queue(insert, insert, sep+t)
}
