// Copyright The Authly Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package lang

import "strings"

// parser is a hand-written recursive-descent parser over the grammar in
// spec.md §4.4:
//
//	policy     ← expr EOI
//	expr       ← unary (infix unary)*
//	unary      ← "not"? primary
//	primary    ← relation | "(" expr ")"
//	relation   ← term ("==" | "contains") term
//	term       ← global "." label | label ("/" label)?
//	global     ← "Subject" | "Resource"
//	label      ← ident (":" ident)*
//	infix      ← "and" | "or"
//
// Precedence, highest first: not > and > or. Each parse* method
// corresponds to one precedence level, implemented as precedence climbing
// rather than a table, since the grammar only has three levels.
type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token  { return p.toks[p.pos] }
func (p *parser) advance() token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	if p.peek().kind != kind {
		return token{}, &ParseError{Msg: "expected " + what, span: p.peek().span}
	}
	return p.advance(), nil
}

// parsePolicy parses a complete policy expression and requires it to
// consume the entire input (the grammar's trailing EOI).
func parsePolicy(src string) (rawExpr, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, &ParseError{Msg: "unexpected trailing input", span: p.peek().span}
	}
	return expr, nil
}

func (p *parser) parseOr() (rawExpr, error) {
	lhs, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		start := lhs.span().Start
		p.advance()
		rhs, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		lhs = &rawOr{lhs: lhs, rhs: rhs, sp: Span{start, rhs.span().End}}
	}
	return lhs, nil
}

func (p *parser) parseAnd() (rawExpr, error) {
	lhs, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		start := lhs.span().Start
		p.advance()
		rhs, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		lhs = &rawAnd{lhs: lhs, rhs: rhs, sp: Span{start, rhs.span().End}}
	}
	return lhs, nil
}

func (p *parser) parseUnary() (rawExpr, error) {
	if p.peek().kind == tokNot {
		start := p.peek().span.Start
		p.advance()
		inner, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return &rawNot{inner: inner, sp: Span{start, inner.span().End}}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (rawExpr, error) {
	if p.peek().kind == tokLParen {
		p.advance()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return inner, nil
	}
	return p.parseRelation()
}

func (p *parser) parseRelation() (rawExpr, error) {
	lhs, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	var op RelOp
	switch p.peek().kind {
	case tokEq:
		op = RelEquals
		p.advance()
	case tokContains:
		op = RelContains
		p.advance()
	default:
		return nil, &ParseError{Msg: "expected '==' or 'contains'", span: p.peek().span}
	}
	rhs, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	return &rawRelation{op: op, lhs: lhs, rhs: rhs, sp: Span{lhs.span.Start, rhs.span.End}}, nil
}

func (p *parser) parseTerm() (rawTerm, error) {
	if p.peek().kind == tokIdent && (p.peek().text == "Subject" || p.peek().text == "Resource") &&
		p.pos+1 < len(p.toks) && p.toks[p.pos+1].kind == tokDot {
		g := GlobalSubject
		if p.peek().text == "Resource" {
			g = GlobalResource
		}
		start := p.advance().span.Start // global ident
		p.advance()                     // "."
		label, labelSpan, err := p.parseLabel()
		if err != nil {
			return rawTerm{}, err
		}
		return rawTerm{kind: termField, global: g, label: label, span: Span{start, labelSpan.End}}, nil
	}

	label, labelSpan, err := p.parseLabel()
	if err != nil {
		return rawTerm{}, err
	}
	if p.peek().kind == tokSlash {
		p.advance()
		subLabel, subSpan, err := p.parseLabel()
		if err != nil {
			return rawTerm{}, err
		}
		return rawTerm{kind: termAttr, label: label, subLabel: subLabel, span: Span{labelSpan.Start, subSpan.End}}, nil
	}
	return rawTerm{kind: termEntity, label: label, span: labelSpan}, nil
}

func (p *parser) parseLabel() (string, Span, error) {
	first, err := p.expect(tokIdent, "a label")
	if err != nil {
		return "", Span{}, err
	}
	segs := []string{first.text}
	end := first.span.End
	for p.peek().kind == tokColon {
		p.advance()
		next, err := p.expect(tokIdent, "a label segment after ':'")
		if err != nil {
			return "", Span{}, err
		}
		segs = append(segs, next.text)
		end = next.span.End
	}
	return strings.Join(segs, ":"), Span{first.span.Start, end}, nil
}
