package asm

import "fmt"

// Preprocessing runs between lexing and parsing: .eqv names are replaced
// by their token sequences and .macro bodies are expanded at their
// invocation sites. Labels defined inside a macro body are given a
// per-expansion suffix so repeated expansion never collides.

const maxMacroDepth = 16

type macro struct {
	name   string
	params []string
	body   []token
	labels map[string]bool
}

type preprocessor struct {
	eqvs       map[string][]token
	macros     map[string]*macro
	expansions int
}

func preprocess(tokens []token) ([]token, error) {
	p := &preprocessor{
		eqvs:   make(map[string][]token),
		macros: make(map[string]*macro),
	}
	return p.run(tokens, 0)
}

func (p *preprocessor) run(tokens []token, depth int) ([]token, error) {
	if depth > maxMacroDepth {
		return nil, &lexError{errorf(tokens[0].pos, KindSyntax, "macro expansion exceeds depth %d", maxMacroDepth)}
	}

	var out []token
	atLineStart := true

	for i := 0; i < len(tokens); {
		tok := tokens[i]

		switch {
		case tok.kind == tokDirective && tok.text == "eqv" && depth == 0:
			var err error
			i, err = p.collectEqv(tokens, i)
			if err != nil {
				return nil, err
			}
			continue
		case tok.kind == tokDirective && tok.text == "macro" && depth == 0:
			var err error
			i, err = p.collectMacro(tokens, i)
			if err != nil {
				return nil, err
			}
			continue
		case tok.kind == tokDirective && tok.text == "end_macro":
			return nil, &lexError{errorf(tok.pos, KindSyntax, ".end_macro without matching .macro")}
		case tok.kind == tokIdent:
			if replacement, ok := p.eqvs[tok.text]; ok {
				for _, r := range replacement {
					r.pos = tok.pos
					out = append(out, r)
				}
				i++
				atLineStart = false
				continue
			}
			if m, ok := p.macros[tok.text]; ok && atLineStart {
				expanded, next, err := p.expand(m, tokens, i, depth)
				if err != nil {
					return nil, err
				}
				out = append(out, expanded...)
				i = next
				atLineStart = true
				continue
			}
		}

		out = append(out, tok)
		atLineStart = tok.kind == tokNewline || tok.kind == tokColon
		i++
	}

	return out, nil
}

// collectEqv records `.eqv NAME tokens...` and returns the index past its
// newline.
func (p *preprocessor) collectEqv(tokens []token, i int) (int, error) {
	pos := tokens[i].pos
	i++

	if tokens[i].kind != tokIdent {
		return 0, &lexError{errorf(pos, KindSyntax, ".eqv requires a name")}
	}
	name := tokens[i].text
	i++

	var value []token
	for tokens[i].kind != tokNewline && tokens[i].kind != tokEOF {
		value = append(value, tokens[i])
		i++
	}
	if len(value) == 0 {
		return 0, &lexError{errorf(pos, KindSyntax, ".eqv %s requires a value", name)}
	}

	p.eqvs[name] = value
	return i + 1, nil
}

// collectMacro records a `.macro name %params...` body up to .end_macro.
func (p *preprocessor) collectMacro(tokens []token, i int) (int, error) {
	pos := tokens[i].pos
	i++

	if tokens[i].kind != tokIdent {
		return 0, &lexError{errorf(pos, KindSyntax, ".macro requires a name")}
	}
	m := &macro{name: tokens[i].text, labels: make(map[string]bool)}
	i++

	for tokens[i].kind != tokNewline {
		switch tokens[i].kind {
		case tokParam:
			m.params = append(m.params, tokens[i].text)
		case tokComma, tokLParen, tokRParen:
			// separators between parameters are accepted and ignored
		default:
			return 0, &lexError{errorf(tokens[i].pos, KindSyntax, "unexpected %s in .macro parameter list", tokens[i].kind)}
		}
		i++
	}
	i++

	for {
		if tokens[i].kind == tokEOF {
			return 0, &lexError{errorf(pos, KindSyntax, ".macro %s has no matching .end_macro", m.name)}
		}
		if tokens[i].kind == tokDirective && tokens[i].text == "end_macro" {
			i++
			break
		}
		m.body = append(m.body, tokens[i])
		i++
	}

	// Labels defined inside the body are renamed per expansion.
	for j := 0; j+1 < len(m.body); j++ {
		if m.body[j].kind == tokIdent && m.body[j+1].kind == tokColon {
			m.labels[m.body[j].text] = true
		}
	}

	p.macros[m.name] = m
	if tokens[i].kind == tokNewline {
		i++
	}
	return i, nil
}

// expand substitutes one macro invocation. Arguments are comma-separated
// token groups running to the end of the line.
func (p *preprocessor) expand(m *macro, tokens []token, i int, depth int) ([]token, int, error) {
	pos := tokens[i].pos
	i++

	var args [][]token
	var current []token
	for tokens[i].kind != tokNewline && tokens[i].kind != tokEOF {
		if tokens[i].kind == tokComma {
			args = append(args, current)
			current = nil
		} else {
			current = append(current, tokens[i])
		}
		i++
	}
	if len(current) > 0 {
		args = append(args, current)
	}
	if tokens[i].kind == tokNewline {
		i++
	}

	if len(args) != len(m.params) {
		return nil, 0, &lexError{errorf(pos, KindSyntax,
			"macro %s expects %d arguments, got %d", m.name, len(m.params), len(args))}
	}

	byName := make(map[string][]token, len(args))
	for j, name := range m.params {
		byName[name] = args[j]
	}

	p.expansions++
	suffix := fmt.Sprintf("_m%d", p.expansions)

	var body []token
	for _, tok := range m.body {
		switch {
		case tok.kind == tokParam:
			arg, ok := byName[tok.text]
			if !ok {
				return nil, 0, &lexError{errorf(tok.pos, KindSyntax,
					"macro %s has no parameter %%%s", m.name, tok.text)}
			}
			for _, a := range arg {
				a.pos = pos
				body = append(body, a)
			}
		case tok.kind == tokIdent && m.labels[tok.text]:
			tok.text += suffix
			tok.pos = pos
			body = append(body, tok)
		default:
			tok.pos = pos
			body = append(body, tok)
		}
	}
	body = append(body, token{kind: tokNewline, pos: pos})

	expanded, err := p.run(body, depth+1)
	if err != nil {
		return nil, 0, err
	}
	return expanded, i, nil
}
