package asm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kmeister/go-mips/mips/isa"
)

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokNewline
	tokIdent     // bare symbol or mnemonic
	tokDirective // .name
	tokRegister  // $name or $number
	tokParam     // %name, macro parameter
	tokInt
	tokString
	tokComma
	tokColon
	tokLParen
	tokRParen
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of file"
	case tokNewline:
		return "end of line"
	case tokIdent:
		return "identifier"
	case tokDirective:
		return "directive"
	case tokRegister:
		return "register"
	case tokParam:
		return "macro parameter"
	case tokInt:
		return "integer"
	case tokString:
		return "string"
	case tokComma:
		return "comma"
	case tokColon:
		return "colon"
	case tokLParen:
		return "left parenthesis"
	default:
		return "right parenthesis"
	}
}

type token struct {
	kind tokenKind
	pos  Pos
	text string // identifier, directive or parameter name; string contents
	num  int64  // integer value; register number
}

// lexError aborts lexing. Unlike resolution errors these are not
// recoverable mid-file, so the whole unit fails with one diagnostic.
type lexError struct {
	diag Diagnostic
}

func (e *lexError) Error() string {
	return e.diag.Error()
}

type lexer struct {
	file string
	src  string
	off  int
	line int
	col  int
}

func newLexer(file string, src []byte) *lexer {
	return &lexer{file: file, src: string(src), line: 1, col: 1}
}

func (l *lexer) pos() Pos {
	return Pos{File: l.file, Line: l.line, Col: l.col}
}

func (l *lexer) peek() byte {
	if l.off >= len(l.src) {
		return 0
	}
	return l.src[l.off]
}

func (l *lexer) advance() byte {
	c := l.src[l.off]
	l.off++
	if c == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return c
}

func isIdentStart(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isIdent(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9' || c == '.'
}

// lex tokenizes the whole source. The token stream always ends with a
// newline token before EOF so statement scanning never special-cases the
// last line.
func (l *lexer) lex() ([]token, error) {
	var tokens []token

	for l.off < len(l.src) {
		pos := l.pos()
		c := l.peek()

		switch {
		case c == ' ' || c == '\t' || c == '\r':
			l.advance()
		case c == '#':
			for l.off < len(l.src) && l.peek() != '\n' {
				l.advance()
			}
		case c == '\n':
			l.advance()
			tokens = append(tokens, token{kind: tokNewline, pos: pos})
		case c == ',':
			l.advance()
			tokens = append(tokens, token{kind: tokComma, pos: pos})
		case c == ':':
			l.advance()
			tokens = append(tokens, token{kind: tokColon, pos: pos})
		case c == '(':
			l.advance()
			tokens = append(tokens, token{kind: tokLParen, pos: pos})
		case c == ')':
			l.advance()
			tokens = append(tokens, token{kind: tokRParen, pos: pos})
		case c == '$':
			l.advance()
			tok, err := l.lexRegister(pos)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
		case c == '%':
			l.advance()
			name := l.takeIdent()
			if name == "" {
				return nil, &lexError{errorf(pos, KindSyntax, "expected macro parameter name after %%")}
			}
			tokens = append(tokens, token{kind: tokParam, pos: pos, text: name})
		case c == '.':
			l.advance()
			name := l.takeIdent()
			if name == "" {
				return nil, &lexError{errorf(pos, KindSyntax, "expected directive name after '.'")}
			}
			tokens = append(tokens, token{kind: tokDirective, pos: pos, text: strings.ToLower(name)})
		case c == '"':
			tok, err := l.lexString(pos)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
		case c == '\'':
			tok, err := l.lexCharacter(pos)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
		case c == '-' || c == '+' || c >= '0' && c <= '9':
			tok, err := l.lexNumber(pos)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
		case isIdentStart(c):
			name := l.takeIdent()
			tokens = append(tokens, token{kind: tokIdent, pos: pos, text: name})
		default:
			return nil, &lexError{errorf(pos, KindSyntax, "unexpected character %q", c)}
		}
	}

	tokens = append(tokens, token{kind: tokNewline, pos: l.pos()})
	tokens = append(tokens, token{kind: tokEOF, pos: l.pos()})
	return tokens, nil
}

func (l *lexer) takeIdent() string {
	start := l.off
	for l.off < len(l.src) && isIdent(l.peek()) {
		l.advance()
	}
	return l.src[start:l.off]
}

func (l *lexer) lexRegister(pos Pos) (token, error) {
	name := l.takeIdent()
	if name == "" {
		return token{}, &lexError{errorf(pos, KindSyntax, "expected register name after $")}
	}

	if index, err := strconv.ParseUint(name, 10, 8); err == nil && index < 32 {
		return token{kind: tokRegister, pos: pos, num: int64(index)}, nil
	}
	if index, ok := isa.LookupRegister(strings.ToLower(name)); ok {
		return token{kind: tokRegister, pos: pos, num: int64(index)}, nil
	}
	return token{}, &lexError{errorf(pos, KindSyntax, "unknown register $%s", name)}
}

func (l *lexer) lexNumber(pos Pos) (token, error) {
	start := l.off
	if c := l.peek(); c == '-' || c == '+' {
		l.advance()
	}
	for l.off < len(l.src) {
		c := l.peek()
		if c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F' || c == 'x' || c == 'X' {
			l.advance()
			continue
		}
		break
	}

	text := l.src[start:l.off]
	value, err := parseInteger(text)
	if err != nil {
		return token{}, &lexError{errorf(pos, KindSyntax, "invalid integer literal %q", text)}
	}
	return token{kind: tokInt, pos: pos, num: value}, nil
}

// parseInteger accepts decimal, 0x hex and 0b binary forms with an
// optional sign, covering the full unsigned 32-bit range.
func parseInteger(text string) (int64, error) {
	negative := false
	switch {
	case strings.HasPrefix(text, "-"):
		negative = true
		text = text[1:]
	case strings.HasPrefix(text, "+"):
		text = text[1:]
	}

	value, err := strconv.ParseUint(strings.ToLower(text), 0, 64)
	if err != nil {
		return 0, err
	}
	if value > 0xFFFFFFFF {
		return 0, fmt.Errorf("literal %s does not fit in 32 bits", text)
	}

	result := int64(value)
	if negative {
		result = -result
	}
	return result, nil
}

func (l *lexer) lexString(pos Pos) (token, error) {
	l.advance() // opening quote
	var sb strings.Builder

	for {
		if l.off >= len(l.src) || l.peek() == '\n' {
			return token{}, &lexError{errorf(pos, KindSyntax, "unterminated string literal")}
		}
		c := l.advance()
		switch c {
		case '"':
			return token{kind: tokString, pos: pos, text: sb.String()}, nil
		case '\\':
			if l.off >= len(l.src) {
				return token{}, &lexError{errorf(pos, KindSyntax, "unterminated string literal")}
			}
			sb.WriteByte(unescape(l.advance()))
		default:
			sb.WriteByte(c)
		}
	}
}

func (l *lexer) lexCharacter(pos Pos) (token, error) {
	l.advance() // opening quote
	if l.off >= len(l.src) {
		return token{}, &lexError{errorf(pos, KindSyntax, "unterminated character literal")}
	}

	c := l.advance()
	if c == '\\' {
		if l.off >= len(l.src) {
			return token{}, &lexError{errorf(pos, KindSyntax, "unterminated character literal")}
		}
		c = unescape(l.advance())
	}

	if l.off >= len(l.src) || l.advance() != '\'' {
		return token{}, &lexError{errorf(pos, KindSyntax, "unterminated character literal")}
	}
	return token{kind: tokInt, pos: pos, num: int64(c)}, nil
}

func unescape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case '0':
		return 0
	default:
		return c
	}
}
