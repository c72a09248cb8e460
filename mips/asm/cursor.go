package asm

// cursor walks the preprocessed token stream during statement parsing.
type cursor struct {
	toks []token
	i    int
}

func (c *cursor) peek() token {
	return c.toks[c.i]
}

func (c *cursor) next() token {
	tok := c.toks[c.i]
	if tok.kind != tokEOF {
		c.i++
	}
	return tok
}

// expect consumes a token of the given kind or reports a syntax
// diagnostic at the offending token.
func (c *cursor) expect(kind tokenKind) (token, error) {
	tok := c.next()
	if tok.kind != kind {
		return token{}, &lexError{errorf(tok.pos, KindSyntax, "expected %s, found %s", kind, tok.kind)}
	}
	return tok, nil
}

// comma consumes an optional separating comma, matching the permissive
// operand syntax most MIPS assemblers accept.
func (c *cursor) comma() {
	if c.peek().kind == tokComma {
		c.next()
	}
}

// endOfStatement reports whether the current token terminates a
// statement.
func (c *cursor) endOfStatement() bool {
	kind := c.peek().kind
	return kind == tokNewline || kind == tokEOF
}

// finishStatement consumes the statement terminator, rejecting trailing
// operands.
func (c *cursor) finishStatement() error {
	tok := c.next()
	if tok.kind != tokNewline && tok.kind != tokEOF {
		return &lexError{errorf(tok.pos, KindSyntax, "unexpected %s after statement", tok.kind)}
	}
	return nil
}

// skipLine advances past the current statement after an error.
func (c *cursor) skipLine() {
	for !c.endOfStatement() {
		c.next()
	}
	if c.peek().kind == tokNewline {
		c.next()
	}
}
