package asm

import "fmt"

// Pos locates a diagnostic in the original source text.
type Pos struct {
	File string
	Line int
	Col  int
}

func (p Pos) String() string {
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Col)
}

// Severity ranks a diagnostic.
type Severity uint8

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// Kind classifies a diagnostic so callers can react to specific failure
// classes without parsing messages.
type Kind uint8

const (
	KindSyntax Kind = iota
	KindUnknownInstruction
	KindUnknownDirective
	KindUnresolvedSymbol
	KindDuplicateSymbol
	KindRange
	KindBadOperand
)

func (k Kind) String() string {
	switch k {
	case KindSyntax:
		return "syntax"
	case KindUnknownInstruction:
		return "unknown instruction"
	case KindUnknownDirective:
		return "unknown directive"
	case KindUnresolvedSymbol:
		return "unresolved symbol"
	case KindDuplicateSymbol:
		return "duplicate symbol"
	case KindRange:
		return "value out of range"
	default:
		return "bad operand"
	}
}

// Diagnostic is one positioned assembly finding. Assembly never stops at
// the first error; resolution and range problems are collected so a
// caller sees every failure in one pass.
type Diagnostic struct {
	Severity Severity
	Pos      Pos
	Kind     Kind
	Message  string
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s: %s: %s", d.Pos, d.Severity, d.Message)
}

func errorf(pos Pos, kind Kind, format string, args ...any) Diagnostic {
	return Diagnostic{
		Severity: SeverityError,
		Pos:      pos,
		Kind:     kind,
		Message:  fmt.Sprintf(format, args...),
	}
}

// HasErrors reports whether any diagnostic in the list is error severity.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}
