// Package opcache parses the opcode listings that PHP's opcache writes when
// opcache.opt_debug_level is set, and classifies the instructions it finds.
//
// The listing has no grammar and changes between PHP releases, so every
// rule here is a heuristic over the text. Unrecognized lines are skipped
// rather than reported: a missed function is a false negative, never an
// error. All pattern matching for the tool lives in this package.
package opcache

import (
	"regexp"
	"strings"
)

var (
	fieldSep = regexp.MustCompile(`\s+`)

	// DO_FCALL, JMPZ, INIT_FCALL and friends fall outside this set.
	trivialRe = regexp.MustCompile(`^(RETURN\b|CV[0-9]+\(|[TV][0-9]+\s+=|VERIFY_RETURN_TYPE\b)`)

	// Same as trivialRe except that T<N> temporaries do not qualify.
	simpleReturnRe = regexp.MustCompile(`^(RETURN\b|CV[0-9]+\(|V[0-9]+\s+=|VERIFY_RETURN_TYPE\b)`)
)

// Instruction is one opline of a listing, e.g.
//
//	L1 (4):     V1 = DO_ICALL
//
// where "L1" is the opline index and "(4)" the source line.
type Instruction struct {
	Opcode   string // third field; for assignments this is the result operand
	Operands string // everything after the opcode, trimmed
	Line     string // Opcode + " " + Operands, trimmed
}

// Classify splits a raw opline into its opcode and operands. ok is false
// when the line has no third field.
func Classify(raw string) (ins Instruction, ok bool) {
	parts := fieldSep.Split(raw, 4)
	if len(parts) < 3 || parts[2] == "" {
		return Instruction{}, false
	}
	ins.Opcode = parts[2]
	if len(parts) == 4 {
		ins.Operands = strings.TrimSpace(parts[3])
	}
	ins.Line = strings.TrimSpace(ins.Opcode + " " + ins.Operands)
	return ins, true
}

// IsDynamic reports whether the instruction does more than return, load a
// compiled variable, assign a temporary or verify the return type.
func (i Instruction) IsDynamic() bool {
	return !trivialRe.MatchString(i.Line)
}

// IsSimpleReturn reports whether the instruction is one of the shapes a
// constant-returning function reduces to. It is not the negation of
// IsDynamic: "T1 = ADD ..." is neither dynamic nor a simple return.
func (i Instruction) IsSimpleReturn() bool {
	return simpleReturnRe.MatchString(i.Line)
}
