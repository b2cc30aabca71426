package opcache

import (
	"fmt"
	"strings"
)

// MainFunction is the name opcache gives to file-scope code.
const MainFunction = "$_main"

// Range is an inclusive span of source lines.
type Range struct {
	Start int
	End   int
}

func (r Range) String() string {
	return fmt.Sprintf("%d:%d", r.Start, r.End)
}

// Function is the listing of one compiled function or method.
type Function struct {
	Name         string
	Range        Range
	Instructions []Instruction

	// Valid is true only if the name, the line range and at least one
	// instruction were found.
	Valid bool
}

// HasDynamic reports whether any instruction is dynamic.
// It panics if f is not valid.
func (f *Function) HasDynamic() bool {
	f.mustBeValid("HasDynamic")
	for _, ins := range f.Instructions {
		if ins.IsDynamic() {
			return true
		}
	}
	return false
}

// IsSimpleReturn reports whether every instruction is a simple-return
// shape. It panics if f is not valid.
func (f *Function) IsSimpleReturn() bool {
	f.mustBeValid("IsSimpleReturn")
	for _, ins := range f.Instructions {
		if !ins.IsSimpleReturn() {
			return false
		}
	}
	return true
}

// Lines returns the normalized text of each instruction in order.
func (f *Function) Lines() []string {
	out := make([]string, len(f.Instructions))
	for i, ins := range f.Instructions {
		out[i] = ins.Line
	}
	return out
}

// Dump renders the instructions one per line, newline terminated.
func (f *Function) Dump() string {
	var b strings.Builder
	for _, ins := range f.Instructions {
		b.WriteString(ins.Line)
		b.WriteByte('\n')
	}
	return b.String()
}

func (f *Function) mustBeValid(method string) {
	if !f.Valid {
		panic(fmt.Sprintf("opcache: %s called on invalid function %q", method, f.Name))
	}
}
