package workflow

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/deixis/noopcheck/internal/opcache"
)

// fn builds a valid function from instruction text such as "RETURN int(1)".
func fn(t *testing.T, name string, start, end int, instrs ...string) *opcache.Function {
	t.Helper()
	f := &opcache.Function{Name: name, Range: opcache.Range{Start: start, End: end}, Valid: true}
	for i, text := range instrs {
		ins, ok := opcache.Classify(fmt.Sprintf("L%d (%d):    %s", i, start, text))
		if !ok {
			t.Fatalf("Classify(%q) failed", text)
		}
		f.Instructions = append(f.Instructions, ins)
	}
	return f
}

func dump(fs ...*opcache.Function) *opcache.Dump {
	d := opcache.NewDump()
	for _, f := range fs {
		d.Put(f)
	}
	return d
}

func TestCompare_CallFoldedToConstant(t *testing.T) {
	unopt := dump(fn(t, "answer", 3, 6, `INIT_FCALL 0 96 string("helper")`, "DO_UCALL", "RETURN int(42)"))
	opt := dump(fn(t, "answer", 3, 6, "RETURN int(42)"))

	got := Compare(unopt, opt)
	if len(got) != 1 {
		t.Fatalf("findings = %d, want 1", len(got))
	}
	f := got[0]
	if f.Function != "answer" || f.StartLine != 3 || f.EndLine != 6 {
		t.Errorf("finding = %+v, want answer at 3:6", f)
	}
	if want := []string{`INIT_FCALL 0 96 string("helper")`, "DO_UCALL", "RETURN int(42)"}; !reflect.DeepEqual(f.Unoptimized, want) {
		t.Errorf("Unoptimized = %q, want %q", f.Unoptimized, want)
	}
	if want := []string{"RETURN int(42)"}; !reflect.DeepEqual(f.Optimized, want) {
		t.Errorf("Optimized = %q, want %q", f.Optimized, want)
	}
}

func TestCompare_NoFinding(t *testing.T) {
	tests := []struct {
		name  string
		unopt *opcache.Function
		opt   *opcache.Function
	}{
		{
			"identical single return",
			fn(t, "f", 1, 3, "RETURN int(1)"),
			fn(t, "f", 1, 3, "RETURN int(1)"),
		},
		{
			"optimized still dynamic",
			fn(t, "f", 1, 3, `INIT_FCALL 0 96 string("g")`, "V0 = DO_UCALL", "RETURN V0"),
			fn(t, "f", 1, 3, `INIT_FCALL 0 96 string("g")`, "V0 = DO_UCALL", "RETURN V0"),
		},
		{
			"optimized keeps a temporary",
			fn(t, "f", 1, 3, "ECHO string(\"x\")", "RETURN int(1)"),
			fn(t, "f", 1, 3, "T1 = ADD CV0($a) int(1)", "RETURN T1"),
		},
		{
			"unoptimized only trivial",
			fn(t, "f", 1, 3, "T0 = ADD int(1) int(2)", "RETURN T0"),
			fn(t, "f", 1, 3, "RETURN int(3)"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compare(dump(tt.unopt), dump(tt.opt)); len(got) != 0 {
				t.Errorf("findings = %+v, want none", got)
			}
		})
	}
}

func TestCompare_SkipsUnmatched(t *testing.T) {
	unopt := dump(fn(t, "only_here", 1, 2, "DO_UCALL", "RETURN int(1)"))
	opt := dump(fn(t, "only_there", 1, 2, "RETURN int(1)"))
	if got := Compare(unopt, opt); len(got) != 0 {
		t.Errorf("findings = %+v, want none", got)
	}
	if n := countShared(unopt, opt); n != 0 {
		t.Errorf("countShared = %d, want 0", n)
	}
}

func TestCompare_Deterministic(t *testing.T) {
	names := []string{"zeta", "alpha", "Foo::bar", "mid", "beta"}
	var unoptFns, optFns []*opcache.Function
	for i, n := range names {
		unoptFns = append(unoptFns, fn(t, n, i*10, i*10+5, "DO_ICALL", "RETURN int(0)"))
	}
	// Optimized listing in a different order; only the unoptimized order counts.
	for i := len(names) - 1; i >= 0; i-- {
		optFns = append(optFns, fn(t, names[i], i*10, i*10+5, "RETURN int(0)"))
	}
	unopt, opt := dump(unoptFns...), dump(optFns...)

	first := Compare(unopt, opt)
	if len(first) != len(names) {
		t.Fatalf("findings = %d, want %d", len(first), len(names))
	}
	for i, f := range first {
		if f.Function != names[i] {
			t.Errorf("findings[%d] = %q, want %q", i, f.Function, names[i])
		}
	}
	for range 20 {
		if got := Compare(unopt, opt); !reflect.DeepEqual(got, first) {
			t.Fatalf("Compare is not deterministic:\n%+v\n%+v", got, first)
		}
	}
}
