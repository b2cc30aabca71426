package workflow

import (
	"github.com/deixis/noopcheck/internal/opcache"
	"github.com/deixis/noopcheck/internal/report"
)

// Compare reports every function that the optimizer reduces to simple
// returns while its unoptimized listing contains a dynamic instruction.
// Functions are visited in unoptimized listing order; functions missing
// from either dump are skipped.
func Compare(unoptimized, optimized *opcache.Dump) []report.Finding {
	var findings []report.Finding
	for _, name := range unoptimized.Names() {
		u, _ := unoptimized.Get(name)
		o, ok := optimized.Get(name)
		if !ok {
			continue
		}
		if !o.IsSimpleReturn() || !u.HasDynamic() {
			continue
		}
		findings = append(findings, report.Finding{
			Function:    name,
			StartLine:   o.Range.Start,
			EndLine:     o.Range.End,
			Unoptimized: u.Lines(),
			Optimized:   o.Lines(),
		})
	}
	return findings
}

func countShared(a, b *opcache.Dump) int {
	n := 0
	for _, name := range a.Names() {
		if _, ok := b.Get(name); ok {
			n++
		}
	}
	return n
}
