package opcache

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	// headerRe matches the first line of a function section:
	//
	//	foo: ; (lines=3, args=0, vars=0, tmps=1)
	headerRe = regexp.MustCompile(`^(\S+): ; \(lines=`)

	// rangeRe matches the annotation carrying the source span:
	//
	//	    ; /path/to/file.php:3-5
	rangeRe = regexp.MustCompile(`^\s+;\s+.*?([0-9]+)-([0-9]+)$`)

	// oplineRe matches "L<index> (<source line>):".
	oplineRe = regexp.MustCompile(`^L([0-9]+) \([0-9]+\):`)
)

// Parse splits a raw listing into functions and returns the valid ones
// keyed by name, in listing order.
func Parse(raw string) *Dump {
	d := NewDump()
	for _, f := range ParseSections(raw) {
		if f.Valid {
			d.Put(f)
		}
	}
	return d
}

// ParseSections splits a raw listing at each function header and parses
// every section, valid or not. Text before the first header forms a
// section of its own, which is always invalid.
func ParseSections(raw string) []*Function {
	var (
		sections []*Function
		current  []string
	)
	for _, line := range strings.Split(raw, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if headerRe.MatchString(line) && len(current) > 0 {
			sections = append(sections, parseSection(current))
			current = nil
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		sections = append(sections, parseSection(current))
	}
	return sections
}

func parseSection(lines []string) *Function {
	f := &Function{}
	m := headerRe.FindStringSubmatch(lines[0])
	if m == nil {
		return f
	}
	f.Name = m[1]

	i := 1
	found := false
	for ; i < len(lines); i++ {
		rm := rangeRe.FindStringSubmatch(lines[i])
		if rm == nil {
			continue
		}
		f.Range.Start, _ = strconv.Atoi(rm[1])
		f.Range.End, _ = strconv.Atoi(rm[2])
		found = true
		i++
		break
	}
	if !found {
		return f
	}

	// Oplines must appear as one unbroken run L0, L1, ...; anything
	// after the run (live ranges, exception tables) is ignored.
	expected := 0
	for ; i < len(lines); i++ {
		om := oplineRe.FindStringSubmatch(lines[i])
		if om == nil || om[1] != strconv.Itoa(expected) {
			break
		}
		ins, ok := Classify(lines[i])
		if !ok {
			break
		}
		f.Instructions = append(f.Instructions, ins)
		expected++
	}
	f.Valid = expected > 0
	return f
}
