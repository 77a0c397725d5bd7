// Package classify partitions cell text into top-level declarations and
// executable statements.
//
// Classification is line and brace based, not a parser. It works for cells
// holding one conceptual unit. Brace characters inside string literals or
// comments are counted like any other brace and can close a block early or
// keep it open to the end of the cell.
package classify

import "strings"

// Cell is the classification of one cell's text.
// Both slices hold source blocks in first-seen order.
type Cell struct {
	Declarations []string
	Statements   []string
}

// modifiers are stripped, in this order, before keyword matching.
var modifiers = []string{"pub ", "mut ", "static "}

// declKeywords open a top-level declaration.
var declKeywords = []string{
	"fn ",
	"struct ",
	"interface ",
	"enum ",
	"type ",
	"const ",
	"const(",
	"import ",
	"__global",
}

// Classify splits text into declaration and statement blocks.
func Classify(text string) Cell {
	var cell Cell
	lines := splitLines(text)

	for i := 0; i < len(lines); {
		trimmed := strings.TrimSpace(lines[i])
		if skippable(trimmed) {
			i++
			continue
		}

		block, consumed := collectBlock(lines, i)
		if IsDeclarationStart(trimmed) {
			cell.Declarations = append(cell.Declarations, block)
		} else {
			cell.Statements = append(cell.Statements, block)
		}
		i += consumed
	}

	return cell
}

// skippable reports whether a trimmed line is dropped outright: blank lines,
// comment openers, shebangs and module clauses (the synthesizer emits its own).
func skippable(trimmed string) bool {
	switch {
	case trimmed == "":
		return true
	case strings.HasPrefix(trimmed, "//"), strings.HasPrefix(trimmed, "/*"):
		return true
	case strings.HasPrefix(trimmed, "#!"):
		return true
	case strings.HasPrefix(trimmed, "module "):
		return true
	}
	return false
}

// IsDeclarationStart reports whether a trimmed line opens a top-level
// declaration. Attribute lines count, since they annotate the declaration
// that follows.
func IsDeclarationStart(trimmed string) bool {
	stripped := trimmed
	for _, m := range modifiers {
		for strings.HasPrefix(stripped, m) {
			stripped = stripped[len(m):]
		}
	}

	if strings.HasPrefix(stripped, "[") || strings.HasPrefix(stripped, "@[") {
		return true
	}
	for _, kw := range declKeywords {
		if strings.HasPrefix(stripped, kw) {
			return true
		}
	}
	return false
}

// IsImport reports whether a declaration block is an import.
func IsImport(block string) bool {
	return strings.HasPrefix(strings.TrimLeft(block, " \t"), "import ")
}

// collectBlock gathers the block starting at lines[start] and returns it with
// the number of lines consumed. A first line without '{' is a block on its
// own. Otherwise lines are consumed until brace depth drops to zero or below;
// an unterminated block runs to the end of input.
func collectBlock(lines []string, start int) (string, int) {
	first := lines[start]
	if !strings.Contains(first, "{") {
		return first, 1
	}

	depth := 0
	i := start
	for i < len(lines) {
		line := lines[i]
		depth += strings.Count(line, "{") - strings.Count(line, "}")
		i++
		if depth <= 0 {
			break
		}
	}

	return strings.Join(lines[start:i], "\n"), i - start
}

// splitLines splits on '\n', strips a trailing '\r' from each line and drops
// the empty remainder after a final newline.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// Lines splits text the same way Classify does. Used for traceback rendering
// and main-body indentation.
func Lines(text string) []string {
	return splitLines(text)
}
