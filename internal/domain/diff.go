package domain

import (
	"sort"
	"strings"
	"unicode"
)

// ChangeBlock is one contiguous changed region produced by the line diff.
// OriginalText and ModifiedText join the removed and added lines respectively;
// either may be empty for pure additions or deletions.
type ChangeBlock struct {
	Type         ChangeType
	OriginalText string
	ModifiedText string
	// LineNumber is the 1-based line in the previous text where the block
	// starts. For pure additions it is the line after which text was inserted.
	LineNumber int
}

// DiffNarratives computes a line-granularity diff between two narrative texts.
// Each contiguous changed region collapses into a single block: a region with
// both removed and added lines is a Modification rather than a separate
// deletion plus addition, so its severity is only counted once. Diffing a text
// against itself yields no blocks.
func DiffNarratives(prev, curr string) []ChangeBlock {
	ops := diffLines(splitNarrativeLines(prev), splitNarrativeLines(curr))

	var blocks []ChangeBlock
	baseLine := 0
	i := 0
	for i < len(ops) {
		if ops[i].kind == opEqual {
			baseLine++
			i++
			continue
		}

		var removed, added []string
		startLine := baseLine + 1
		for i < len(ops) && ops[i].kind != opEqual {
			switch ops[i].kind {
			case opDelete:
				removed = append(removed, ops[i].line)
				baseLine++
			case opInsert:
				added = append(added, ops[i].line)
			}
			i++
		}
		blocks = append(blocks, newChangeBlock(removed, added, startLine))
	}

	return blocks
}

func newChangeBlock(removed, added []string, line int) ChangeBlock {
	block := ChangeBlock{
		OriginalText: strings.Join(removed, "\n"),
		ModifiedText: strings.Join(added, "\n"),
		LineNumber:   line,
	}
	switch {
	case len(removed) == 0:
		block.Type = ChangeAddition
	case len(added) == 0:
		block.Type = ChangeDeletion
	case sameLinesReordered(removed, added):
		block.Type = ChangeReorder
	case styleOnlyChange(block.OriginalText, block.ModifiedText):
		block.Type = ChangeStyle
	default:
		block.Type = ChangeModification
	}
	return block
}

// sameLinesReordered reports whether both sides carry the same lines in a
// different order.
func sameLinesReordered(removed, added []string) bool {
	if len(removed) != len(added) {
		return false
	}
	a := append([]string(nil), removed...)
	b := append([]string(nil), added...)
	sort.Strings(a)
	sort.Strings(b)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// styleOnlyChange reports whether the texts differ only in whitespace or
// punctuation.
func styleOnlyChange(original, modified string) bool {
	return stripStyle(original) == stripStyle(modified)
}

func stripStyle(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsPunct(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func splitNarrativeLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

type opKind int

const (
	opEqual opKind = iota
	opDelete
	opInsert
)

type diffOp struct {
	kind opKind
	line string
}

// diffLines walks a longest-common-subsequence table over the two line slices
// and emits equal/delete/insert operations in order.
func diffLines(base, target []string) []diffOp {
	m := len(base)
	n := len(target)
	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
	}

	for i := m - 1; i >= 0; i-- {
		for j := n - 1; j >= 0; j-- {
			if base[i] == target[j] {
				dp[i][j] = dp[i+1][j+1] + 1
			} else if dp[i+1][j] >= dp[i][j+1] {
				dp[i][j] = dp[i+1][j]
			} else {
				dp[i][j] = dp[i][j+1]
			}
		}
	}

	ops := make([]diffOp, 0, m+n)
	i, j := 0, 0
	for i < m && j < n {
		if base[i] == target[j] {
			ops = append(ops, diffOp{kind: opEqual, line: base[i]})
			i++
			j++
			continue
		}

		if dp[i+1][j] >= dp[i][j+1] {
			ops = append(ops, diffOp{kind: opDelete, line: base[i]})
			i++
		} else {
			ops = append(ops, diffOp{kind: opInsert, line: target[j]})
			j++
		}
	}

	for i < m {
		ops = append(ops, diffOp{kind: opDelete, line: base[i]})
		i++
	}

	for j < n {
		ops = append(ops, diffOp{kind: opInsert, line: target[j]})
		j++
	}

	return ops
}
