// =============================================================================
// Invoice Generator - Placeholder Substitution
// =============================================================================
//
// Templates carry {{key}} tokens. Word processors often split one token over
// several runs ("{{cust" + "omer_name}}") when the author edits or formats
// part of it, so substitution works on a whole block at a time:
//
//   1. Join the block's fragments into one string
//   2. Replace every token whose key is in the mapping
//   3. Redistribute the result: untouched characters stay in the fragment
//      they came from, a replacement value goes into the fragment where its
//      token started, and the rest of the token disappears
//
// Keys match exactly: {{subtotalx}} is not {{subtotal}}. Tokens without a
// value are left in place and reported to the caller.
//
// =============================================================================

package filler

import (
	"regexp"
	"sort"
	"strings"

	"github.com/stormdotcom/invo-gen-fastapi/internal/document"
)

// tokenPattern matches one placeholder token; group 1 is the key.
var tokenPattern = regexp.MustCompile(`\{\{([A-Za-z0-9_]+)\}\}`)

// Substitute replaces placeholder tokens in every text block and every table
// cell of doc.
//
// RETURNS:
//   - The sorted, de-duplicated keys of tokens that had no value.
func Substitute(doc document.Document, mapping map[string]string) []string {
	unresolved := make(map[string]bool)
	for _, b := range allBlocks(doc) {
		substituteBlock(b, mapping, unresolved)
	}
	return sortedKeys(unresolved)
}

// Placeholders lists the keys of all tokens present in doc.
func Placeholders(doc document.Document) []string {
	keys := make(map[string]bool)
	for _, b := range allBlocks(doc) {
		for _, m := range tokenPattern.FindAllStringSubmatch(document.Text(b), -1) {
			keys[m[1]] = true
		}
	}
	return sortedKeys(keys)
}

// replacement is a token span of the joined text and its value.
type replacement struct {
	start, end int
	value      string
}

func substituteBlock(b document.Block, mapping map[string]string, unresolved map[string]bool) {
	frags := b.Fragments()
	joined := strings.Join(frags, "")
	matches := tokenPattern.FindAllStringSubmatchIndex(joined, -1)
	if len(matches) == 0 {
		return
	}

	var reps []replacement
	for _, m := range matches {
		key := joined[m[2]:m[3]]
		value, ok := mapping[key]
		if !ok {
			unresolved[key] = true
			continue
		}
		reps = append(reps, replacement{start: m[0], end: m[1], value: value})
	}
	if len(reps) == 0 {
		return
	}

	b.SetFragments(redistribute(frags, reps))
}

// redistribute rebuilds the fragments of a block after replacing reps in
// their joined text. reps are ordered and do not overlap.
func redistribute(frags []string, reps []replacement) []string {
	// owner[i] is the fragment byte i of the joined text belongs to.
	var owner []int
	for i, f := range frags {
		for j := 0; j < len(f); j++ {
			owner = append(owner, i)
		}
	}
	joined := strings.Join(frags, "")

	out := make([]strings.Builder, len(frags))
	next := 0
	for pos := 0; pos < len(joined); {
		if next < len(reps) && pos == reps[next].start {
			out[owner[pos]].WriteString(reps[next].value)
			pos = reps[next].end
			next++
			continue
		}
		out[owner[pos]].WriteByte(joined[pos])
		pos++
	}

	result := make([]string, len(frags))
	for i := range out {
		result[i] = out[i].String()
	}
	return result
}

// allBlocks returns the text blocks of doc followed by every table cell.
func allBlocks(doc document.Document) []document.Block {
	blocks := doc.Blocks()
	for _, t := range doc.Tables() {
		for r := 0; r < t.RowCount(); r++ {
			for c := 0; c < t.CellCount(r); c++ {
				blocks = append(blocks, t.Cell(r, c))
			}
		}
	}
	return blocks
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
