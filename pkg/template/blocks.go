package template

import "strings"

// tag is a single {% if/elif/else/endif %} occurrence.
type tag struct {
	start, end int
	kind       string
	arg        string
}

func allTags(text string) []tag {
	matches := blockPattern.FindAllStringSubmatchIndex(text, -1)
	tags := make([]tag, 0, len(matches))
	for _, m := range matches {
		tags = append(tags, tag{
			start: m[0],
			end:   m[1],
			kind:  text[m[2]:m[3]],
			arg:   strings.TrimSpace(text[m[4]:m[5]]),
		})
	}
	return tags
}

func findTag(text string, from int, kind string) *tag {
	for _, t := range allTags(text) {
		if t.start >= from && t.kind == kind {
			return &t
		}
	}
	return nil
}

// findMatchingEndif finds the {% endif %} that closes the {% if %} whose
// body starts at from, tracking nested if/endif depth so inner
// conditionals pass through untouched.
func findMatchingEndif(text string, from int) *tag {
	depth := 1
	for _, t := range allTags(text) {
		if t.start < from {
			continue
		}
		switch t.kind {
		case "if":
			depth++
		case "endif":
			depth--
			if depth == 0 {
				return &t
			}
		}
	}
	return nil
}

// branch is one arm of an if/elif/else chain.
type branch struct {
	cond   string
	isElse bool
	body   string
}

// splitBranches splits the text between an if tag and its matching endif
// into branches at top-level elif/else tags (nested if/endif pairs are
// left alone).
func splitBranches(text string, ifTag, endTag *tag) []branch {
	type opening struct {
		kind, cond string
		start      int
	}
	openings := []opening{{kind: "if", cond: ifTag.arg, start: ifTag.end}}

	depth := 0
	for _, t := range allTags(text) {
		if t.start < ifTag.end || t.start >= endTag.start {
			continue
		}
		switch t.kind {
		case "if":
			depth++
		case "endif":
			depth--
		case "elif", "else":
			if depth == 0 {
				openings = append(openings, opening{kind: t.kind, cond: t.arg, start: t.end})
			}
		}
	}

	branches := make([]branch, 0, len(openings))
	for i, o := range openings {
		end := endTag.start
		if i+1 < len(openings) {
			// body ends where the next opening tag begins, recovered by
			// scanning forward from o.start for the next top-level tag.
			end = nextTopLevelTagStart(text, o.start, endTag.start)
		}
		branches = append(branches, branch{
			cond:   o.cond,
			isElse: o.kind == "else",
			body:   text[o.start:end],
		})
	}
	return branches
}

// nextTopLevelTagStart finds the position of the next elif/else/endif tag
// at nesting depth 0 starting the search at from, bounded by limit.
func nextTopLevelTagStart(text string, from, limit int) int {
	depth := 0
	for _, t := range allTags(text) {
		if t.start < from || t.start >= limit {
			continue
		}
		switch t.kind {
		case "if":
			depth++
		case "endif":
			if depth == 0 {
				return t.start
			}
			depth--
		case "elif", "else":
			if depth == 0 {
				return t.start
			}
		}
	}
	return limit
}
