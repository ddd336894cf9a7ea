// Package directive evaluates {% if %} and {% for %} blocks in component
// templates.
//
//	{% if (page == "main") %}A{% elif (page == "login") %}B{% else %}C{% endif %}
//	{% for item in items %}<li>{{item}}</li>{% endfor %}
//
// Blocks nest. Conditionals are resolved before loops, so a condition cannot
// refer to a loop variable.
package directive

import (
	"regexp"
	"strings"

	"github.com/conneroisu/weave/internal/types"
)

var (
	tagPattern  = regexp.MustCompile(`(?s)\{%\s*(if|elif|else|endif|for|endfor)\b(.*?)%\}`)
	loopPattern = regexp.MustCompile(`^(\w+)\s+in\s+(\w+)$`)
)

// token is one {% ... %} tag located in the text.
type token struct {
	kw         string
	args       string
	start, end int
}

func tokenize(text string) []token {
	matches := tagPattern.FindAllStringSubmatchIndex(text, -1)
	tokens := make([]token, len(matches))
	for i, m := range matches {
		tokens[i] = token{
			kw:    text[m[2]:m[3]],
			args:  strings.TrimSpace(text[m[4]:m[5]]),
			start: m[0],
			end:   m[1],
		}
	}

	return tokens
}

type branch struct {
	cond   string
	isElse bool
	body   string
}

// EvalConditionals resolves every if/elif/else/endif block in text. The
// first branch whose condition holds is emitted, trimmed of surrounding
// whitespace; if none holds the else branch is emitted, or nothing. The
// chosen branch is resolved recursively. An if without a matching endif is
// left as written.
func EvalConditionals(text string, props types.Props) string {
	if !strings.Contains(text, "{%") {
		return text
	}

	var out strings.Builder
	for {
		tokens := tokenize(text)
		first := -1
		for i, tok := range tokens {
			if tok.kw == "if" {
				first = i

				break
			}
		}
		if first < 0 {
			out.WriteString(text)

			return out.String()
		}

		branches, end, ok := splitIf(text, tokens[first:])
		if !ok {
			out.WriteString(text)

			return out.String()
		}

		out.WriteString(text[:tokens[first].start])
		out.WriteString(EvalConditionals(choose(branches, props), props))
		text = text[end:]
	}
}

// splitIf cuts an if block into branches. tokens[0] is the opening if.
// It returns the offset just past the matching endif.
func splitIf(text string, tokens []token) ([]branch, int, bool) {
	branches := []branch{{cond: tokens[0].args}}
	bodyStart := tokens[0].end
	depth := 0

	for _, tok := range tokens[1:] {
		switch tok.kw {
		case "if":
			depth++
		case "endif":
			if depth > 0 {
				depth--

				continue
			}
			branches[len(branches)-1].body = text[bodyStart:tok.start]

			return branches, tok.end, true
		case "elif", "else":
			if depth > 0 {
				continue
			}
			branches[len(branches)-1].body = text[bodyStart:tok.start]
			branches = append(branches, branch{cond: tok.args, isElse: tok.kw == "else"})
			bodyStart = tok.end
		}
	}

	return nil, 0, false
}

func choose(branches []branch, props types.Props) string {
	var elseBody *string
	for i := range branches {
		b := &branches[i]
		if b.isElse {
			if elseBody == nil {
				elseBody = &b.body
			}

			continue
		}
		if Evaluate(b.cond, props) {
			return strings.TrimSpace(b.body)
		}
	}
	if elseBody != nil {
		return strings.TrimSpace(*elseBody)
	}

	return ""
}

// ExpandLoops expands every top-level for/endfor block in text. The body is
// repeated once per item of the list prop with {{item}} replaced by the
// item, and the repetitions are joined with no separator. A scalar prop is
// split on commas. An unknown list prop yields nothing. Loop output is not
// scanned again for directives.
func ExpandLoops(text string, props types.Props) string {
	if !strings.Contains(text, "{%") {
		return text
	}

	var out strings.Builder
	for {
		tokens := tokenize(text)
		first := -1
		for i, tok := range tokens {
			if tok.kw == "for" && loopPattern.MatchString(tok.args) {
				first = i

				break
			}
		}
		if first < 0 {
			out.WriteString(text)

			return out.String()
		}

		open := tokens[first]
		body, end, ok := loopBody(text, tokens[first:])
		if !ok {
			out.WriteString(text)

			return out.String()
		}

		m := loopPattern.FindStringSubmatch(open.args)
		item, list := m[1], m[2]

		out.WriteString(text[:open.start])
		if v, found := props.Get(list); found {
			placeholder := "{{" + item + "}}"
			for _, el := range v.Items() {
				out.WriteString(strings.ReplaceAll(body, placeholder, el))
			}
		}
		text = text[end:]
	}
}

func loopBody(text string, tokens []token) (string, int, bool) {
	depth := 0
	for _, tok := range tokens[1:] {
		switch tok.kw {
		case "for":
			depth++
		case "endfor":
			if depth > 0 {
				depth--

				continue
			}

			return text[tokens[0].end:tok.start], tok.end, true
		}
	}

	return "", 0, false
}
