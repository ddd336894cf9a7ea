package scanner

import (
	"regexp"

	"github.com/conneroisu/weave/internal/types"
)

// attrPattern matches name="value". Whitespace around '=' is allowed, single
// quotes and bare values are not.
var attrPattern = regexp.MustCompile(`([A-Za-z_][\w\-:.]*)\s*=\s*"([^"]*)"`)

// ParseAttributes extracts the props from the raw attribute text of a tag.
// Every name="value" pair becomes a scalar prop in source order; text that
// does not match the pattern is ignored. Values are taken verbatim.
func ParseAttributes(raw string) types.Props {
	var props types.Props
	for _, m := range attrPattern.FindAllStringSubmatch(raw, -1) {
		props.Set(m[1], types.Scalar(m[2]))
	}

	return props
}
