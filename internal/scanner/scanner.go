// Package scanner finds self-closing component tags in HTML documents.
//
// Comments are swapped out for positional placeholders before matching and
// restored verbatim afterwards, so component syntax inside <!-- --> is never
// expanded. Reserved void elements such as <br/> and <img .../> are not
// components and are left alone.
package scanner

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html/atom"

	"github.com/conneroisu/weave/internal/types"
)

var (
	// tagPattern matches <name attrs/>. Names may contain '/' for components
	// stored in subdirectories, but must start with a letter or underscore
	// and end with a word character. Quoted attribute values may contain
	// '<', '>' and '/'.
	tagPattern = regexp.MustCompile(`<([A-Za-z_](?:[\w/]*\w)?)((?:\s(?:"[^"]*"|[^"<>])*?)?)\s*/>`)

	commentPattern     = regexp.MustCompile(`(?s)<!--.*?-->`)
	placeholderPattern = regexp.MustCompile("\x00weave-comment-(\\d+)\x00")
)

// voidElements are self-closing HTML elements that are never components.
var voidElements = map[atom.Atom]bool{
	atom.Br:      true,
	atom.Hr:      true,
	atom.Wbr:     true,
	atom.Meta:    true,
	atom.Link:    true,
	atom.Param:   true,
	atom.Base:    true,
	atom.Input:   true,
	atom.Img:     true,
	atom.Area:    true,
	atom.Col:     true,
	atom.Command: true,
	atom.Embed:   true,
	atom.Keygen:  true,
	atom.Source:  true,
	atom.Track:   true,
}

// IsVoidElement reports whether name is a reserved void element. The check
// is case-insensitive.
func IsVoidElement(name string) bool {
	a := atom.Lookup([]byte(strings.ToLower(name)))

	return a != 0 && voidElements[a]
}

// Tag is one component invocation found in a document.
type Tag struct {
	// Name is the component name as written.
	Name string
	// Props holds the parsed attributes.
	Props types.Props
	// Raw is the full original tag text.
	Raw string
}

// ExpandFunc produces the replacement for a tag. Returning ok=false keeps
// the original tag text. A non-nil error aborts the scan.
type ExpandFunc func(tag Tag) (replacement string, ok bool, err error)

// TagScanner finds and replaces component tags.
type TagScanner struct{}

// NewTagScanner creates a tag scanner.
func NewTagScanner() *TagScanner {
	return &TagScanner{}
}

// Expand replaces every component tag in doc with the result of fn.
// Comments are protected from matching and restored unchanged.
func (s *TagScanner) Expand(doc string, fn ExpandFunc) (string, error) {
	stripped, comments := protectComments(doc)

	matches := tagPattern.FindAllStringSubmatchIndex(stripped, -1)
	if len(matches) == 0 {
		return doc, nil
	}

	var out strings.Builder
	out.Grow(len(stripped))
	last := 0
	for _, m := range matches {
		name := stripped[m[2]:m[3]]
		if IsVoidElement(name) {
			continue
		}

		replacement, ok, err := fn(tagAt(stripped, m, comments))
		if err != nil {
			return "", err
		}
		if !ok {
			continue
		}

		out.WriteString(stripped[last:m[0]])
		out.WriteString(replacement)
		last = m[1]
	}
	out.WriteString(stripped[last:])

	return restoreComments(out.String(), comments), nil
}

// FindTags returns the component tags in doc, in document order, without
// modifying it.
func (s *TagScanner) FindTags(doc string) []Tag {
	stripped, comments := protectComments(doc)

	var tags []Tag
	for _, m := range tagPattern.FindAllStringSubmatchIndex(stripped, -1) {
		name := stripped[m[2]:m[3]]
		if IsVoidElement(name) {
			continue
		}
		tags = append(tags, tagAt(stripped, m, comments))
	}

	return tags
}

// tagAt builds the tag for match m. A comment may sit inside a quoted
// attribute value, so placeholders are restored before the attributes are
// parsed.
func tagAt(stripped string, m []int, comments []string) Tag {
	var attrs string
	if m[4] >= 0 {
		attrs = restoreComments(stripped[m[4]:m[5]], comments)
	}

	return Tag{
		Name:  stripped[m[2]:m[3]],
		Props: ParseAttributes(attrs),
		Raw:   restoreComments(stripped[m[0]:m[1]], comments),
	}
}

// protectComments replaces each comment with a numbered placeholder.
func protectComments(doc string) (string, []string) {
	if !strings.Contains(doc, "<!--") {
		return doc, nil
	}

	var comments []string
	stripped := commentPattern.ReplaceAllStringFunc(doc, func(c string) string {
		comments = append(comments, c)

		return "\x00weave-comment-" + strconv.Itoa(len(comments)-1) + "\x00"
	})

	return stripped, comments
}

func restoreComments(s string, comments []string) string {
	if len(comments) == 0 {
		return s
	}

	return placeholderPattern.ReplaceAllStringFunc(s, func(p string) string {
		m := placeholderPattern.FindStringSubmatch(p)
		i, err := strconv.Atoi(m[1])
		if err != nil || i >= len(comments) {
			return p
		}

		return comments[i]
	})
}
