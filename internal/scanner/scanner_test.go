package scanner

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAttributes(t *testing.T) {
	testCases := []struct {
		name     string
		raw      string
		expected [][2]string
	}{
		{"empty", "", nil},
		{"single", ` title="Hi"`, [][2]string{{"title", "Hi"}}},
		{"spaces around equals", ` title = "Hi"  page="main"`, [][2]string{{"title", "Hi"}, {"page", "main"}}},
		{"dashes and colons", ` data-id="7" x:y="z"`, [][2]string{{"data-id", "7"}, {"x:y", "z"}}},
		{"unquoted ignored", ` a=b c="d" disabled`, [][2]string{{"c", "d"}}},
		{"single quotes ignored", ` a='b'`, nil},
		{"empty value", ` a=""`, [][2]string{{"a", ""}}},
		{"value kept raw", ` html="&lt;b&gt; {{x}}"`, [][2]string{{"html", "&lt;b&gt; {{x}}"}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			props := ParseAttributes(tc.raw)
			entries := props.Entries()
			require.Len(t, entries, len(tc.expected))
			for i, e := range entries {
				assert.Equal(t, tc.expected[i][0], e.Name)
				assert.Equal(t, tc.expected[i][1], e.Value.String())
			}
		})
	}
}

func TestIsVoidElement(t *testing.T) {
	for _, name := range []string{"br", "BR", "img", "input", "hr", "meta", "link", "source", "track", "wbr"} {
		assert.True(t, IsVoidElement(name), name)
	}
	for _, name := range []string{"card", "div", "button", "layout/header", ""} {
		assert.False(t, IsVoidElement(name), name)
	}
}

func TestFindTags(t *testing.T) {
	doc := `<main>
<card title="Hi" />
<br/>
<ui/button label="Go"/>
<img src="/a.png" />
<p>text</p>
<empty/>
</main>`

	tags := NewTagScanner().FindTags(doc)
	require.Len(t, tags, 3)

	assert.Equal(t, "card", tags[0].Name)
	assert.Equal(t, `<card title="Hi" />`, tags[0].Raw)
	title, ok := tags[0].Props.Get("title")
	require.True(t, ok)
	assert.Equal(t, "Hi", title.String())

	assert.Equal(t, "ui/button", tags[1].Name)
	assert.Equal(t, "empty", tags[2].Name)
	assert.Equal(t, 0, tags[2].Props.Len())
}

func TestFindTagsQuotedSpecialCharacters(t *testing.T) {
	tags := NewTagScanner().FindTags(`<link-card href="/a/b?x=1" note="a > b" />`)
	assert.Empty(t, tags, "dash is not a valid name character")

	tags = NewTagScanner().FindTags(`<linkcard href="/a/b?x=1" note="a > b" />`)
	require.Len(t, tags, 1)
	note, _ := tags[0].Props.Get("note")
	assert.Equal(t, "a > b", note.String())
}

func TestExpandReplacesTags(t *testing.T) {
	doc := `<div><greet name="Ann"/> and <greet name="Bob" /></div>`

	out, err := NewTagScanner().Expand(doc, func(tag Tag) (string, bool, error) {
		name, _ := tag.Props.Get("name")

		return "Hello " + name.String(), true, nil
	})

	require.NoError(t, err)
	assert.Equal(t, `<div>Hello Ann and Hello Bob</div>`, out)
}

func TestExpandRestoresCommentsInAttributes(t *testing.T) {
	doc := `<!-- first --><card note="<!-- x -->"/>`

	var note string
	out, err := NewTagScanner().Expand(doc, func(tag Tag) (string, bool, error) {
		v, _ := tag.Props.Get("note")
		note = v.String()
		assert.Equal(t, `<card note="<!-- x -->"/>`, tag.Raw)

		return "[" + note + "]", true, nil
	})

	require.NoError(t, err)
	assert.Equal(t, "<!-- x -->", note)
	assert.Equal(t, `<!-- first -->[<!-- x -->]`, out)
}

func TestExpandKeepsTagWhenNotOK(t *testing.T) {
	doc := `<p><missing a="1"/></p>`

	out, err := NewTagScanner().Expand(doc, func(tag Tag) (string, bool, error) {
		return "", false, nil
	})

	require.NoError(t, err)
	assert.Equal(t, doc, out)
}

func TestExpandProtectsComments(t *testing.T) {
	doc := `<!-- <fakeComponent prop="x" /> --><real/><!--
<also a="b"/>
-->`
	var seen []string

	out, err := NewTagScanner().Expand(doc, func(tag Tag) (string, bool, error) {
		seen = append(seen, tag.Name)

		return "R", true, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"real"}, seen)
	assert.Equal(t, `<!-- <fakeComponent prop="x" /> -->R<!--
<also a="b"/>
-->`, out)
}

func TestExpandCommentOnlyDocumentUntouched(t *testing.T) {
	doc := `<html><!-- <fakeComponent prop="x" /> --></html>`
	called := false

	out, err := NewTagScanner().Expand(doc, func(tag Tag) (string, bool, error) {
		called = true

		return "", true, nil
	})

	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, doc, out)
}

func TestExpandReplacementWithCommentsSurvives(t *testing.T) {
	out, err := NewTagScanner().Expand(`<!-- a --><x/>`, func(tag Tag) (string, bool, error) {
		return "<!-- x -->X<!-- /x -->", true, nil
	})

	require.NoError(t, err)
	assert.Equal(t, `<!-- a --><!-- x -->X<!-- /x -->`, out)
}

func TestExpandStopsOnError(t *testing.T) {
	boom := errors.New("boom")

	_, err := NewTagScanner().Expand(`<a/><b/>`, func(tag Tag) (string, bool, error) {
		if tag.Name == "b" {
			return "", false, boom
		}

		return "A", true, nil
	})

	assert.ErrorIs(t, err, boom)
}

func TestExpandNoTagsReturnsInput(t *testing.T) {
	doc := strings.Repeat("<p>plain {{text}} {% if (x) %}</p>\n", 3)

	out, err := NewTagScanner().Expand(doc, func(tag Tag) (string, bool, error) {
		t.Fatalf("unexpected tag %s", tag.Name)

		return "", false, nil
	})

	require.NoError(t, err)
	assert.Equal(t, doc, out)
}
