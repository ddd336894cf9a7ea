package directive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/weave/internal/types"
)

func TestEvaluate(t *testing.T) {
	props := types.NewProps(
		"page", "main",
		"count", "5",
		"show", "true",
		"hide", "false",
		"empty", "",
		"user", "bob",
	)

	testCases := []struct {
		expr     string
		expected bool
	}{
		{`page == "main"`, true},
		{`(page == "main")`, true},
		{`page != "main"`, false},
		{`page === "main"`, true},
		{`page !== 'main'`, false},
		{`page == 'login' || page == 'main'`, true},
		{`page == "main" && count > 3`, true},
		{`count + 1 == 6`, true},
		{`count * 2 > 11`, false},
		{`!hide`, true},
		{`show`, true},
		{`hide`, false},
		{`empty`, false},
		{`page`, true},
		{`1`, true},
		{`0`, false},
		{`true`, true},
		{`page == "main" ? true : false`, true},
		{`unknown == "x"`, false},
		{`page ==`, false},
		{``, false},
		{`upper(page) == "MAIN"`, false},
		{`[page][0] == "main"`, false},
		{`page.length > 0`, false},
		{`count == 5`, true},
		{`count != 5`, false},
		{`5 == count`, true},
		{`count == 6`, false},
		{`page == 5`, false},
		{`show == true`, true},
		{`hide == false`, true},
		{`user && show`, true},
		{`show && user`, true},
		{`user && hide`, false},
		{`user && empty`, false},
		{`user || page == "x"`, true},
		{`empty || user`, true},
		{`empty || hide`, false},
		{`count >= 5 && user`, true},
		{`!user`, false},
		{`!empty`, true},
		{`!(user && hide)`, true},
		{`user ? show : hide`, true},
		{`page > 3`, false},
	}

	for _, tc := range testCases {
		t.Run(tc.expr, func(t *testing.T) {
			assert.Equal(t, tc.expected, Evaluate(tc.expr, props))
		})
	}
}

func TestEvaluateShortCircuits(t *testing.T) {
	props := types.NewProps("user", "bob", "empty", "")

	// the right-hand sides reference an unbound identifier
	assert.True(t, Evaluate(`user || missing == "x"`, props))
	assert.False(t, Evaluate(`empty && missing == "x"`, props))
	assert.False(t, Evaluate(`user && missing == "x"`, props))
}

func TestEvaluateListPropJoined(t *testing.T) {
	var props types.Props
	props.Set("items", types.List("a", "b"))

	assert.True(t, Evaluate(`items == "a,b"`, props))
}

func TestParseRejectsFunctionCalls(t *testing.T) {
	_, err := Parse(`file("/etc/passwd") == ""`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed")
}

func TestParseAcceptsOperatorSubset(t *testing.T) {
	for _, expr := range []string{
		`a == "b"`,
		`!(a == "b") || c`,
		`-n < 0`,
		`(x % 2) == 0`,
		`"${a}-${b}" == "1-2"`,
	} {
		_, err := Parse(expr)
		assert.NoError(t, err, expr)
	}
}

func TestEvaluateTemplateInterpolation(t *testing.T) {
	assert.True(t, Evaluate(`"${a}-${b}" == "1-2"`, types.NewProps("a", "1", "b", "2")))
}

func TestEvaluateSkipsInvalidIdentifiers(t *testing.T) {
	props := types.NewProps("data:id", "7", "ok", "yes")

	assert.True(t, Evaluate(`ok == "yes"`, props))
}
