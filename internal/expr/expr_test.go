package expr_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lyzr/flowctl/internal/expr"
)

func ctx() map[string]interface{} {
	return map[string]interface{}{
		"input": map[string]interface{}{
			"user":  map[string]interface{}{"name": "Ada"},
			"auto":  false,
			"count": float64(0),
			"items": []interface{}{
				map[string]interface{}{"id": "a"},
				map[string]interface{}{"id": "b"},
			},
		},
	}
}

func TestPathAccess(t *testing.T) {
	v, err := expr.Eval("input.user.name", ctx())
	require.NoError(t, err)
	require.Equal(t, "Ada", v)
}

func TestLegacyDollarPrefix(t *testing.T) {
	v, err := expr.Eval("$.input.user.name", ctx())
	require.NoError(t, err)
	require.Equal(t, "Ada", v)
}

func TestIndexAndNegativeIndex(t *testing.T) {
	v, err := expr.Eval("input.items[0].id", ctx())
	require.NoError(t, err)
	require.Equal(t, "a", v)

	v, err = expr.Eval("input.items[-1].id", ctx())
	require.NoError(t, err)
	require.Equal(t, "b", v)
}

func TestWildcardProjection(t *testing.T) {
	v, err := expr.Eval("input.items[*].id", ctx())
	require.NoError(t, err)
	require.Equal(t, []interface{}{"a", "b"}, v)
}

func TestMissingKeyYieldsAbsence(t *testing.T) {
	v, err := expr.Eval("input.nope.deeper", ctx())
	require.NoError(t, err)
	require.Equal(t, expr.Absent, v)
}

func TestOutOfBoundsIndexYieldsAbsence(t *testing.T) {
	v, err := expr.Eval("input.items[5].id", ctx())
	require.NoError(t, err)
	require.Equal(t, expr.Absent, v)
}

func TestForbiddenPrototypeFields(t *testing.T) {
	for _, key := range []string{"__proto__", "constructor", "prototype", "toString"} {
		c := ctx()
		c["input"].(map[string]interface{})[key] = "leaked"
		v, err := expr.Eval("input."+key, c)
		require.NoError(t, err)
		require.Equal(t, expr.Absent, v, "key %s must not resolve", key)
	}
}

func TestLooseVsStrictEquality(t *testing.T) {
	v, err := expr.Eval("'5' == 5", ctx())
	require.NoError(t, err)
	require.Equal(t, true, v)

	v, err = expr.Eval("'5' === 5", ctx())
	require.NoError(t, err)
	require.Equal(t, false, v)
}

func TestLogicalShortCircuit(t *testing.T) {
	v, err := expr.Eval("input.auto == false && input.user.name == 'Ada'", ctx())
	require.NoError(t, err)
	require.Equal(t, true, v)

	v, err = expr.Eval("input.auto == true || input.user.name == 'Ada'", ctx())
	require.NoError(t, err)
	require.Equal(t, true, v)
}

func TestArithmeticAndPrecedence(t *testing.T) {
	v, err := expr.Eval("1 + 2 * 3", ctx())
	require.NoError(t, err)
	require.Equal(t, float64(7), v)
}

func TestDivisionByZeroIsError(t *testing.T) {
	_, err := expr.Eval("1 / 0", ctx())
	require.Error(t, err)
}

func TestFunctions(t *testing.T) {
	v, err := expr.Eval("exists(input.user.name)", ctx())
	require.NoError(t, err)
	require.Equal(t, true, v)

	v, err = expr.Eval("exists(input.nope)", ctx())
	require.NoError(t, err)
	require.Equal(t, false, v)

	v, err = expr.Eval("length(input.items)", ctx())
	require.NoError(t, err)
	require.Equal(t, float64(2), v)

	v, err = expr.Eval("contains(input.items[*].id, 'b')", ctx())
	require.NoError(t, err)
	require.Equal(t, true, v)

	v, err = expr.Eval("startswith(input.user.name, 'Ad')", ctx())
	require.NoError(t, err)
	require.Equal(t, true, v)

	v, err = expr.Eval("isEmpty(input.items)", ctx())
	require.NoError(t, err)
	require.Equal(t, false, v)
}
