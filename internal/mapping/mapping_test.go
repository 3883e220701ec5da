package mapping_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lyzr/flowctl/internal/mapping"
)

func TestApplyInputExpressionAndLiteral(t *testing.T) {
	ctx := map[string]interface{}{
		"input": map[string]interface{}{"name": "World"},
	}
	out, err := mapping.ApplyInput(map[string]interface{}{
		"greetee": "input.name",
		"count":   float64(3),
	}, ctx)
	require.NoError(t, err)
	require.Equal(t, "World", out["greetee"])
	require.Equal(t, float64(3), out["count"])
}

func TestApplyOutputDefaultsToLastOutput(t *testing.T) {
	out, err := mapping.ApplyOutput(nil, map[string]interface{}{"x": float64(1)}, nil, map[string]interface{}{})
	require.NoError(t, err)
	state, ok := out["state"].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, map[string]interface{}{"x": float64(1)}, state["_lastOutput"])
}

func TestApplyOutputDottedPathCreatesContainers(t *testing.T) {
	ctx := map[string]interface{}{"result": map[string]interface{}{"foo": "bar"}}
	out, err := mapping.ApplyOutput(map[string]interface{}{
		"output.nested.value": "result.foo",
	}, nil, ctx, map[string]interface{}{})
	require.NoError(t, err)
	output := out["output"].(map[string]interface{})
	nested := output["nested"].(map[string]interface{})
	require.Equal(t, "bar", nested["value"])
}

func TestDeepMerge(t *testing.T) {
	dst := map[string]interface{}{
		"a": map[string]interface{}{"x": 1, "y": 2},
		"arr": []interface{}{1, 2},
	}
	src := map[string]interface{}{
		"a":   map[string]interface{}{"y": 3, "z": 4},
		"arr": []interface{}{9},
	}
	merged := mapping.DeepMerge(dst, src)
	a := merged["a"].(map[string]interface{})
	require.Equal(t, 1, a["x"])
	require.Equal(t, 3, a["y"])
	require.Equal(t, 4, a["z"])
	require.Equal(t, []interface{}{9}, merged["arr"])
}
