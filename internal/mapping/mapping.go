// Package mapping implements the engine's Mapping Engine: applying
// input-mapping objects to build action input, and applying
// output-mapping objects to merge action output back into context via
// dotted-path writes. Dotted-path writes that create intermediate
// containers of the correct kind are delegated to
// github.com/tidwall/sjson, the write-side counterpart of the gjson
// library the teacher already used for path reads (see internal/expr).
package mapping

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/sjson"

	"github.com/lyzr/flowctl/internal/expr"
)

// ApplyInput evaluates an input-mapping object against ctx. Each value in
// mapping is either an expression string (evaluated per internal/expr) or
// a non-string literal, which passes through unchanged.
func ApplyInput(mapping map[string]interface{}, ctx map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(mapping))
	for key, raw := range mapping {
		v, err := evalValue(raw, ctx)
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, nil
}

func evalValue(raw interface{}, ctx map[string]interface{}) (interface{}, error) {
	s, ok := raw.(string)
	if !ok {
		return raw, nil
	}
	v, err := expr.Eval(s, ctx)
	if err != nil {
		return nil, err
	}
	if v == expr.Absent {
		return nil, nil
	}
	return v, nil
}

// ApplyOutput applies an output-mapping object, writing each evaluated
// value into target at the dotted path given by its key, creating
// intermediate containers of the correct kind (object or array, inferred
// from the next path segment) as needed. If mapping is empty, the entire
// actionOutput is stored at state._lastOutput instead (the Mapping
// Engine's default-mapping rule).
func ApplyOutput(mapping map[string]interface{}, actionOutput interface{}, evalCtx map[string]interface{}, target map[string]interface{}) (map[string]interface{}, error) {
	if len(mapping) == 0 {
		return setDottedPath(target, "state._lastOutput", actionOutput)
	}
	cur := target
	var err error
	for path, raw := range mapping {
		v, verr := evalValue(raw, evalCtx)
		if verr != nil {
			return nil, verr
		}
		cur, err = setDottedPath(cur, path, v)
		if err != nil {
			return nil, err
		}
	}
	return cur, nil
}

// setDottedPath writes value at dotted path into target, using sjson so
// that intermediate objects/arrays are created with the right kind based
// on whether the next path segment looks like an array index.
func setDottedPath(target map[string]interface{}, path string, value interface{}) (map[string]interface{}, error) {
	b, err := json.Marshal(target)
	if err != nil {
		return nil, err
	}
	sjsonPath := toSJSONPath(path)
	b, err = sjson.SetBytes(b, sjsonPath, value)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// toSJSONPath converts our dotted-path-with-optional-[n]-index syntax
// ("output.items[0].name") into sjson's own dotted syntax
// ("output.items.0.name"); sjson already creates arrays vs. objects based
// on whether a segment parses as a non-negative integer.
func toSJSONPath(path string) string {
	path = strings.ReplaceAll(path, "[", ".")
	path = strings.ReplaceAll(path, "]", "")
	return path
}

// DeepMerge merges src into dst: object⊕object recurses key by key;
// arrays and scalars replace the destination value wholesale.
func DeepMerge(dst, src map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, sv := range src {
		if dv, ok := out[k]; ok {
			dm, dmOk := dv.(map[string]interface{})
			sm, smOk := sv.(map[string]interface{})
			if dmOk && smOk {
				out[k] = DeepMerge(dm, sm)
				continue
			}
		}
		out[k] = sv
	}
	return out
}
