package dispatcher

import (
	"context"
	"math/rand"
	"time"

	"github.com/lyzr/flowctl/internal/model"
)

// MockHandler implements the `mock` action kind: it generates a value
// satisfying a JSON-schema-shaped `schema` implementation field, with an
// optional artificial delay and an optional seed for reproducibility.
type MockHandler struct{}

func NewMockHandler() *MockHandler { return &MockHandler{} }

func (h *MockHandler) Handle(ctx context.Context, action model.ActionDefinition, input map[string]interface{}) ActionResult {
	schema, _ := action.Implementation["schema"].(map[string]interface{})

	var rng *rand.Rand
	if seed, ok := action.Implementation["seed"]; ok {
		rng = rand.New(rand.NewSource(toInt64(seed)))
	} else {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	if delaySpec, ok := action.Implementation["delay"].(map[string]interface{}); ok {
		minMs := toInt64(delaySpec["minMs"])
		maxMs := toInt64(delaySpec["maxMs"])
		if maxMs < minMs {
			maxMs = minMs
		}
		var d time.Duration
		if maxMs > minMs {
			d = time.Duration(minMs+rng.Int63n(maxMs-minMs+1)) * time.Millisecond
		} else {
			d = time.Duration(minMs) * time.Millisecond
		}
		select {
		case <-ctx.Done():
			return Failf("cancelled", false, "mock delay interrupted: %v", ctx.Err())
		case <-time.After(d):
		}
	}

	value := generate(schema, rng)

	var out map[string]interface{}
	if m, ok := value.(map[string]interface{}); ok {
		out = m
	} else {
		out = map[string]interface{}{"value": value}
	}
	return ActionResult{Success: true, Output: out}
}

func generate(schema map[string]interface{}, rng *rand.Rand) interface{} {
	if schema == nil {
		return nil
	}
	schemaType, _ := schema["type"].(string)
	switch schemaType {
	case "object":
		props, _ := schema["properties"].(map[string]interface{})
		out := make(map[string]interface{}, len(props))
		for k, v := range props {
			sub, _ := v.(map[string]interface{})
			out[k] = generate(sub, rng)
		}
		return out
	case "array":
		items, _ := schema["items"].(map[string]interface{})
		n := 1 + rng.Intn(3)
		arr := make([]interface{}, n)
		for i := range arr {
			arr[i] = generate(items, rng)
		}
		return arr
	case "string":
		if enum, ok := schema["enum"].([]interface{}); ok && len(enum) > 0 {
			return enum[rng.Intn(len(enum))]
		}
		return randomString(rng, 8)
	case "number", "integer":
		return float64(rng.Intn(1000))
	case "boolean":
		return rng.Intn(2) == 0
	default:
		return nil
	}
}

func randomString(rng *rand.Rand, n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[rng.Intn(len(letters))]
	}
	return string(b)
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}
