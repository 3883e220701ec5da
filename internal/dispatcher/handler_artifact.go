package dispatcher

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/lyzr/flowctl/internal/model"
)

// ArtifactStore is a content-addressable blob store: Put hashes and writes
// data once, Get reads it back by hash. Grounded on the teacher's CASClient
// interface (Get/Put/Store over Redis), narrowed to the two operations the
// `artifact` action kind needs.
type ArtifactStore interface {
	Put(ctx context.Context, data []byte, mediaType string) (casID string, err error)
	Get(ctx context.Context, casID string) ([]byte, error)
}

// ArtifactHandler implements the `artifact` action kind: put stores the
// mapped input as a content-addressed blob and returns its id, get reads
// one back by id.
//
// implementation shape:
//
//	op: string          "put" | "get" (default "put")
//	mediaType: string    content type recorded with the blob, put only
//	casId: string        blob id to read, get only (falls back to input["casId"])
type ArtifactHandler struct {
	store ArtifactStore
}

func NewArtifactHandler(store ArtifactStore) *ArtifactHandler {
	return &ArtifactHandler{store: store}
}

func (h *ArtifactHandler) Handle(ctx context.Context, action model.ActionDefinition, input map[string]interface{}) ActionResult {
	impl := action.Implementation
	op, _ := impl["op"].(string)
	if op == "" {
		op = "put"
	}

	switch op {
	case "put":
		mediaType, _ := impl["mediaType"].(string)
		if mediaType == "" {
			mediaType = "application/json"
		}
		data, err := json.Marshal(input)
		if err != nil {
			return Failf("invalid_implementation", false, "marshaling artifact input: %v", err)
		}
		casID, err := h.store.Put(ctx, data, mediaType)
		if err != nil {
			return Failf("artifact_store_error", true, "putting artifact: %v", err)
		}
		return ActionResult{Success: true, Output: map[string]interface{}{"casId": casID, "sizeBytes": float64(len(data))}}

	case "get":
		casID, _ := impl["casId"].(string)
		if casID == "" {
			casID, _ = input["casId"].(string)
		}
		if casID == "" {
			return Failf("invalid_implementation", false, "artifact get requires casId")
		}
		data, err := h.store.Get(ctx, casID)
		if err != nil {
			return Failf("artifact_not_found", false, "getting artifact %s: %v", casID, err)
		}
		var parsed interface{}
		if err := json.Unmarshal(data, &parsed); err != nil {
			parsed = string(data)
		}
		return ActionResult{Success: true, Output: map[string]interface{}{"casId": casID, "content": parsed}}

	default:
		return Failf("invalid_implementation", false, "artifact action has unknown op %q", op)
	}
}

// casIDFor mirrors the teacher's sha256-based blob addressing: the same
// "sha256:<hex>" id that internal/store/memstore and
// internal/store/redisstore compute in their own Put. It is unexported;
// only this package's tests call it.
func casIDFor(data []byte) string {
	return fmt.Sprintf("sha256:%x", sha256.Sum256(data))
}
