package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/lyzr/flowctl/internal/model"
)

// ApprovalStore persists pending human-approval requests so an external
// actor (an operator UI, a chat bot) can later resolve them. Idempotent:
// CreateApproval only creates the record on its first call for a given key,
// matching the teacher's SETNX-based approval-creation pattern.
type ApprovalStore interface {
	CreateApproval(ctx context.Context, key string, request map[string]interface{}) (created bool, err error)
}

// HumanHandler implements the `human` action kind: it records a pending
// approval request and suspends the token, to be resumed out-of-band when
// the approval is resolved (mirroring the teacher's two-stream HITL worker,
// collapsed here into a single synchronous "create and suspend" step — the
// coordinator, not this handler, owns waiting for the resolution).
//
// implementation shape:
//
//	message: string             shown to the approver; rendered from input by the caller if templated
//	timeoutMs: number           how long the token may wait before the run treats it as timed out
type HumanHandler struct {
	store          ApprovalStore
	defaultTimeout time.Duration
}

func NewHumanHandler(store ApprovalStore, defaultTimeout time.Duration) *HumanHandler {
	return &HumanHandler{store: store, defaultTimeout: defaultTimeout}
}

func (h *HumanHandler) Handle(ctx context.Context, action model.ActionDefinition, input map[string]interface{}) ActionResult {
	impl := action.Implementation

	runID, _ := input["_runId"].(string)
	tokenID, _ := input["_tokenId"].(string)
	if runID == "" || tokenID == "" {
		return Failf("invalid_implementation", false, "human action requires _runId and _tokenId in input")
	}
	key := fmt.Sprintf("human:%s:%s", runID, tokenID)

	message, _ := impl["message"].(string)
	timeoutMs := int64(h.defaultTimeout / time.Millisecond)
	if t, ok := impl["timeoutMs"].(float64); ok && t > 0 {
		timeoutMs = int64(t)
	}

	request := map[string]interface{}{
		"runId":   runID,
		"tokenId": tokenID,
		"message": message,
		"status":  "pending",
	}

	created, err := h.store.CreateApproval(ctx, key, request)
	if err != nil {
		return Failf("approval_store_error", true, "creating approval %s: %v", key, err)
	}
	if !created {
		// Already pending from a prior attempt; suspend again without
		// duplicating the request, matching the teacher's idempotency check.
	}

	return ActionResult{
		Success: true,
		Output:  map[string]interface{}{"approvalKey": key},
		Waiting: &Waiting{Kind: "human", Ref: key, TimeoutMs: timeoutMs},
	}
}
