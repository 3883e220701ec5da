package dispatcher

import (
	"context"
	"errors"
	"math"
	"sort"

	"github.com/lyzr/flowctl/internal/model"
)

var errNotNumeric = errors.New("vector elements must be numeric")

// VectorRecord is one entry in a VectorIndex: an embedding plus whatever
// metadata the workflow wants returned alongside a match.
type VectorRecord struct {
	ID       string
	Vector   []float64
	Metadata map[string]interface{}
}

// VectorIndex is the minimal similarity-search surface the `vector` action
// kind needs. No pack example wires a vector-database client (pgvector
// appears only inside jordigilh-kubernaut's test suites, never as a
// library a component imports), so this is a small in-process index rather
// than a third-party client — see DESIGN.md.
type VectorIndex interface {
	Upsert(ctx context.Context, rec VectorRecord) error
	Query(ctx context.Context, vector []float64, topK int) ([]VectorRecord, error)
}

// VectorHandler implements the `vector` action kind: upsert adds or
// replaces an embedding record, query returns the topK nearest by cosine
// similarity.
//
// implementation shape:
//
//	op: string       "upsert" | "query" (default "query")
//	topK: number     query only, default 5
type VectorHandler struct {
	index VectorIndex
}

func NewVectorHandler(index VectorIndex) *VectorHandler {
	return &VectorHandler{index: index}
}

func (h *VectorHandler) Handle(ctx context.Context, action model.ActionDefinition, input map[string]interface{}) ActionResult {
	impl := action.Implementation
	op, _ := impl["op"].(string)
	if op == "" {
		op = "query"
	}

	vector, err := toFloatSlice(input["vector"])
	if err != nil {
		return Failf("invalid_implementation", false, "vector action: %v", err)
	}

	switch op {
	case "upsert":
		id, _ := input["id"].(string)
		if id == "" {
			return Failf("invalid_implementation", false, "vector upsert requires input.id")
		}
		metadata, _ := input["metadata"].(map[string]interface{})
		if err := h.index.Upsert(ctx, VectorRecord{ID: id, Vector: vector, Metadata: metadata}); err != nil {
			return Failf("vector_store_error", true, "upserting vector %s: %v", id, err)
		}
		return ActionResult{Success: true, Output: map[string]interface{}{"id": id}}

	case "query":
		topK := 5
		if t, ok := impl["topK"].(float64); ok && t > 0 {
			topK = int(t)
		}
		matches, err := h.index.Query(ctx, vector, topK)
		if err != nil {
			return Failf("vector_store_error", true, "querying vector index: %v", err)
		}
		results := make([]interface{}, 0, len(matches))
		for _, m := range matches {
			results = append(results, map[string]interface{}{"id": m.ID, "metadata": m.Metadata})
		}
		return ActionResult{Success: true, Output: map[string]interface{}{"matches": results}}

	default:
		return Failf("invalid_implementation", false, "vector action has unknown op %q", op)
	}
}

func toFloatSlice(v interface{}) ([]float64, error) {
	raw, ok := v.([]interface{})
	if !ok {
		return nil, nil
	}
	out := make([]float64, len(raw))
	for i, e := range raw {
		f, ok := e.(float64)
		if !ok {
			return nil, errNotNumeric
		}
		out[i] = f
	}
	return out, nil
}

// MemVectorIndex is a brute-force in-memory VectorIndex, suitable for
// tests and small deployments.
type MemVectorIndex struct {
	records map[string]VectorRecord
}

func NewMemVectorIndex() *MemVectorIndex {
	return &MemVectorIndex{records: map[string]VectorRecord{}}
}

func (idx *MemVectorIndex) Upsert(_ context.Context, rec VectorRecord) error {
	idx.records[rec.ID] = rec
	return nil
}

func (idx *MemVectorIndex) Query(_ context.Context, vector []float64, topK int) ([]VectorRecord, error) {
	type scored struct {
		rec   VectorRecord
		score float64
	}
	all := make([]scored, 0, len(idx.records))
	for _, rec := range idx.records {
		all = append(all, scored{rec: rec, score: cosineSimilarity(vector, rec.Vector)})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].score > all[j].score })
	if topK > len(all) {
		topK = len(all)
	}
	out := make([]VectorRecord, topK)
	for i := 0; i < topK; i++ {
		out[i] = all[i].rec
	}
	return out, nil
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
