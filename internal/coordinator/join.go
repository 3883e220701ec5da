package coordinator

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/lyzr/flowctl/internal/model"
)

// joinRecord accumulates arrivals for one (transition, joinKey) pair.
// arrivals is keyed by upstream nodeRef, each holding one entry per
// spawn/foreach index that has arrived so far (index -1 for a
// non-fanned-out arrival).
type joinRecord struct {
	arrivals map[string]map[int]map[string]interface{}
	fired    bool
}

// joinTableKey identifies a join by the transition it guards (identity,
// since Transition has no stable id) and the joinKey derived from the
// shared fan-out ancestor.
func joinTableKey(t *model.Transition, joinKey string) string {
	return fmt.Sprintf("%p|%s", t, joinKey)
}

// joinKeyFor derives the open-question "joinKey" (§9b) as the id of the
// nearest common ancestor token when the completing token came from a
// fan-out (spawnCount/foreach): all fanned-out siblings share the same
// single parent token id, so that parent's id uniquely identifies "this
// occurrence" of the fan-out, keeping independent loop iterations or
// repeated calls to the same upstream node from mixing their joins. A
// token with no recorded fan-out ancestry (a plain 1:1 transition) gets a
// non-indexed, empty joinKey — there is only ever one occurrence to track.
func joinKeyFor(tok *model.Token) string {
	if tok.SourceTransition != nil && (tok.SourceTransition.SpawnCount > 1 || tok.SourceTransition.Foreach != "") && len(tok.ParentTokenIDs) > 0 {
		return tok.ParentTokenIDs[0]
	}
	return ""
}

// arriveAtJoin records child's arrival at a synchronization transition and
// reports whether the join fires on this arrival. On fire, it returns a
// single aggregated child token in place of the one-per-branch child
// passed in: if the transition's waitFor names one upstream nodeRef, the
// aggregate is `{ input: [outputs...] }` ordered by spawn/foreach index
// (§8 scenario 3's "deterministic order" requirement, which arrival order
// alone cannot satisfy since branches complete concurrently); with
// multiple waitFor entries it is `{ input: { nodeRef: output, ... } }`.
// Arrivals after the join has already fired are discarded with a warning
// per §4.6.
func (c *Coordinator) arriveAtJoin(t *model.Transition, sourceTok *model.Token, child *model.Token) (bool, *model.Token) {
	joinKey := joinKeyFor(sourceTok)
	key := joinTableKey(t, joinKey)
	rec, ok := c.joins[key]
	if !ok {
		rec = &joinRecord{arrivals: make(map[string]map[int]map[string]interface{})}
		c.joins[key] = rec
	}
	if rec.fired {
		c.log.Warn("join arrival after fire, discarded", "transition", t.FromNodeRef+"->"+t.ToNodeRef, "nodeRef", sourceTok.NodeRef)
		return false, nil
	}

	idx := -1
	if sourceTok.SpawnIndex != nil {
		idx = *sourceTok.SpawnIndex
	}
	if rec.arrivals[sourceTok.NodeRef] == nil {
		rec.arrivals[sourceTok.NodeRef] = make(map[int]map[string]interface{})
	}
	rec.arrivals[sourceTok.NodeRef][idx] = asMap(sourceTok.Output)

	expected := 1
	if len(sourceTok.ParentTokenIDs) > 0 {
		if n, ok := c.fanoutTotals[sourceTok.ParentTokenIDs[0]]; ok {
			expected = n
		}
	}

	for _, nodeRef := range t.Synchronization.WaitFor {
		if len(rec.arrivals[nodeRef]) < expected {
			return false, nil
		}
	}

	rec.fired = true
	return true, c.buildJoinedToken(t, rec)
}

func (c *Coordinator) buildJoinedToken(t *model.Transition, rec *joinRecord) *model.Token {
	var input interface{}
	if len(t.Synchronization.WaitFor) == 1 {
		nodeRef := t.Synchronization.WaitFor[0]
		input = orderedOutputs(rec.arrivals[nodeRef])
	} else {
		agg := make(map[string]interface{}, len(t.Synchronization.WaitFor))
		for _, nodeRef := range t.Synchronization.WaitFor {
			outs := orderedOutputs(rec.arrivals[nodeRef])
			if len(outs) == 1 {
				agg[nodeRef] = outs[0]
			} else {
				agg[nodeRef] = outs
			}
		}
		input = agg
	}

	return &model.Token{
		TokenID:          uuid.NewString(),
		RunID:            c.runID,
		NodeRef:          t.ToNodeRef,
		Status:           model.TokenPending,
		Context:          map[string]interface{}{"input": input},
		SourceTransition: t,
	}
}

func orderedOutputs(byIndex map[int]map[string]interface{}) []interface{} {
	indices := make([]int, 0, len(byIndex))
	for i := range byIndex {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	out := make([]interface{}, 0, len(indices))
	for _, i := range indices {
		out = append(out, byIndex[i])
	}
	return out
}
