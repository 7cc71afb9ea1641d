package hmm

import (
	"context"
	"fmt"
	"math"
	"slices"
)

// Trellis holds the candidate levels of one decoding run. Entries live in a
// single arena indexed by EntryID, levels hold ordered handles into it and the
// backtracking table is addressed by the same handles.
type Trellis struct {
	observations []Observation
	entries      []Entry
	levels       [][]EntryID
	back         []EntryID
	rowSums      []float64
	next         EntryID
}

func newTrellis(observations []Observation) *Trellis {
	return &Trellis{
		observations: observations,
		levels:       make([][]EntryID, 0, len(observations)),
	}
}

// add issues the next id and appends a fresh entry to the given level.
func (t *Trellis) add(level int, c Candidate, emission float64) EntryID {
	for len(t.levels) <= level {
		t.levels = append(t.levels, nil)
	}
	id := t.next
	t.next++
	t.entries = append(t.entries, Entry{
		ID:        id,
		Level:     level,
		Candidate: c,
		Emission:  emission,
		LogTotal:  math.Inf(-1),
	})
	t.back = append(t.back, unvisited)
	t.rowSums = append(t.rowSums, 0)
	t.levels[level] = append(t.levels[level], id)
	return id
}

// Levels returns the number of trellis levels.
func (t *Trellis) Levels() int { return len(t.levels) }

// Len returns the number of entries across all levels.
func (t *Trellis) Len() int { return len(t.entries) }

// Level returns the entry handles of level i in scan order.
func (t *Trellis) Level(i int) []EntryID { return slices.Clone(t.levels[i]) }

// Entry returns a copy of the entry with the given id.
func (t *Trellis) Entry(id EntryID) Entry {
	e := t.entries[id]
	e.Transitions = slices.Clone(e.Transitions)
	return e
}

// Predecessor returns the backtracking pointer of id. The boolean is false when
// the decoder never assigned one.
func (t *Trellis) Predecessor(id EntryID) (EntryID, bool) {
	p := t.back[id]
	return p, p != unvisited
}

// RowSum returns the sum of the transition probabilities leaving id.
func (t *Trellis) RowSum(id EntryID) float64 { return t.rowSums[id] }

// Seed sets the starting probabilities of the first level: the total
// probability of every entry equals its emission and it has no predecessor.
func (t *Trellis) Seed(p Progress) {
	if len(t.levels) == 0 {
		return
	}
	first := t.levels[0]
	p.Init(len(first))
	for _, id := range first {
		e := &t.entries[id]
		e.Total = e.Emission
		e.LogTotal = math.Log(e.Emission)
		t.back[id] = NoPredecessor
		p.Advance()
	}
}

// sumRows accumulates the transition probabilities recorded in level i per
// previous entry.
func (t *Trellis) sumRows(i int) {
	for _, id := range t.levels[i] {
		for _, tr := range t.entries[id].Transitions {
			t.rowSums[tr.From] += tr.Probability
		}
	}
}

// normalizeRows turns the transitions into level i into a right stochastic matrix.
func (t *Trellis) normalizeRows(i int) {
	for _, id := range t.levels[i] {
		trs := t.entries[id].Transitions
		for k := range trs {
			if sum := t.rowSums[trs[k].From]; sum > 0 {
				trs[k].Probability /= sum
			}
		}
	}
}

// Decode runs the forward recurrence. Totals are compared by their logarithm
// so long trajectories do not underflow. For every entry the predecessor giving
// the strictly greatest total wins, so on exact ties the first one scanned is
// kept. Entries without any viable transition keep a zero total and no pointer.
func (t *Trellis) Decode(ctx context.Context, p Progress) error {
	p.Init(len(t.levels))
	for i, level := range t.levels {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i != 0 {
			for _, id := range level {
				e := &t.entries[id]
				logEmission := math.Log(e.Emission)
				for _, tr := range e.Transitions {
					prev := &t.entries[tr.From]
					logTotal := math.Log(tr.Probability) + logEmission + prev.LogTotal
					if logTotal > e.LogTotal {
						e.LogTotal = logTotal
						e.Total = tr.Probability * e.Emission * prev.Total
						e.Transition = tr.Probability
						t.back[id] = tr.From
					}
				}
			}
		}
		p.Advance()
	}
	return nil
}

// ViterbiPath walks the backtracking pointers from the best final entry. The
// final scan uses >= so the last of several equal maxima is chosen.
func (t *Trellis) ViterbiPath() (Path, error) {
	if len(t.levels) == 0 {
		return nil, fmt.Errorf("%w: trellis has no levels", ErrEmptyPath)
	}
	last := len(t.levels) - 1

	best := unvisited
	highest := math.Inf(-1)
	for _, id := range t.levels[last] {
		if logTotal := t.entries[id].LogTotal; logTotal >= highest {
			highest = logTotal
			best = id
		}
	}
	if best == unvisited {
		return nil, fmt.Errorf("%w: final level is empty", ErrEmptyPath)
	}
	if math.IsInf(highest, -1) {
		return nil, fmt.Errorf("%w: every final total probability is zero", ErrEmptyPath)
	}

	path := make(Path, 0, len(t.levels))
	level := last
	id := best
	for {
		e := &t.entries[id]
		path = append(path, PathRecord{
			Entry:       id,
			Candidate:   e.Candidate,
			Total:       e.Total,
			LogTotal:    e.LogTotal,
			Emission:    e.Emission,
			Transition:  e.Transition,
			Observation: level,
		})
		level--
		prev := t.back[id]
		if prev == NoPredecessor || prev == unvisited || level < 0 {
			break
		}
		id = prev
	}
	slices.Reverse(path)

	if len(path) != len(t.levels) {
		return nil, fmt.Errorf("%w: backtracking stopped at level %d", ErrEmptyPath, level+1)
	}
	return path, nil
}

// Confidence returns the share of the path's final total in the sum of all
// final totals, clamped to [0, 1]. It is computed relative to the best total
// so it stays defined when the totals themselves underflow.
func (t *Trellis) Confidence(path Path) float64 {
	if len(path) == 0 || len(t.levels) == 0 {
		return 0
	}
	best := path[len(path)-1].LogTotal
	if math.IsInf(best, -1) || math.IsNaN(best) {
		return 0
	}
	sum := 0.0
	for _, id := range t.levels[len(t.levels)-1] {
		sum += math.Exp(t.entries[id].LogTotal - best)
	}
	if sum <= 0 {
		return 0
	}
	confidence := 1 / sum

	// Clamp to [0, 1]
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return confidence
}
