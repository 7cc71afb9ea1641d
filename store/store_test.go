package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kuanb/gosm-matcher/hmm"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRun() *Run {
	a := hmm.Candidate{Location: hmm.Location{Point: orb.Point{0.0001, 0}, EdgeID: 1, Offset: 11.1}, Observation: 0}
	b := hmm.Candidate{Location: hmm.Location{Point: orb.Point{0.0015, 0}, EdgeID: 2, Offset: 55.6}, Observation: 1}
	return &Run{
		ID:           uuid.NewString(),
		CreatedAt:    time.UnixMilli(1700000000000),
		Observations: 2,
		Confidence:   0.75,
		Materialized: true,
		Params:       hmm.Params{Sigma: 4.07, MaxDistance: 35},
		Path: hmm.Path{
			{Entry: 0, Candidate: a, Total: 0.09, LogTotal: math.Log(0.09), Emission: 0.09, Observation: 0},
			{Entry: 3, Candidate: b, Total: 0, LogTotal: -812.5, Emission: 0.08, Transition: 0.5, Observation: 1},
		},
		Segments: []hmm.Segment{{
			Index:            1,
			StartTotal:       0.09,
			EndTotal:         0.004,
			StartEmission:    0.09,
			EndEmission:      0.08,
			EndTransition:    0.5,
			StartObservation: 0,
			EndObservation:   1,
			Geometry:         orb.LineString{{0.0001, 0}, {0.001, 0}, {0.0015, 0}},
		}},
	}
}

func TestSaveAndGetRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	run := sampleRun()
	require.NoError(t, s.SaveRun(ctx, run))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Observations, got.Observations)
	assert.Equal(t, run.Confidence, got.Confidence)
	assert.True(t, got.Materialized)
	assert.Equal(t, run.Params, got.Params)
	assert.True(t, run.CreatedAt.Equal(got.CreatedAt))

	require.Len(t, got.Path, 2)
	assert.Equal(t, int64(2), got.Path[1].Candidate.EdgeID)
	assert.Equal(t, 0.5, got.Path[1].Transition)
	assert.Zero(t, got.Path[1].Total)
	assert.Equal(t, -812.5, got.Path[1].LogTotal)

	require.Len(t, got.Segments, 1)
	seg := got.Segments[0]
	assert.Equal(t, 1, seg.Index)
	assert.Equal(t, 0.004, seg.EndTotal)
	require.Len(t, seg.Geometry, 3)
	for i, p := range run.Segments[0].Geometry {
		assert.InDelta(t, p.Lon(), seg.Geometry[i].Lon(), 1e-5)
		assert.InDelta(t, p.Lat(), seg.Geometry[i].Lat(), 1e-5)
	}
}

func TestSaveRun_DuplicateIDRollsBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	run := sampleRun()
	require.NoError(t, s.SaveRun(ctx, run))
	assert.Error(t, s.SaveRun(ctx, run))

	segments, err := s.Segments(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, segments, 1)
}

func TestGetRun_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestSaveRun_WithoutSegments(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	run := sampleRun()
	run.Materialized = false
	run.Segments = nil
	require.NoError(t, s.SaveRun(ctx, run))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.False(t, got.Materialized)
	assert.Empty(t, got.Segments)
	assert.Len(t, got.Path, 2)
}
