package routing

import (
	"context"
	"testing"

	"kuanb/gosm-matcher/geom"
	"kuanb/gosm-matcher/hmm"
	"kuanb/gosm-matcher/osm"
	"kuanb/gosm-matcher/osm/osmtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func locate(t *testing.T, g *osm.OsmGraph, edge int64, offset float64) hmm.Location {
	t.Helper()
	way := g.Way(edge)
	require.NotNil(t, way)
	return hmm.Location{
		Point:  geom.PointAt(way.Geometry, offset),
		EdgeID: edge,
		Offset: offset,
	}
}

func TestRoute_SameEdge(t *testing.T) {
	g := osmtest.GridGraph()
	r := NewRouter(g, 0)

	from, to := locate(t, g, 1, 20), locate(t, g, 1, 80)
	line, err := r.Route(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, line, 2)
	assert.InDelta(t, 60, geom.Length(line), 1e-6)
	assert.Equal(t, from.Point, line[0])
	assert.Equal(t, to.Point, line[1])

	back, err := r.Route(context.Background(), to, from)
	require.NoError(t, err)
	assert.Equal(t, from.Point, back[len(back)-1])
}

func TestRoute_AcrossGrid(t *testing.T) {
	g := osmtest.GridGraph()
	r := NewRouter(g, 0)
	spacing := g.Way(1).LengthMeters

	// middle of row 0 west edge to middle of row 2 east edge, through column 1
	from := locate(t, g, 1, spacing/2)
	to := locate(t, g, 6, g.Way(6).LengthMeters/2)

	line, err := r.Route(context.Background(), from, to)
	require.NoError(t, err)
	assert.InDelta(t, spacing/2+2*spacing+spacing/2, geom.Length(line), 1)
	assert.Equal(t, from.Point, line[0])
	assert.Equal(t, to.Point, line[len(line)-1])
	assert.Contains(t, line, g.Nodes[2].Point())
	assert.Contains(t, line, g.Nodes[8].Point())
}

func TestRoute_IntoDeadEndSpur(t *testing.T) {
	g := osmtest.GridGraph()
	r := NewRouter(g, 0)

	from := locate(t, g, 11, 10)
	to := locate(t, g, 13, g.Way(13).LengthMeters-5)
	line, err := r.Route(context.Background(), from, to)
	require.NoError(t, err)
	assert.Contains(t, line, g.Nodes[9].Point())
	assert.Equal(t, to.Point, line[len(line)-1])

	again, err := r.Route(context.Background(), from, to)
	require.NoError(t, err)
	assert.Equal(t, line, again)
}

func TestRoute_Errors(t *testing.T) {
	g := osmtest.GridGraph()
	r := NewRouter(g, 1)

	_, err := r.Route(context.Background(), locate(t, g, 1, 10), locate(t, g, 14, 10))
	assert.ErrorIs(t, err, hmm.ErrNoRoute)

	_, err = r.Route(context.Background(), hmm.Location{EdgeID: 999}, locate(t, g, 1, 10))
	assert.ErrorIs(t, err, ErrUnknownEdge)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Route(ctx, locate(t, g, 1, 10), locate(t, g, 6, 10))
	assert.ErrorIs(t, err, context.Canceled)
}
