// Package store persists match runs in a sqlite database.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/twpayne/go-polyline"
	_ "modernc.org/sqlite"

	"kuanb/gosm-matcher/hmm"
)

// ErrRunNotFound is returned when no run has the requested id.
var ErrRunNotFound = errors.New("store: run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	created_at    INTEGER NOT NULL,
	observations  INTEGER NOT NULL,
	confidence    REAL NOT NULL,
	materialized  INTEGER NOT NULL,
	params        TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS path_vertices (
	run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	observation  INTEGER NOT NULL,
	edge_id      INTEGER NOT NULL,
	lon          REAL NOT NULL,
	lat          REAL NOT NULL,
	total        REAL NOT NULL,
	log_total    REAL NOT NULL,
	emission     REAL NOT NULL,
	transition   REAL NOT NULL,
	PRIMARY KEY (run_id, observation)
);
CREATE TABLE IF NOT EXISTS segments (
	run_id            TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	idx               INTEGER NOT NULL,
	start_observation INTEGER NOT NULL,
	end_observation   INTEGER NOT NULL,
	start_total       REAL NOT NULL,
	end_total         REAL NOT NULL,
	start_emission    REAL NOT NULL,
	end_emission      REAL NOT NULL,
	start_transition  REAL NOT NULL,
	end_transition    REAL NOT NULL,
	geometry          TEXT NOT NULL,
	PRIMARY KEY (run_id, idx)
);
`

// Run is one persisted match run
type Run struct {
	ID           string
	CreatedAt    time.Time
	Observations int
	Confidence   float64
	Materialized bool
	Params       hmm.Params
	Path         hmm.Path
	Segments     []hmm.Segment
}

// Store wraps a sqlite database
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the sqlite database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun writes a run with its path and segments in one transaction.
func (s *Store) SaveRun(ctx context.Context, run *Run) (err error) {
	params, err := json.Marshal(paramsRecord{Sigma: run.Params.Sigma, My: run.Params.My, MaxDistance: run.Params.MaxDistance})
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, created_at, observations, confidence, materialized, params) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt.UnixMilli(), run.Observations, run.Confidence, run.Materialized, string(params))
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	for _, v := range run.Path {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO path_vertices (run_id, observation, edge_id, lon, lat, total, log_total, emission, transition) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, v.Observation, v.Candidate.EdgeID, v.Candidate.Point.Lon(), v.Candidate.Point.Lat(), v.Total, v.LogTotal, v.Emission, v.Transition)
		if err != nil {
			return fmt.Errorf("insert vertex %d of run %s: %w", v.Observation, run.ID, err)
		}
	}

	for _, seg := range run.Segments {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO segments (run_id, idx, start_observation, end_observation, start_total, end_total, start_emission, end_emission, start_transition, end_transition, geometry) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, seg.Index, seg.StartObservation, seg.EndObservation,
			seg.StartTotal, seg.EndTotal, seg.StartEmission, seg.EndEmission,
			seg.StartTransition, seg.EndTransition, encodeLineString(seg.Geometry))
		if err != nil {
			return fmt.Errorf("insert segment %d of run %s: %w", seg.Index, run.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun loads a run with its path and segments.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	var (
		run       = &Run{ID: id}
		createdAt int64
		params    string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at, observations, confidence, materialized, params FROM runs WHERE id = ?`, id).
		Scan(&createdAt, &run.Observations, &run.Confidence, &run.Materialized, &params)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query run %s: %w", id, err)
	}
	run.CreatedAt = time.UnixMilli(createdAt)

	var p paramsRecord
	if err := json.Unmarshal([]byte(params), &p); err != nil {
		return nil, fmt.Errorf("decode params of run %s: %w", id, err)
	}
	run.Params = hmm.Params{Sigma: p.Sigma, My: p.My, MaxDistance: p.MaxDistance}

	if run.Path, err = s.path(ctx, id); err != nil {
		return nil, err
	}
	if run.Segments, err = s.Segments(ctx, id); err != nil {
		return nil, err
	}
	return run, nil
}

func (s *Store) path(ctx context.Context, runID string) (hmm.Path, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT observation, edge_id, lon, lat, total, log_total, emission, transition FROM path_vertices WHERE run_id = ? ORDER BY observation`, runID)
	if err != nil {
		return nil, fmt.Errorf("query path of run %s: %w", runID, err)
	}
	defer rows.Close()

	var path hmm.Path
	for rows.Next() {
		var (
			v        hmm.PathRecord
			lon, lat float64
		)
		if err := rows.Scan(&v.Observation, &v.Candidate.EdgeID, &lon, &lat, &v.Total, &v.LogTotal, &v.Emission, &v.Transition); err != nil {
			return nil, fmt.Errorf("scan path vertex: %w", err)
		}
		v.Candidate.Point = orb.Point{lon, lat}
		v.Candidate.Observation = v.Observation
		path = append(path, v)
	}
	return path, rows.Err()
}

// Segments returns the stored segments of a run ordered by index. Geometries
// are decoded from polylines and carry their 1e-5 degree precision.
func (s *Store) Segments(ctx context.Context, runID string) ([]hmm.Segment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, start_observation, end_observation, start_total, end_total, start_emission, end_emission, start_transition, end_transition, geometry FROM segments WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("query segments of run %s: %w", runID, err)
	}
	defer rows.Close()

	var segments []hmm.Segment
	for rows.Next() {
		var (
			seg     hmm.Segment
			encoded string
		)
		err := rows.Scan(&seg.Index, &seg.StartObservation, &seg.EndObservation,
			&seg.StartTotal, &seg.EndTotal, &seg.StartEmission, &seg.EndEmission,
			&seg.StartTransition, &seg.EndTransition, &encoded)
		if err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		if seg.Geometry, err = decodeLineString(encoded); err != nil {
			return nil, fmt.Errorf("decode segment %d geometry: %w", seg.Index, err)
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

type paramsRecord struct {
	Sigma       float64 `json:"sigma"`
	My          float64 `json:"my"`
	MaxDistance float64 `json:"max_distance"`
}

// polylines store coordinates as lat, lon pairs
func encodeLineString(ls orb.LineString) string {
	coords := make([][]float64, len(ls))
	for i, p := range ls {
		coords[i] = []float64{p.Lat(), p.Lon()}
	}
	return string(polyline.EncodeCoords(coords))
}

func decodeLineString(s string) (orb.LineString, error) {
	coords, _, err := polyline.DecodeCoords([]byte(s))
	if err != nil {
		return nil, err
	}
	ls := make(orb.LineString, len(coords))
	for i, c := range coords {
		ls[i] = orb.Point{c[1], c[0]}
	}
	return ls, nil
}
