// Package sqlite persists engine output to a SQLite database.
//
// One process run maps to one row in runs; every event, track summary,
// label, photon and deposit is keyed by (run_id, event_id). Schema changes
// go through the embedded golang-migrate migrations.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/photonsim/internal/monitoring"
	"github.com/banshee-data/photonsim/internal/shower"
	"github.com/banshee-data/photonsim/internal/shower/hist"
)

// Sink writes events and histograms to SQLite. It implements shower.Sink.
type Sink struct {
	db     *sql.DB
	runID  uuid.UUID
	closed bool
}

// Options configures Open.
type Options struct {
	// ConfigJSON is stored on the run row for provenance. Optional.
	ConfigJSON []byte
	// RunID overrides the generated run identifier.
	RunID uuid.UUID
}

var _ shower.Sink = (*Sink)(nil)

// Open opens (creating if needed) the database at path, applies pending
// migrations and starts a new run.
func Open(ctx context.Context, path string, opts Options) (*Sink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// modernc sqlite serialises writers anyway; a single connection keeps
	// PRAGMAs applied to every statement.
	db.SetMaxOpenConns(1)

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}

	runID := opts.RunID
	if runID == uuid.Nil {
		runID = uuid.New()
	}
	var cfg any
	if len(opts.ConfigJSON) > 0 {
		cfg = string(opts.ConfigJSON)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_at, config_json) VALUES (?, ?, ?)`,
		runID.String(), time.Now().UTC(), cfg,
	); err != nil {
		db.Close()
		return nil, fmt.Errorf("insert run: %w", err)
	}

	monitoring.Logf("sqlite: run %s opened at %s", runID, path)
	return &Sink{db: db, runID: runID}, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	for _, p := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

// RunID returns the identifier of the run this sink writes to.
func (s *Sink) RunID() uuid.UUID { return s.runID }

// DB exposes the underlying handle for queries.
func (s *Sink) DB() *sql.DB { return s.db }

// WriteEvent stores one event and all its detail records in a single
// transaction.
func (s *Sink) WriteEvent(ctx context.Context, rec *shower.EventRecord) (err error) {
	if s.closed {
		return errors.New("sqlite sink closed")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin event %d: %w", rec.EventID, err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	run := s.runID.String()
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO events (run_id, event_id, primary_energy_mev, photon_count,
			deposit_count, total_deposit_mev, splits, label_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run, rec.EventID, rec.PrimaryEnergy, rec.PhotonCount,
		rec.DepositCount, rec.TotalDeposit, rec.Splits, rec.Labels.Len(),
	); err != nil {
		return fmt.Errorf("insert event %d: %w", rec.EventID, err)
	}

	for _, c := range shower.Categories {
		if n := rec.CategoryCounts[c]; n > 0 {
			if _, err = tx.ExecContext(ctx,
				`INSERT INTO event_category_counts (run_id, event_id, category, count) VALUES (?, ?, ?, ?)`,
				run, rec.EventID, c.String(), n,
			); err != nil {
				return fmt.Errorf("insert category count: %w", err)
			}
		}
	}

	if err = insertTracks(ctx, tx, run, rec); err != nil {
		return err
	}
	if err = insertLabels(ctx, tx, run, rec); err != nil {
		return err
	}
	if err = insertPhotons(ctx, tx, run, rec); err != nil {
		return err
	}
	if err = insertDeposits(ctx, tx, run, rec); err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE runs SET event_count = event_count + 1 WHERE run_id = ?`, run,
	); err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit event %d: %w", rec.EventID, err)
	}
	return nil
}

func insertTracks(ctx context.Context, tx *sql.Tx, run string, rec *shower.EventRecord) error {
	if len(rec.Tracks) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tracks (run_id, event_id, track_id, parent_track_id,
			category_parent_track_id, category, sub_id, particle_name, pdg_code,
			creator_process, x_mm, y_mm, z_mm, px_mev, py_mev, pz_mev,
			energy_mev, time_ns, needs_relabeling, relabeling_time_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare tracks: %w", err)
	}
	defer stmt.Close()

	for _, t := range rec.Tracks {
		if _, err := stmt.ExecContext(ctx,
			run, rec.EventID, t.TrackID, t.ParentTrackID,
			t.CategoryParentTrackID, t.Category.String(), t.SubID, t.ParticleName, t.PDGCode,
			t.CreatorProcess, t.Position.X, t.Position.Y, t.Position.Z,
			t.Momentum.X, t.Momentum.Y, t.Momentum.Z,
			t.Energy, t.Time, t.NeedsRelabeling, t.RelabelingTime,
		); err != nil {
			return fmt.Errorf("insert track %d: %w", t.TrackID, err)
		}
	}
	return nil
}

func insertLabels(ctx context.Context, tx *sql.Tx, run string, rec *shower.EventRecord) error {
	for i, l := range rec.Labels.Labels() {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO labels (run_id, event_id, label_index, genealogy, genealogy_length, photon_count)
			VALUES (?, ?, ?, ?, ?, ?)`,
			run, rec.EventID, i, formatGenealogy(l.Genealogy), len(l.Genealogy), len(l.PhotonIndices),
		); err != nil {
			return fmt.Errorf("insert label %d: %w", i, err)
		}
		for _, p := range l.PhotonIndices {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO label_photons (run_id, event_id, label_index, photon_index) VALUES (?, ?, ?, ?)`,
				run, rec.EventID, i, p,
			); err != nil {
				return fmt.Errorf("insert label photon %d: %w", p, err)
			}
		}
	}
	return nil
}

func insertPhotons(ctx context.Context, tx *sql.Tx, run string, rec *shower.EventRecord) error {
	if len(rec.Photons) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO photons (run_id, event_id, photon_index, track_id, parent_track_id,
			parent_particle, x_mm, y_mm, z_mm, dir_x, dir_y, dir_z,
			time_ns, wavelength_nm, process, label_index)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare photons: %w", err)
	}
	defer stmt.Close()

	for _, p := range rec.Photons {
		if _, err := stmt.ExecContext(ctx,
			run, rec.EventID, p.Index, p.TrackID, p.ParentTrackID,
			p.ParentParticle, p.Position.X, p.Position.Y, p.Position.Z,
			p.Direction.X, p.Direction.Y, p.Direction.Z,
			p.Time, p.Wavelength, p.Process, p.LabelIndex,
		); err != nil {
			return fmt.Errorf("insert photon %d: %w", p.Index, err)
		}
	}
	return nil
}

func insertDeposits(ctx context.Context, tx *sql.Tx, run string, rec *shower.EventRecord) error {
	if len(rec.Deposits) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO energy_deposits (run_id, event_id, deposit_index, x_mm, y_mm, z_mm,
			energy_mev, time_ns, particle_name, track_id, parent_track_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare deposits: %w", err)
	}
	defer stmt.Close()

	for i, d := range rec.Deposits {
		if _, err := stmt.ExecContext(ctx,
			run, rec.EventID, i, d.Position.X, d.Position.Y, d.Position.Z,
			d.Energy, d.Time, d.ParticleName, d.TrackID, d.ParentTrackID,
		); err != nil {
			return fmt.Errorf("insert deposit %d: %w", i, err)
		}
	}
	return nil
}

// WriteHistograms stores the run-level histograms, replacing any earlier
// write for this run.
func (s *Sink) WriteHistograms(ctx context.Context, set *hist.Set) error {
	if s.closed {
		return errors.New("sqlite sink closed")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin histograms: %w", err)
	}
	defer tx.Rollback()

	run := s.runID.String()
	for _, h := range set.Hists2D() {
		nx, ny := h.Dims()
		if err := upsertHistogram(ctx, tx, run, h.Name, h.XLabel, h.YLabel, nx, ny,
			h.XEdges, h.YEdges, h.Counts, h.Outside, 0, h.Entries); err != nil {
			return err
		}
	}
	w := set.Wavelength
	if err := upsertHistogram(ctx, tx, run, w.Name, w.XLabel, "", len(w.Counts), 0,
		w.Edges, nil, w.Counts, w.Underflow, w.Overflow, w.Entries); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit histograms: %w", err)
	}
	return nil
}

func upsertHistogram(ctx context.Context, tx *sql.Tx, run, name, xlabel, ylabel string,
	nx, ny int, xedges, yedges, counts []float64, under, over float64, entries int) error {
	xj, err := json.Marshal(xedges)
	if err != nil {
		return fmt.Errorf("encode %s edges: %w", name, err)
	}
	var yj any
	if yedges != nil {
		b, err := json.Marshal(yedges)
		if err != nil {
			return fmt.Errorf("encode %s edges: %w", name, err)
		}
		yj = string(b)
	}
	cj, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("encode %s counts: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO histograms (run_id, name, x_label, y_label, nx, ny,
			x_edges, y_edges, counts, underflow, overflow, entries)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run, name, xlabel, ylabel, nx, ny, string(xj), yj, string(cj), under, over, entries,
	); err != nil {
		return fmt.Errorf("insert histogram %s: %w", name, err)
	}
	return nil
}

// Close marks the run finished and closes the database. Safe to call twice.
func (s *Sink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	_, uerr := s.db.Exec(`UPDATE runs SET finished_at = ? WHERE run_id = ?`,
		time.Now().UTC(), s.runID.String())
	if uerr != nil {
		uerr = fmt.Errorf("finish run: %w", uerr)
	}
	return errors.Join(uerr, s.db.Close())
}

func formatGenealogy(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

func parseGenealogy(s string) ([]int, error) {
	if s == "" {
		return []int{}, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, len(parts))
	for i, p := range parts {
		id, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("parse genealogy %q: %w", s, err)
		}
		out[i] = id
	}
	return out, nil
}
