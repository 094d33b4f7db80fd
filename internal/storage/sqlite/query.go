package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/banshee-data/photonsim/internal/shower"
)

// EventSummary is one row of the events table plus its category counts.
type EventSummary struct {
	EventID        int
	PrimaryEnergy  float64
	PhotonCount    int
	DepositCount   int
	TotalDeposit   float64
	Splits         int
	LabelCount     int
	CategoryCounts map[shower.Category]int
}

// Events returns the summaries of this run's events ordered by event ID.
func (s *Sink) Events(ctx context.Context) ([]EventSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, primary_energy_mev, photon_count, deposit_count,
			total_deposit_mev, splits, label_count
		FROM events WHERE run_id = ? ORDER BY event_id`, s.runID.String())
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []EventSummary
	for rows.Next() {
		var e EventSummary
		if err := rows.Scan(&e.EventID, &e.PrimaryEnergy, &e.PhotonCount, &e.DepositCount,
			&e.TotalDeposit, &e.Splits, &e.LabelCount); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.CategoryCounts = make(map[shower.Category]int)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		if err := s.loadCategoryCounts(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Sink) loadCategoryCounts(ctx context.Context, e *EventSummary) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category, count FROM event_category_counts WHERE run_id = ? AND event_id = ?`,
		s.runID.String(), e.EventID)
	if err != nil {
		return fmt.Errorf("query category counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return fmt.Errorf("scan category count: %w", err)
		}
		var c shower.Category
		if err := c.UnmarshalText([]byte(name)); err != nil {
			return err
		}
		e.CategoryCounts[c] = n
	}
	return rows.Err()
}

// Labels returns the labels of one event in label-index order.
func (s *Sink) Labels(ctx context.Context, eventID int) ([]shower.Label, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT label_index, genealogy FROM labels
		WHERE run_id = ? AND event_id = ? ORDER BY label_index`,
		s.runID.String(), eventID)
	if err != nil {
		return nil, fmt.Errorf("query labels: %w", err)
	}
	defer rows.Close()

	var out []shower.Label
	for rows.Next() {
		var idx int
		var g string
		if err := rows.Scan(&idx, &g); err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		genealogy, err := parseGenealogy(g)
		if err != nil {
			return nil, err
		}
		out = append(out, shower.Label{Genealogy: genealogy})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prows, err := s.db.QueryContext(ctx, `
		SELECT label_index, photon_index FROM label_photons
		WHERE run_id = ? AND event_id = ? ORDER BY photon_index`,
		s.runID.String(), eventID)
	if err != nil {
		return nil, fmt.Errorf("query label photons: %w", err)
	}
	defer prows.Close()
	for prows.Next() {
		var li, pi int
		if err := prows.Scan(&li, &pi); err != nil {
			return nil, fmt.Errorf("scan label photon: %w", err)
		}
		if li < 0 || li >= len(out) {
			return nil, fmt.Errorf("label photon %d references missing label %d", pi, li)
		}
		out[li].PhotonIndices = append(out[li].PhotonIndices, pi)
	}
	return out, prows.Err()
}

// Tracks returns the persisted track summaries of one event by track ID.
func (s *Sink) Tracks(ctx context.Context, eventID int) ([]shower.TrackSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT track_id, parent_track_id, category_parent_track_id, category, sub_id,
			particle_name, pdg_code, creator_process, energy_mev, time_ns,
			needs_relabeling, relabeling_time_ns
		FROM tracks WHERE run_id = ? AND event_id = ? ORDER BY track_id`,
		s.runID.String(), eventID)
	if err != nil {
		return nil, fmt.Errorf("query tracks: %w", err)
	}
	defer rows.Close()

	var out []shower.TrackSummary
	for rows.Next() {
		var t shower.TrackSummary
		var cat string
		var proc sql.NullString
		if err := rows.Scan(&t.TrackID, &t.ParentTrackID, &t.CategoryParentTrackID, &cat, &t.SubID,
			&t.ParticleName, &t.PDGCode, &proc, &t.Energy, &t.Time,
			&t.NeedsRelabeling, &t.RelabelingTime); err != nil {
			return nil, fmt.Errorf("scan track: %w", err)
		}
		if err := t.Category.UnmarshalText([]byte(cat)); err != nil {
			return nil, err
		}
		t.CreatorProcess = proc.String
		out = append(out, t)
	}
	return out, rows.Err()
}

// CountRows returns the number of rows of table belonging to this run.
// table must be one of the sink's own tables.
func (s *Sink) CountRows(ctx context.Context, table string) (int, error) {
	switch table {
	case "events", "tracks", "labels", "label_photons", "photons", "energy_deposits", "histograms":
	default:
		return 0, fmt.Errorf("unknown table %q", table)
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+table+" WHERE run_id = ?", s.runID.String()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// StoredHistogram is a histogram row decoded back into slices.
type StoredHistogram struct {
	Name    string
	XLabel  string
	YLabel  string
	NX, NY  int
	XEdges  []float64
	YEdges  []float64
	Counts  []float64
	Entries int
}

// Histogram loads the named run-level histogram.
func (s *Sink) Histogram(ctx context.Context, name string) (*StoredHistogram, error) {
	var h StoredHistogram
	var ylabel, yedges sql.NullString
	var xedges, counts string
	err := s.db.QueryRowContext(ctx, `
		SELECT name, x_label, y_label, nx, ny, x_edges, y_edges, counts, entries
		FROM histograms WHERE run_id = ? AND name = ?`, s.runID.String(), name,
	).Scan(&h.Name, &h.XLabel, &ylabel, &h.NX, &h.NY, &xedges, &yedges, &counts, &h.Entries)
	if err != nil {
		return nil, fmt.Errorf("load histogram %s: %w", name, err)
	}
	h.YLabel = ylabel.String
	if err := json.Unmarshal([]byte(xedges), &h.XEdges); err != nil {
		return nil, fmt.Errorf("decode %s x edges: %w", name, err)
	}
	if yedges.Valid {
		if err := json.Unmarshal([]byte(yedges.String), &h.YEdges); err != nil {
			return nil, fmt.Errorf("decode %s y edges: %w", name, err)
		}
	}
	if err := json.Unmarshal([]byte(counts), &h.Counts); err != nil {
		return nil, fmt.Errorf("decode %s counts: %w", name, err)
	}
	return &h, nil
}
