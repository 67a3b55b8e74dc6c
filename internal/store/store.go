package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/callrecon/internal/call"
	"github.com/roach88/callrecon/internal/ledger"
	"github.com/roach88/callrecon/internal/window"
)

// Section keys.
const (
	SectionRecords   = "records"
	SectionIndices   = "processed_indices"
	SectionSent      = "sent_records"
	SectionAnswers   = "processed_answers"
	SectionRecent    = "recent_calls"
	SectionStats     = "stats"
	SectionWatermark = "record_watermark"
)

// Sections lists every section key in write order.
var Sections = []string{
	SectionRecords,
	SectionIndices,
	SectionSent,
	SectionAnswers,
	SectionRecent,
	SectionStats,
	SectionWatermark,
}

// ErrCorrupt marks persisted state that cannot be decoded.
var ErrCorrupt = errors.New("corrupt state")

// Limits bounds persisted state.
type Limits struct {
	Records      int
	Indices      int
	Sent         int
	Answers      int
	RecordMaxAge time.Duration
}

// DefaultLimits returns the standard caps.
func DefaultLimits() Limits {
	return Limits{
		Records:      100,
		Indices:      ledger.DefaultIndexCapacity,
		Sent:         ledger.DefaultSentCapacity,
		Answers:      ledger.DefaultAnswerCapacity,
		RecordMaxAge: 7 * 24 * time.Hour,
	}
}

// Ledger returns the ledger capacities implied by the limits.
func (l Limits) Ledger() ledger.Capacities {
	return ledger.Capacities{Indices: l.Indices, Sent: l.Sent, Answers: l.Answers}
}

// Stats are delivery counters carried across runs.
type Stats struct {
	Delivered      int       `json:"delivered"`
	Updated        int       `json:"updated"`
	Failed         int       `json:"failed"`
	LastDeliveryAt time.Time `json:"last_delivery_at,omitempty"`
}

// State is the full persisted engine state.
type State struct {
	Records   []call.Record
	Ledger    ledger.Snapshot
	Recent    map[string][]window.Entry
	Stats     Stats
	Watermark time.Time
}

// LoadReport lists sections that were unreadable and replaced with empty.
type LoadReport struct {
	Corrupt []string
}

// Store reads and writes State sections through a Backend.
type Store struct {
	backend Backend
}

// New wraps a backend.
func New(b Backend) *Store {
	return &Store{backend: b}
}

// Open opens the backend named by dsn.
func Open(dsn string) (*Store, error) {
	b, err := OpenBackend(dsn)
	if err != nil {
		return nil, err
	}
	return New(b), nil
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// Load reads every section. Missing sections are empty; unreadable ones
// are logged, reported and treated as empty. Load never fails.
func (s *Store) Load(ctx context.Context) (State, LoadReport) {
	var (
		st     State
		report LoadReport
	)

	targets := map[string]any{
		SectionRecords:   &st.Records,
		SectionIndices:   &st.Ledger.Indices,
		SectionSent:      &st.Ledger.Sent,
		SectionAnswers:   &st.Ledger.Answers,
		SectionRecent:    &st.Recent,
		SectionStats:     &st.Stats,
		SectionWatermark: &st.Watermark,
	}

	for _, section := range Sections {
		if err := s.loadSection(ctx, section, targets[section]); err != nil {
			slog.Warn("state section unreadable, starting empty",
				"section", section,
				"error", err,
			)
			report.Corrupt = append(report.Corrupt, section)
		}
	}

	// A failed decode may leave partial data behind.
	for _, section := range report.Corrupt {
		switch section {
		case SectionRecords:
			st.Records = nil
		case SectionIndices:
			st.Ledger.Indices = nil
		case SectionSent:
			st.Ledger.Sent = nil
		case SectionAnswers:
			st.Ledger.Answers = nil
		case SectionRecent:
			st.Recent = nil
		case SectionStats:
			st.Stats = Stats{}
		case SectionWatermark:
			st.Watermark = time.Time{}
		}
	}

	return st, report
}

func (s *Store) loadSection(ctx context.Context, section string, target any) error {
	data, ok, err := s.backend.Get(ctx, section)
	if err != nil {
		return err
	}
	if !ok || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, section, err)
	}
	return nil
}

// Save writes every section. The first failing write aborts and is returned.
func (s *Store) Save(ctx context.Context, st State) error {
	values := map[string]any{
		SectionRecords:   st.Records,
		SectionIndices:   st.Ledger.Indices,
		SectionSent:      st.Ledger.Sent,
		SectionAnswers:   st.Ledger.Answers,
		SectionRecent:    st.Recent,
		SectionStats:     st.Stats,
		SectionWatermark: st.Watermark,
	}
	for _, section := range Sections {
		if err := s.saveSection(ctx, section, values[section]); err != nil {
			return err
		}
	}
	return nil
}

// SaveStats writes only the stats section.
func (s *Store) SaveStats(ctx context.Context, stats Stats) error {
	return s.saveSection(ctx, SectionStats, stats)
}

func (s *Store) saveSection(ctx context.Context, section string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", section, err)
	}
	if err := s.backend.Put(ctx, section, data); err != nil {
		return fmt.Errorf("save %s: %w", section, err)
	}
	return nil
}

// Reset deletes every section, records included.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.backend.Delete(ctx, Sections...); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}
