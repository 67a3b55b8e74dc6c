package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/roach88/callrecon/internal/call"
	"github.com/roach88/callrecon/internal/delivery"
	"github.com/roach88/callrecon/internal/ledger"
	"github.com/roach88/callrecon/internal/store"
)

// Summary counts what one observation did.
type Summary struct {
	Rows          int
	Events        int
	Skipped       int
	ParseFailures int

	Created      int
	Reclassified int

	DuplicateIndex  int
	DuplicateRecord int
	DuplicateAnswer int

	// Expired counts missed calls older than the retained history.
	Expired int
}

// HandleObservation classifies and reconciles one snapshot of rows.
// Events are applied oldest first, so a batch holding both a missed call
// and its later answer reconciles regardless of render order.
func (e *Engine) HandleObservation(ctx context.Context, rows []call.Row) Summary {
	sum := Summary{Rows: len(rows)}

	batch := e.classifier.ClassifyBatch(rows)
	sum.Skipped = batch.Skipped
	for _, err := range batch.Failures {
		sum.ParseFailures++
		e.fail(&Failure{Kind: ParseFailure, Message: "row dropped", Err: err})
	}
	e.parseFailures += sum.ParseFailures

	events := batch.Events
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	sum.Events = len(events)

	changed := false
	for _, ev := range events {
		switch ev.Kind {
		case call.KindMissed:
			changed = e.handleMissed(ctx, ev, &sum) || changed
		case call.KindAnswered:
			changed = e.handleAnswered(ctx, ev, &sum) || changed
		}
	}

	if e.overCapacity() {
		slog.Debug("state over capacity, evicting", "failure", string(ResourceExhaustion))
		if e.evict() > 0 {
			changed = true
		}
	}
	if changed {
		e.persist(ctx)
	}

	e.lastObservedAt = e.now()
	e.publish()

	level := slog.LevelDebug
	if sum.Created+sum.Reclassified > 0 {
		level = slog.LevelInfo
	}
	slog.Log(ctx, level, "observation reconciled",
		"rows", sum.Rows,
		"events", sum.Events,
		"created", sum.Created,
		"reclassified", sum.Reclassified,
		"parse_failures", sum.ParseFailures,
		"duplicates", sum.DuplicateIndex+sum.DuplicateRecord+sum.DuplicateAnswer,
		"expired", sum.Expired,
	)

	return sum
}

// handleMissed creates a pending record for a new missed call. It reports
// whether state changed.
func (e *Engine) handleMissed(ctx context.Context, ev call.Event, sum *Summary) bool {
	if !e.ledger.IsNewIndex(ev.SourceIndex) {
		e.ledger.TouchIndex(ev.SourceIndex)
		sum.DuplicateIndex++
		slog.Debug("missed call ignored: index already processed",
			"source_index", ev.SourceIndex,
			"phone_key", ev.PhoneKey,
		)
		return false
	}

	if e.records.Has(ev.DisplayContact, ev.Timestamp) {
		e.ledger.MarkIndex(ev.SourceIndex, ev.Timestamp)
		sum.DuplicateRecord++
		slog.Debug("missed call ignored: record exists",
			"source_index", ev.SourceIndex,
			"phone_key", ev.PhoneKey,
			"timestamp", ev.Timestamp,
		)
		return true
	}

	if e.expired(ev) {
		e.ledger.MarkIndex(ev.SourceIndex, ev.Timestamp)
		sum.Expired++
		slog.Debug("missed call ignored: older than retained records",
			"source_index", ev.SourceIndex,
			"phone_key", ev.PhoneKey,
			"timestamp", ev.Timestamp,
			"watermark", e.records.Watermark(),
		)
		return true
	}

	r := call.NewRecord(ev, e.now())
	if e.window.HasAnsweredNear(ev.PhoneKey, ev.Timestamp, e.matchWindow) {
		// Only a later answer explains the missed call.
		if answeredAt, ok := e.window.FirstAnsweredAfter(ev.PhoneKey, ev.Timestamp, e.matchWindow); ok {
			r.IsAnswered = true
			slog.Info("missed call already answered",
				"phone_key", ev.PhoneKey,
				"missed_at", ev.Timestamp,
				"answered_at", answeredAt,
			)
		} else {
			slog.Debug("missed call follows an answered call, kept pending",
				"phone_key", ev.PhoneKey,
				"missed_at", ev.Timestamp,
			)
		}
	}

	e.records.Add(r)
	e.ledger.MarkIndex(ev.SourceIndex, ev.Timestamp)
	e.window.Record(ev.PhoneKey, ev.Timestamp, call.KindMissed)
	e.ledger.MarkSent(r.Key(), ledger.SentPending)
	sum.Created++

	slog.Info("missed call recorded",
		"record_key", r.Key().String(),
		"source_index", ev.SourceIndex,
		"answered", r.IsAnswered,
	)

	e.dispatch(ctx, e.builder.Create(r, e.generation.Current()))
	return true
}

// expired reports whether a missed call predates what the record set
// retains: at or before the newest evicted record, or past the max age.
func (e *Engine) expired(ev call.Event) bool {
	if e.records.BelowWatermark(ev.Timestamp) {
		return true
	}
	maxAge := e.limits.RecordMaxAge
	return maxAge > 0 && ev.Timestamp.Before(e.now().Add(-maxAge))
}

// handleAnswered reclassifies the recent missed calls an answer explains.
// The answer key is marked processed whether or not anything matched.
func (e *Engine) handleAnswered(ctx context.Context, ev call.Event, sum *Summary) bool {
	key := ev.AnswerKey()
	answers := e.ledger.Answers()
	if answers.Seen(key) {
		sum.DuplicateAnswer++
		slog.Debug("answered call ignored: already processed", "answer_key", key.String())
		return false
	}

	e.window.Record(ev.PhoneKey, ev.Timestamp, call.KindAnswered)

	for _, r := range e.candidates(ev) {
		r.IsAnswered = true
		e.records.Update(r)
		e.ledger.MarkSent(r.Key(), ledger.SentUpdated)
		sum.Reclassified++

		slog.Info("missed call reclassified as answered",
			"record_key", r.Key().String(),
			"answered_at", ev.Timestamp,
		)

		e.dispatch(ctx, e.builder.Update(r, e.generation.Current()))
	}

	answers.Mark(key, ev.Timestamp)
	return true
}

// candidates returns the unanswered, already-sent records for the answer's
// phone in [T-matchWindow, T), nearest first, capped at maxCandidates.
func (e *Engine) candidates(ev call.Event) []call.Record {
	var out []call.Record
	for _, r := range e.records.ForPhone(ev.PhoneKey, ev.Timestamp.Add(-e.matchWindow), ev.Timestamp) {
		if r.IsAnswered {
			continue
		}
		if _, ok := e.ledger.SentRecordStatus(r.Key()); !ok {
			continue
		}
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if len(out) > e.maxCandidates {
		out = out[:e.maxCandidates]
	}
	return out
}

func (e *Engine) dispatch(ctx context.Context, d delivery.Delivery) {
	slog.Debug("delivery queued",
		"delivery_id", d.ID,
		"kind", d.Kind,
		"record_key", d.RecordKey.String(),
		"generation", d.Generation,
	)
	if e.deliverer != nil {
		e.deliverer.Dispatch(ctx, d)
	}
}

// HandleResult applies a delivery outcome. Results stamped with an older
// generation are dropped without touching state.
func (e *Engine) HandleResult(ctx context.Context, res delivery.Result) {
	d := res.Delivery
	if current := e.generation.Current(); d.Generation != current {
		slog.Debug("stale delivery result discarded",
			"delivery_id", d.ID,
			"generation", d.Generation,
			"current_generation", current,
		)
		return
	}

	key := d.RecordKey
	status, tracked := e.ledger.SentRecordStatus(key)
	e.stats.LastDeliveryAt = e.now()

	switch d.Kind {
	case delivery.KindCreate:
		if res.Err != nil {
			e.stats.Failed++
			e.fail(&Failure{
				Kind:      TransientDeliveryFailure,
				Message:   "create delivery failed",
				RecordKey: key.String(),
				Err:       res.Err,
			})
			if tracked && status == ledger.SentPending {
				e.ledger.MarkSent(key, ledger.SentFailed)
			}
			break
		}
		e.stats.Delivered++
		if tracked && (status == ledger.SentPending || status == ledger.SentFailed) {
			e.ledger.MarkSent(key, ledger.SentDelivered)
		}
		slog.Info("create delivered",
			"delivery_id", d.ID,
			"record_key", key.String(),
			"duration", res.Duration,
		)

	case delivery.KindUpdate:
		if res.Err != nil {
			e.stats.Failed++
			e.fail(&Failure{
				Kind:      TransientDeliveryFailure,
				Message:   "update delivery failed",
				RecordKey: key.String(),
				Err:       res.Err,
			})
			break
		}
		e.stats.Updated++
		slog.Info("update delivered",
			"delivery_id", d.ID,
			"record_key", key.String(),
			"duration", res.Duration,
		)
	}

	e.persist(ctx)
	e.publish()
}

// HandleAcknowledge marks a record as called back.
func (e *Engine) HandleAcknowledge(ctx context.Context, key call.RecordKey) error {
	r, ok := e.records.Find(key)
	if !ok {
		return fmt.Errorf("acknowledge %s: %w", key, ErrUnknownRecord)
	}
	if r.CalledBack {
		return nil
	}

	r.CalledBack = true
	e.records.Update(r)
	slog.Info("record acknowledged", "record_key", key.String())

	e.persist(ctx)
	e.publish()
	return nil
}

// Sweep runs an eviction pass over every bounded container and persists
// if anything was removed. It returns the number of entries removed.
func (e *Engine) Sweep(ctx context.Context) int {
	n := e.evict()
	if n > 0 {
		e.persist(ctx)
	}
	e.publish()
	return n
}

func (e *Engine) evict() int {
	now := e.now()
	ls := e.ledger.Sweep(now)
	rs := e.records.Evict(now, e.limits.RecordMaxAge, e.matchWindow)
	ws := e.window.Sweep()

	total := ls.Total() + rs + ws
	if total > 0 {
		slog.Info("eviction pass",
			"indices", ls.Indices,
			"sent", ls.Sent,
			"answers", ls.Answers,
			"records", rs,
			"window", ws,
		)
	}
	return total
}

func (e *Engine) overCapacity() bool {
	idx, sent, answers := e.ledger.Len()
	return e.records.Len() > e.limits.Records ||
		idx > e.limits.Indices ||
		sent > e.limits.Sent ||
		answers > e.limits.Answers
}

func (e *Engine) snapshot() store.State {
	return store.State{
		Records:   e.records.All(),
		Ledger:    e.ledger.Snapshot(),
		Recent:    e.window.Snapshot(),
		Stats:     e.stats,
		Watermark: e.records.Watermark(),
	}
}

// persist writes the full state. A failed write triggers one eviction pass
// and exactly one retry; a second failure is logged and dropped.
func (e *Engine) persist(ctx context.Context) {
	err := e.store.Save(ctx, e.snapshot())
	if err == nil {
		return
	}
	e.fail(&Failure{Kind: ResourceExhaustion, Message: "state write failed, evicting and retrying", Err: err})

	e.evict()
	if err := e.store.Save(ctx, e.snapshot()); err != nil {
		e.fail(&Failure{Kind: ResourceExhaustion, Message: "state write retry failed", Err: err})
	}
}
