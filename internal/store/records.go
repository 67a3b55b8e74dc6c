package store

import (
	"time"

	"github.com/roach88/callrecon/internal/call"
	"github.com/roach88/callrecon/internal/ledger"
)

// recordID is the durable uniqueness key of a record: (contact, timestamp).
type recordID struct {
	Contact string
	Epoch   int64
}

func idOf(r call.Record) recordID {
	return recordID{Contact: r.Contact, Epoch: r.Timestamp.Unix()}
}

// RecordSet is the bounded set of CallRecords, oldest first.
//
// The watermark is the newest call time ever evicted. Calls at or before
// it may have been recorded and dropped already, so they are not admitted
// again.
type RecordSet struct {
	items     *ledger.Bounded[recordID, call.Record]
	watermark time.Time
}

// NewRecordSet creates an empty set with the given capacity.
func NewRecordSet(capacity int) *RecordSet {
	return &RecordSet{items: ledger.NewBounded[recordID, call.Record](capacity)}
}

// Has reports whether a record with the same contact and timestamp exists.
func (s *RecordSet) Has(contact string, at time.Time) bool {
	return s.items.Has(recordID{Contact: contact, Epoch: at.Unix()})
}

// Add inserts r. It returns false if a record with the same contact and
// timestamp already exists.
func (s *RecordSet) Add(r call.Record) bool {
	id := idOf(r)
	if s.items.Has(id) {
		return false
	}
	s.items.Put(id, r)
	return true
}

// Update replaces an existing record in place.
func (s *RecordSet) Update(r call.Record) bool {
	id := idOf(r)
	if !s.items.Has(id) {
		return false
	}
	s.items.Put(id, r)
	return true
}

// Find returns the record for a sink lookup key.
func (s *RecordSet) Find(key call.RecordKey) (call.Record, bool) {
	var (
		found call.Record
		ok    bool
	)
	s.items.Range(func(_ recordID, r call.Record) bool {
		if r.Key() == key {
			found, ok = r, true
			return false
		}
		return true
	})
	return found, ok
}

// ForPhone returns records for a phone key with from <= timestamp < to.
func (s *RecordSet) ForPhone(phoneKey string, from, to time.Time) []call.Record {
	var out []call.Record
	s.items.Range(func(_ recordID, r call.Record) bool {
		if r.PhoneKey == phoneKey && !r.Timestamp.Before(from) && r.Timestamp.Before(to) {
			out = append(out, r)
		}
		return true
	})
	return out
}

// All returns every record, oldest first.
func (s *RecordSet) All() []call.Record {
	entries := s.items.Entries()
	out := make([]call.Record, len(entries))
	for i, e := range entries {
		out[i] = e.Value
	}
	return out
}

// Len returns the number of records.
func (s *RecordSet) Len() int {
	return s.items.Len()
}

// Load replaces the set contents. Duplicates keep the first occurrence.
func (s *RecordSet) Load(records []call.Record) {
	s.items.Reset()
	for _, r := range records {
		s.Add(r)
	}
}

// Reset removes every record and clears the watermark.
func (s *RecordSet) Reset() {
	s.items.Reset()
	s.watermark = time.Time{}
}

// Watermark returns the newest evicted call time, or the zero time.
func (s *RecordSet) Watermark() time.Time {
	return s.watermark
}

// SetWatermark restores a persisted watermark. It never moves backwards.
func (s *RecordSet) SetWatermark(t time.Time) {
	if t.After(s.watermark) {
		s.watermark = t
	}
}

// BelowWatermark reports whether a call at the given time is no newer than
// an evicted record.
func (s *RecordSet) BelowWatermark(at time.Time) bool {
	return !s.watermark.IsZero() && at.Unix() <= s.watermark.Unix()
}

func (s *RecordSet) raise(evicted []recordID) int {
	for _, id := range evicted {
		s.SetWatermark(time.Unix(id.Epoch, 0))
	}
	return len(evicted)
}

// Evict bounds the set. Records older than maxAge are dropped first, then
// the oldest by count. Records inside the match horizon are kept unless the
// set has grown past twice its capacity. Evicted records raise the
// watermark.
func (s *RecordSet) Evict(now time.Time, maxAge, horizon time.Duration) int {
	inHorizon := func(_ recordID, r call.Record) bool {
		return r.Timestamp.After(now.Add(-horizon))
	}

	removed := 0
	if maxAge > 0 {
		cutoff := now.Add(-maxAge)
		removed += s.raise(s.items.EvictWhere(func(id recordID, r call.Record) bool {
			return r.Timestamp.Before(cutoff) && !inHorizon(id, r)
		}))
	}

	removed += s.raise(s.items.Evict(inHorizon))

	if hard := 2 * s.items.Capacity(); hard > 0 && s.items.Len() > hard {
		excess := s.items.Len() - hard
		removed += s.raise(s.items.EvictWhere(func(recordID, call.Record) bool {
			if excess == 0 {
				return false
			}
			excess--
			return true
		}))
	}
	return removed
}
