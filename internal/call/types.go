package call

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind is the classified outcome of a call row.
type Kind int

const (
	// KindUnknown marks rows that are neither missed nor answered.
	KindUnknown Kind = iota
	// KindMissed is a missed incoming call.
	KindMissed
	// KindAnswered is an answered incoming call.
	KindAnswered
)

// String returns the lowercase name used in logs and persisted state.
func (k Kind) String() string {
	switch k {
	case KindMissed:
		return "missed"
	case KindAnswered:
		return "answered"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "missed":
		*k = KindMissed
	case "answered":
		*k = KindAnswered
	case "unknown", "":
		*k = KindUnknown
	default:
		return fmt.Errorf("unknown call kind %q", string(b))
	}
	return nil
}

// Row is one rendered entry of the live call list.
type Row struct {
	Text        string `json:"text,omitempty" yaml:"text,omitempty"`
	Contact     string `json:"contact" yaml:"contact"`
	Timestamp   string `json:"timestamp" yaml:"timestamp"`
	Type        string `json:"type,omitempty" yaml:"type,omitempty"`
	SourceIndex string `json:"index" yaml:"index"`
}

// Event is a classified row. It is never persisted.
type Event struct {
	PhoneKey       string    `json:"phone_key"`
	DisplayContact string    `json:"display_contact"`
	Name           string    `json:"name,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Kind           Kind      `json:"kind"`
	SourceIndex    string    `json:"source_index"`
}

// RecordKey returns the sink lookup key for this event's timestamp.
func (e Event) RecordKey() RecordKey {
	return RecordKey{PhoneKey: e.PhoneKey, Epoch: e.Timestamp.Unix()}
}

// AnswerKey returns the minute-bucket dedup key for this event.
func (e Event) AnswerKey() AnswerKey {
	return AnswerKey{PhoneKey: e.PhoneKey, Minute: MinuteBucket(e.Timestamp)}
}

// State is the reconciliation state of a Record.
type State string

const (
	// StateMissedPending is a created record that has not been answered.
	StateMissedPending State = "missed_pending"
	// StateReclassifiedAnswered is terminal: an answer arrived in the match window.
	StateReclassifiedAnswered State = "reclassified_answered"
)

// Record is a durable missed-call entry.
//
// IsAnswered only transitions false -> true. CalledBack is flipped by an
// explicit acknowledgment.
type Record struct {
	Contact     string    `json:"contact"`
	PhoneKey    string    `json:"phone_key"`
	Name        string    `json:"name,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	SourceIndex string    `json:"source_index"`
	CalledBack  bool      `json:"called_back"`
	IsAnswered  bool      `json:"is_answered"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewRecord builds a pending record from a missed event.
func NewRecord(ev Event, createdAt time.Time) Record {
	return Record{
		Contact:     ev.DisplayContact,
		PhoneKey:    ev.PhoneKey,
		Name:        ev.Name,
		Timestamp:   ev.Timestamp,
		SourceIndex: ev.SourceIndex,
		CreatedAt:   createdAt,
	}
}

// State reports the record's reconciliation state.
func (r Record) State() State {
	if r.IsAnswered {
		return StateReclassifiedAnswered
	}
	return StateMissedPending
}

// Key returns the record's sink lookup key.
func (r Record) Key() RecordKey {
	return RecordKey{PhoneKey: r.PhoneKey, Epoch: r.Timestamp.Unix()}
}

// RecordKey identifies a missed call by phone key and timestamp (unix seconds).
type RecordKey struct {
	PhoneKey string `json:"phone_key"`
	Epoch    int64  `json:"epoch"`
}

func (k RecordKey) String() string {
	return k.PhoneKey + "@" + strconv.FormatInt(k.Epoch, 10)
}

// ParseRecordKey parses the form produced by RecordKey.String.
func ParseRecordKey(s string) (RecordKey, error) {
	i := strings.LastIndex(s, "@")
	if i <= 0 {
		return RecordKey{}, fmt.Errorf("invalid record key %q", s)
	}
	epoch, err := strconv.ParseInt(s[i+1:], 10, 64)
	if err != nil {
		return RecordKey{}, fmt.Errorf("invalid record key %q: %w", s, err)
	}
	return RecordKey{PhoneKey: s[:i], Epoch: epoch}, nil
}

// Time returns the key's timestamp.
func (k RecordKey) Time() time.Time {
	return time.Unix(k.Epoch, 0)
}

// AnswerKey identifies an answered call at minute resolution.
type AnswerKey struct {
	PhoneKey string `json:"phone_key"`
	Minute   int64  `json:"minute"`
}

func (k AnswerKey) String() string {
	return k.PhoneKey + "#" + strconv.FormatInt(k.Minute, 10)
}

// MinuteBucket truncates t to whole minutes since the unix epoch.
func MinuteBucket(t time.Time) int64 {
	return t.Truncate(time.Minute).Unix() / 60
}
