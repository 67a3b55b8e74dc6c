// Package delivery sends reconciliation conclusions to the external record
// sink.
//
// A Delivery is either a create (a new missed call) or an update (a missed
// call later found to be answered). Every payload carries the phone number
// and the original missed-call time, which the sink uses as its lookup key,
// so resending the same conclusion is harmless.
package delivery

import (
	"time"

	"github.com/roach88/callrecon/internal/call"
	"github.com/roach88/callrecon/internal/classify"
)

// DateTimeLayout is the sink's dateTime format, MM/DD/YYYY hh:mm AM|PM.
const DateTimeLayout = "01/02/2006 03:04 PM"

// DefaultSource is the provenance string sent when none is configured.
const DefaultSource = "callrecon"

// Kind distinguishes creates from updates.
type Kind string

const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
)

// Payload is the JSON body accepted by the sink.
type Payload struct {
	DateTime         string `json:"dateTime"`
	Number           string `json:"number"`
	PhoneNumber      string `json:"phoneNumber"`
	ActualMissedCall string `json:"actualMissedCall"`
	IsUpdate         bool   `json:"isUpdate"`
	Source           string `json:"source"`
	Notes            string `json:"notes,omitempty"`
}

// Delivery is one outbound request and the context needed to apply its result.
type Delivery struct {
	ID             string         `json:"id"`
	Kind           Kind           `json:"kind"`
	RecordKey      call.RecordKey `json:"record_key"`
	IdempotencyKey string         `json:"idempotency_key"`
	Payload        Payload        `json:"payload"`
	// Generation is the engine generation captured when the delivery was
	// queued. Results from an older generation are discarded.
	Generation uint64 `json:"generation"`
}

// IDGenerator produces delivery IDs.
type IDGenerator interface {
	Generate() string
}

// Builder turns records into deliveries.
type Builder struct {
	Source   string
	Location *time.Location
	IDs      IDGenerator
}

// Create builds the create delivery for a newly recorded call. A record that
// is already answered is reported with actualMissedCall "No".
func (b Builder) Create(r call.Record, generation uint64) Delivery {
	return b.build(KindCreate, r, generation)
}

// Update builds the reclassification update for a record.
func (b Builder) Update(r call.Record, generation uint64) Delivery {
	return b.build(KindUpdate, r, generation)
}

func (b Builder) build(kind Kind, r call.Record, generation uint64) Delivery {
	ids := b.IDs
	if ids == nil {
		ids = UUIDv7Generator{}
	}
	return Delivery{
		ID:             ids.Generate(),
		Kind:           kind,
		RecordKey:      r.Key(),
		IdempotencyKey: call.MustDeliveryKey(string(kind), r.Key(), r.IsAnswered),
		Payload:        b.payload(kind, r),
		Generation:     generation,
	}
}

func (b Builder) payload(kind Kind, r call.Record) Payload {
	loc := b.Location
	if loc == nil {
		loc = time.Local
	}
	source := b.Source
	if source == "" {
		source = DefaultSource
	}

	missed := "Yes"
	if r.IsAnswered {
		missed = "No"
	}

	number := classify.FormatPhone(r.PhoneKey)
	if number == r.PhoneKey && r.Contact != "" {
		number = r.Contact
	}

	return Payload{
		DateTime:         FormatDateTime(r.Timestamp, loc),
		Number:           number,
		PhoneNumber:      r.PhoneKey,
		ActualMissedCall: missed,
		IsUpdate:         kind == KindUpdate,
		Source:           source,
		Notes:            r.Name,
	}
}

// FormatDateTime renders t in the sink's dateTime format.
func FormatDateTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateTimeLayout)
}
