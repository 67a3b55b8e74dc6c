// Package classify turns rendered call-list rows into typed call events.
//
// Classification is pure: it reads the row and the injected clock and never
// touches engine state. A row that cannot be classified yields a *ParseError
// and no event.
package classify

import (
	"strings"
	"time"

	"github.com/roach88/callrecon/internal/call"
)

// DefaultSiblingTolerance bounds how far apart a "Yesterday" clock time and
// a same-batch today clock time may be, across midnight, for the row to be
// treated as today.
const DefaultSiblingTolerance = time.Hour

// Classifier classifies rows relative to an injected clock and location.
type Classifier struct {
	now              func() time.Time
	loc              *time.Location
	siblingTolerance time.Duration
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithNow sets the clock used to resolve relative timestamps.
func WithNow(now func() time.Time) Option {
	return func(c *Classifier) {
		c.now = now
	}
}

// WithLocation sets the display time zone of the live view.
func WithLocation(loc *time.Location) Option {
	return func(c *Classifier) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// WithSiblingTolerance sets the midnight-wrap tolerance of the yesterday
// override. Zero disables the override.
func WithSiblingTolerance(d time.Duration) Option {
	return func(c *Classifier) {
		c.siblingTolerance = d
	}
}

// New creates a Classifier using wall-clock time in the local zone unless
// options say otherwise.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		now:              time.Now,
		loc:              time.Local,
		siblingTolerance: DefaultSiblingTolerance,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Batch is the outcome of classifying one observation.
type Batch struct {
	Events []call.Event
	// Skipped counts well-formed rows that are not missed/answered calls.
	Skipped int
	// Failures holds one *ParseError per malformed row.
	Failures []error
}

// Classify classifies a single row with no sibling context.
func (c *Classifier) Classify(row call.Row) (call.Event, error) {
	b := c.ClassifyBatch([]call.Row{row})
	if len(b.Events) == 1 {
		return b.Events[0], nil
	}
	if len(b.Failures) == 1 {
		return call.Event{}, b.Failures[0]
	}
	return call.Event{}, &ParseError{SourceIndex: row.SourceIndex, Field: "type", Value: row.Type, Err: ErrNotCallRow}
}

// ClassifyBatch classifies every row of one observation. Sibling rows, call
// or not, are consulted only to resolve "Yesterday" labels that lag past
// midnight.
// Events are returned in row order.
func (c *Classifier) ClassifyBatch(rows []call.Row) Batch {
	now := c.now().In(c.loc)

	type pending struct {
		row   call.Row
		kind  call.Kind
		ident identity
		ts    resolved
	}

	var (
		out        Batch
		candidates []pending
		today      []clock
	)

	for _, row := range rows {
		kind := kindOf(row)
		if kind == call.KindUnknown {
			out.Skipped++
			// Non-call rows still show which day the list is on.
			if ts, ok := resolveTimestamp(row.Timestamp, now); ok && ts.strategy == strategyToday {
				today = append(today, ts.clock)
			}
			continue
		}

		if err := checkRequired(row); err != nil {
			out.Failures = append(out.Failures, err)
			continue
		}

		ts, ok := resolveTimestamp(row.Timestamp, now)
		if !ok {
			out.Failures = append(out.Failures, &ParseError{
				SourceIndex: row.SourceIndex,
				Field:       "timestamp",
				Value:       row.Timestamp,
				Err:         ErrUnparseableTimestamp,
			})
			continue
		}
		if ts.strategy == strategyToday {
			today = append(today, ts.clock)
		}

		candidates = append(candidates, pending{
			row:   row,
			kind:  kind,
			ident: extractIdentity(row.Contact, row.Text),
			ts:    ts,
		})
	}

	for _, p := range candidates {
		at := p.ts.at
		if p.ts.strategy == strategyYesterday && c.siblingTolerance > 0 {
			for _, sib := range today {
				if wrapsMidnight(p.ts.clock, sib, c.siblingTolerance) {
					at = p.ts.clock.on(now)
					break
				}
			}
		}

		out.Events = append(out.Events, call.Event{
			PhoneKey:       p.ident.phoneKey,
			DisplayContact: p.ident.display,
			Name:           p.ident.name,
			Timestamp:      at,
			Kind:           p.kind,
			SourceIndex:    strings.TrimSpace(p.row.SourceIndex),
		})
	}

	return out
}

// kindOf reads the call-type indicator, falling back to the row text.
func kindOf(row call.Row) call.Kind {
	indicator := strings.ToLower(row.Type)
	if strings.TrimSpace(indicator) == "" {
		indicator = strings.ToLower(row.Text)
	}
	switch {
	case strings.Contains(indicator, "missed"), strings.Contains(indicator, "unanswered"):
		return call.KindMissed
	case strings.Contains(indicator, "answered"):
		return call.KindAnswered
	default:
		return call.KindUnknown
	}
}

func checkRequired(row call.Row) error {
	switch {
	case strings.TrimSpace(row.SourceIndex) == "":
		return &ParseError{SourceIndex: row.SourceIndex, Field: "index", Err: ErrMissingField}
	case strings.TrimSpace(row.Timestamp) == "":
		return &ParseError{SourceIndex: row.SourceIndex, Field: "timestamp", Err: ErrMissingField}
	case strings.TrimSpace(row.Contact) == "" && !hasPhone(row.Text):
		return &ParseError{SourceIndex: row.SourceIndex, Field: "contact", Err: ErrMissingField}
	}
	return nil
}

func hasPhone(s string) bool {
	_, ok := findPhone(s)
	return ok
}
