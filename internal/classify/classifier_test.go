package classify

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/callrecon/internal/call"
)

var est = time.FixedZone("EST", -5*3600)

func fixedClassifier(now time.Time) *Classifier {
	return New(WithNow(func() time.Time { return now }), WithLocation(est))
}

func TestClassify_MissedCallScenario(t *testing.T) {
	now := time.Date(2026, 3, 4, 15, 0, 0, 0, est)
	c := fixedClassifier(now)

	ev, err := c.Classify(call.Row{Contact: "(555)123-4567", Timestamp: "2:15 PM", Type: "Missed call", SourceIndex: "7"})
	require.NoError(t, err)

	assert.Equal(t, "5551234567", ev.PhoneKey)
	assert.Equal(t, "(555)123-4567", ev.DisplayContact)
	assert.Equal(t, "", ev.Name)
	assert.Equal(t, call.KindMissed, ev.Kind)
	assert.Equal(t, "7", ev.SourceIndex)
	assert.True(t, ev.Timestamp.Equal(time.Date(2026, 3, 4, 14, 15, 0, 0, est)))
}

func TestClassify_AnsweredCall(t *testing.T) {
	now := time.Date(2026, 3, 4, 15, 0, 0, 0, est)
	c := fixedClassifier(now)

	ev, err := c.Classify(call.Row{Contact: "(555)123-4567", Timestamp: "2:40 PM", Type: "Incoming call answered by X", SourceIndex: "9"})
	require.NoError(t, err)
	assert.Equal(t, call.KindAnswered, ev.Kind)
	assert.Equal(t, 40, ev.Timestamp.Minute())
}

func TestClassify_Kind(t *testing.T) {
	now := time.Date(2026, 3, 4, 15, 0, 0, 0, est)
	c := fixedClassifier(now)

	tests := []struct {
		name string
		row  call.Row
		want call.Kind
	}{
		{"type missed", call.Row{Type: "Missed call"}, call.KindMissed},
		{"type unanswered", call.Row{Type: "Unanswered incoming call"}, call.KindMissed},
		{"type answered", call.Row{Type: "Answered"}, call.KindAnswered},
		{"text fallback", call.Row{Text: "Missed call from Dana"}, call.KindMissed},
		{"type wins over text", call.Row{Type: "Incoming call answered", Text: "missed earlier"}, call.KindAnswered},
		{"outgoing", call.Row{Type: "Outgoing call"}, call.KindUnknown},
		{"voicemail", call.Row{Type: "Voicemail"}, call.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := tt.row
			row.Contact = "555-123-4567"
			row.Timestamp = "2:15 PM"
			row.SourceIndex = "1"

			ev, err := c.Classify(row)
			if tt.want == call.KindUnknown {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrNotCallRow))
				assert.False(t, IsParseFailure(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev.Kind)
		})
	}
}

func TestClassify_PhoneKey(t *testing.T) {
	now := time.Date(2026, 3, 4, 15, 0, 0, 0, est)
	c := fixedClassifier(now)

	tests := []struct {
		name     string
		contact  string
		text     string
		wantKey  string
		wantName string
	}{
		{"parenthesized", "(555)123-4567", "", "5551234567", ""},
		{"dotted", "555.123.4567", "", "5551234567", ""},
		{"country code", "+1 555 123 4567", "", "5551234567", ""},
		{"bare country digit", "1-555-123-4567", "", "5551234567", ""},
		{"name and number", "Dana Smith (555) 123-4567", "", "5551234567", "Dana Smith"},
		{"number then name", "555-123-4567 - Dana", "", "5551234567", "Dana"},
		{"number in text", "Dana", "Missed call from 555-987-6543", "5559876543", "Dana"},
		{"no number anywhere", "Front Desk", "Missed call", "Front Desk", "Front Desk"},
		{"longer digit run is not a number", "555123456789", "", "555123456789", "555123456789"},
		{"digit run in text", "Front Desk", "ref 5551234567890", "Front Desk", "Front Desk"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := c.Classify(call.Row{Contact: tt.contact, Text: tt.text, Timestamp: "2:15 PM", Type: "Missed call", SourceIndex: "1"})
			require.NoError(t, err)
			assert.Equal(t, tt.wantKey, ev.PhoneKey)
			assert.Equal(t, tt.wantName, ev.Name)
		})
	}
}

func TestClassify_Timestamps(t *testing.T) {
	now := time.Date(2026, 3, 4, 15, 0, 0, 0, est)
	c := fixedClassifier(now)

	tests := []struct {
		name string
		ts   string
		want time.Time
	}{
		{"bare pm", "2:15 PM", time.Date(2026, 3, 4, 14, 15, 0, 0, est)},
		{"bare am lowercase", "9:05 am", time.Date(2026, 3, 4, 9, 5, 0, 0, est)},
		{"noon", "12:00 PM", time.Date(2026, 3, 4, 12, 0, 0, 0, est)},
		{"midnight", "12:30 AM", time.Date(2026, 3, 4, 0, 30, 0, 0, est)},
		{"24 hour", "14:15", time.Date(2026, 3, 4, 14, 15, 0, 0, est)},
		{"dotted meridiem", "2:15 p.m.", time.Date(2026, 3, 4, 14, 15, 0, 0, est)},
		{"today prefix", "Today, 1:00 PM", time.Date(2026, 3, 4, 13, 0, 0, 0, est)},
		{"yesterday", "Yesterday 11:50 PM", time.Date(2026, 3, 3, 23, 50, 0, 0, est)},
		{"yesterday comma at", "Yesterday, at 8:00 AM", time.Date(2026, 3, 3, 8, 0, 0, 0, est)},
		{"us date", "03/01/2026 10:30 AM", time.Date(2026, 3, 1, 10, 30, 0, 0, est)},
		{"short us date", "3/1/26 10:30 AM", time.Date(2026, 3, 1, 10, 30, 0, 0, est)},
		{"month name", "Mar 1, 2026 10:30 AM", time.Date(2026, 3, 1, 10, 30, 0, 0, est)},
		{"month name no year", "Feb 27 4:45 PM", time.Date(2026, 2, 27, 16, 45, 0, 0, est)},
		{"yearless future is last year", "Dec 30 4:45 PM", time.Date(2025, 12, 30, 16, 45, 0, 0, est)},
		{"iso", "2026-03-01 10:30", time.Date(2026, 3, 1, 10, 30, 0, 0, est)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := c.Classify(call.Row{Contact: "555-123-4567", Timestamp: tt.ts, Type: "Missed call", SourceIndex: "1"})
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(ev.Timestamp), "got %s want %s", ev.Timestamp, tt.want)
		})
	}
}

func TestClassify_UnparseableTimestamp(t *testing.T) {
	now := time.Date(2026, 3, 4, 15, 0, 0, 0, est)
	c := fixedClassifier(now)

	for _, ts := range []string{"sometime", "25:00", "13:15 PM", "Yesterday noon", "2:61 PM"} {
		t.Run(ts, func(t *testing.T) {
			_, err := c.Classify(call.Row{Contact: "555-123-4567", Timestamp: ts, Type: "Missed call", SourceIndex: "1"})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUnparseableTimestamp))
			assert.True(t, IsParseFailure(err))

			var pe *ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, "timestamp", pe.Field)
			assert.Equal(t, "1", pe.SourceIndex)
		})
	}
}

func TestClassify_MissingFields(t *testing.T) {
	now := time.Date(2026, 3, 4, 15, 0, 0, 0, est)
	c := fixedClassifier(now)

	tests := []struct {
		name  string
		row   call.Row
		field string
	}{
		{"no index", call.Row{Contact: "555-123-4567", Timestamp: "2:15 PM", Type: "Missed call"}, "index"},
		{"no timestamp", call.Row{Contact: "555-123-4567", Type: "Missed call", SourceIndex: "1"}, "timestamp"},
		{"no contact", call.Row{Timestamp: "2:15 PM", Type: "Missed call", SourceIndex: "1"}, "contact"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Classify(tt.row)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMissingField))

			var pe *ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.field, pe.Field)
		})
	}
}

func TestClassifyBatch_YesterdaySiblingOverride(t *testing.T) {
	now := time.Date(2026, 3, 4, 0, 10, 0, 0, est)
	c := fixedClassifier(now)

	b := c.ClassifyBatch([]call.Row{
		{Contact: "555-222-3333", Timestamp: "12:05 AM", Type: "Missed call", SourceIndex: "1"},
		{Contact: "555-123-4567", Timestamp: "Yesterday 11:50 PM", Type: "Missed call", SourceIndex: "2"},
	})
	require.Len(t, b.Events, 2)
	assert.Empty(t, b.Failures)

	assert.True(t, b.Events[0].Timestamp.Equal(time.Date(2026, 3, 4, 0, 5, 0, 0, est)))
	assert.True(t, b.Events[1].Timestamp.Equal(time.Date(2026, 3, 4, 23, 50, 0, 0, est)),
		"got %s", b.Events[1].Timestamp)
}

func TestClassifyBatch_NonCallSiblingOverride(t *testing.T) {
	now := time.Date(2026, 3, 5, 0, 10, 0, 0, est)
	c := fixedClassifier(now)

	b := c.ClassifyBatch([]call.Row{
		{Contact: "555-123-4567", Timestamp: "Yesterday 11:50 PM", Type: "Missed call", SourceIndex: "1"},
		{Contact: "555-222-3333", Timestamp: "12:05 AM", Type: "Outgoing call", SourceIndex: "2"},
	})
	require.Len(t, b.Events, 1)
	assert.Equal(t, 1, b.Skipped)
	assert.True(t, b.Events[0].Timestamp.Equal(time.Date(2026, 3, 5, 23, 50, 0, 0, est)),
		"got %s", b.Events[0].Timestamp)
}

func TestClassifyBatch_YesterdayWithoutSibling(t *testing.T) {
	now := time.Date(2026, 3, 4, 0, 10, 0, 0, est)
	c := fixedClassifier(now)

	b := c.ClassifyBatch([]call.Row{
		{Contact: "555-123-4567", Timestamp: "Yesterday 11:50 PM", Type: "Missed call", SourceIndex: "2"},
	})
	require.Len(t, b.Events, 1)
	assert.True(t, b.Events[0].Timestamp.Equal(time.Date(2026, 3, 3, 23, 50, 0, 0, est)))
}

func TestClassifyBatch_YesterdaySameDaytimeIsNotOverridden(t *testing.T) {
	now := time.Date(2026, 3, 4, 9, 0, 0, 0, est)
	c := fixedClassifier(now)

	b := c.ClassifyBatch([]call.Row{
		{Contact: "555-222-3333", Timestamp: "8:30 AM", Type: "Missed call", SourceIndex: "1"},
		{Contact: "555-123-4567", Timestamp: "Yesterday 8:45 AM", Type: "Missed call", SourceIndex: "2"},
	})
	require.Len(t, b.Events, 2)
	assert.True(t, b.Events[1].Timestamp.Equal(time.Date(2026, 3, 3, 8, 45, 0, 0, est)))
}

func TestClassifyBatch_OverrideDisabled(t *testing.T) {
	now := time.Date(2026, 3, 4, 0, 10, 0, 0, est)
	c := New(WithNow(func() time.Time { return now }), WithLocation(est), WithSiblingTolerance(0))

	b := c.ClassifyBatch([]call.Row{
		{Contact: "555-222-3333", Timestamp: "12:05 AM", Type: "Missed call", SourceIndex: "1"},
		{Contact: "555-123-4567", Timestamp: "Yesterday 11:50 PM", Type: "Missed call", SourceIndex: "2"},
	})
	require.Len(t, b.Events, 2)
	assert.Equal(t, 3, b.Events[1].Timestamp.Day())
}

func TestClassifyBatch_CountsSkippedAndFailures(t *testing.T) {
	now := time.Date(2026, 3, 4, 15, 0, 0, 0, est)
	c := fixedClassifier(now)

	b := c.ClassifyBatch([]call.Row{
		{Contact: "555-123-4567", Timestamp: "2:15 PM", Type: "Missed call", SourceIndex: "1"},
		{Contact: "555-123-4567", Timestamp: "2:20 PM", Type: "Outgoing call", SourceIndex: "2"},
		{Contact: "555-123-4567", Timestamp: "garbage", Type: "Missed call", SourceIndex: "3"},
	})
	assert.Len(t, b.Events, 1)
	assert.Equal(t, 1, b.Skipped)
	require.Len(t, b.Failures, 1)
	assert.True(t, IsParseFailure(b.Failures[0]))
}

func TestFormatPhone(t *testing.T) {
	assert.Equal(t, "(555) 123-4567", FormatPhone("5551234567"))
	assert.Equal(t, "Front Desk", FormatPhone("Front Desk"))
	assert.Equal(t, "12345", FormatPhone("12345"))
}
