package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/callrecon/internal/call"
)

// GoldenDir is where golden traces live, relative to the test package.
const GoldenDir = "testdata/golden"

// TraceSnapshot is the part of a run compared against golden files: the
// deliveries in order and the final records.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
	Records      []RecordView `json:"records"`
}

// NewTraceSnapshot captures a result under a scenario name.
func NewTraceSnapshot(name string, result *Result) TraceSnapshot {
	return TraceSnapshot{ScenarioName: name, Trace: result.Trace, Records: result.Records}
}

// Canonical serializes the snapshot as canonical JSON.
func (s TraceSnapshot) Canonical() ([]byte, error) {
	return call.MarshalCanonical(s.toCanonicalMap())
}

// toCanonicalMap converts the snapshot to the generic shapes accepted by
// call.MarshalCanonical.
func (s TraceSnapshot) toCanonicalMap() map[string]any {
	trace := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		payload := map[string]any{
			"dateTime":         ev.Payload.DateTime,
			"number":           ev.Payload.Number,
			"phoneNumber":      ev.Payload.PhoneNumber,
			"actualMissedCall": ev.Payload.ActualMissedCall,
			"isUpdate":         ev.Payload.IsUpdate,
			"source":           ev.Payload.Source,
		}
		if ev.Payload.Notes != "" {
			payload["notes"] = ev.Payload.Notes
		}
		trace[i] = map[string]any{
			"seq":        ev.Seq,
			"id":         ev.ID,
			"kind":       string(ev.Kind),
			"record_key": ev.RecordKey,
			"outcome":    ev.Outcome,
			"payload":    payload,
		}
	}

	records := make([]any, len(s.Records))
	for i, r := range s.Records {
		records[i] = map[string]any{
			"contact":     r.Contact,
			"phone_key":   r.PhoneKey,
			"timestamp":   r.Timestamp,
			"state":       string(r.State),
			"called_back": r.CalledBack,
		}
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         trace,
		"records":       records,
	}
}

// RunWithGolden executes a scenario and compares its snapshot with
// testdata/golden/{scenario.Name}.golden. Regenerate with
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result with the named golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := NewTraceSnapshot(name, result).Canonical()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
