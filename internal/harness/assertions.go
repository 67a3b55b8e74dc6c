package harness

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// AssertionError is returned when an assertion fails. It carries the
// trace so a failure can be read without re-running the scenario.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nDeliveries:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s %s actualMissedCall=%s (%s)\n",
				ev.Seq, ev.Kind, ev.RecordKey, ev.Payload.DateTime, ev.Payload.ActualMissedCall, ev.Outcome)
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns one message per
// failure.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertDeliveryCount:
			err = assertDeliveryCount(result, a)
		case AssertDeliveryContains:
			err = assertDeliveryContains(result, a)
		case AssertRecordState:
			err = assertRecordState(result, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func kindLabel(kind string) string {
	if kind == "" {
		return "deliveries"
	}
	return kind + " deliveries"
}

func assertDeliveryCount(result *Result, a Assertion) error {
	got := len(result.Deliveries(a.Kind))
	if got != *a.Count {
		return &AssertionError{
			Type:     AssertDeliveryCount,
			Expected: fmt.Sprintf("%d %s", *a.Count, kindLabel(a.Kind)),
			Actual:   fmt.Sprintf("%d %s", got, kindLabel(a.Kind)),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertDeliveryContains looks for a delivery whose payload, seen as JSON,
// holds every expected field.
func assertDeliveryContains(result *Result, a Assertion) error {
	for _, ev := range result.Deliveries(a.Kind) {
		fields, err := payloadFields(ev)
		if err != nil {
			return err
		}
		if matchFields(fields, a.Payload) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertDeliveryContains,
		Expected: fmt.Sprintf("%s with payload %v", kindLabel(a.Kind), a.Payload),
		Actual:   "no matching delivery",
		Trace:    result.Trace,
	}
}

func payloadFields(ev TraceEvent) (map[string]any, error) {
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// matchFields reports whether actual holds every expected key with an
// equal value. Numbers compare as float64 since both sides may come from
// different decoders.
func matchFields(actual, expected map[string]any) bool {
	for k, want := range expected {
		got, ok := actual[k]
		if !ok {
			return false
		}
		if !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func assertRecordState(result *Result, a Assertion) error {
	at, err := time.Parse(time.RFC3339, a.At)
	if err != nil {
		return err
	}

	for _, r := range result.Records {
		ts, err := time.Parse(time.RFC3339, r.Timestamp)
		if err != nil {
			return err
		}
		if r.PhoneKey != a.Phone || !ts.Equal(at) {
			continue
		}
		if string(r.State) != a.State {
			return &AssertionError{
				Type:     AssertRecordState,
				Expected: fmt.Sprintf("record %s at %s in state %s", a.Phone, a.At, a.State),
				Actual:   fmt.Sprintf("state %s", r.State),
				Trace:    result.Trace,
			}
		}
		if a.CalledBack != nil && r.CalledBack != *a.CalledBack {
			return &AssertionError{
				Type:     AssertRecordState,
				Expected: fmt.Sprintf("record %s at %s with called_back=%t", a.Phone, a.At, *a.CalledBack),
				Actual:   fmt.Sprintf("called_back=%t", r.CalledBack),
				Trace:    result.Trace,
			}
		}
		return nil
	}

	return &AssertionError{
		Type:     AssertRecordState,
		Expected: fmt.Sprintf("record %s at %s", a.Phone, a.At),
		Actual:   fmt.Sprintf("not found among %d records", len(result.Records)),
		Trace:    result.Trace,
	}
}
