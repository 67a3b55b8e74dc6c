// Package harness replays call-list scenarios against a real reconciliation
// engine and checks the deliveries it produces.
//
// # Scenario Format
//
// Scenarios are YAML files decoded strictly (unknown fields are errors):
//
//	name: answer_reclassifies
//	description: "An answer inside the match window flips the record"
//	now: "2026-03-04T15:00:00-05:00"
//	source: front-desk
//	steps:
//	  - rows:
//	      - { contact: "(555)123-4567", timestamp: "2:15 PM", type: "Missed call", index: "7" }
//	  - deliver: ok
//	  - advance: 25m
//	  - rows:
//	      - { contact: "(555)123-4567", timestamp: "2:40 PM", type: "Incoming call answered", index: "9" }
//	      - { contact: "(555)123-4567", timestamp: "2:15 PM", type: "Missed call", index: "7" }
//	assertions:
//	  - type: delivery_count
//	    kind: update
//	    count: 1
//	  - type: delivery_contains
//	    kind: update
//	    payload: { actualMissedCall: "No", isUpdate: true }
//	  - type: record_state
//	    phone: "5551234567"
//	    at: "2026-03-04T14:15:00-05:00"
//	    state: reclassified_answered
//
// # Steps
//
// Each step does exactly one thing:
//
//   - rows: observe one snapshot of the live view
//   - advance: move the scenario clock forward by a duration
//   - deliver: complete every pending delivery, "ok" or "fail"
//   - acknowledge: mark the record with key "phone@epoch" as called back
//   - sweep: run an eviction pass
//   - restart: end the session and start a new engine over the same store
//
// # Assertion Types
//
//   - delivery_count: exact number of deliveries, optionally of one kind
//   - delivery_contains: some delivery of the kind has a payload that is a
//     superset of the given fields
//   - record_state: the persisted record for phone and time is in the given
//     state (and, if set, has the given called_back flag)
//
// # Determinism
//
// The clock only moves on advance steps, delivery IDs come from a sequence
// generator, and state lives in an in-memory backend, so a scenario's trace
// is stable and can be compared with a golden file.
package harness
