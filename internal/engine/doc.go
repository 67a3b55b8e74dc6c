// Package engine reconciles observed call rows into missed-call records.
//
// The engine receives snapshots of a call-history view, classifies each row
// as a missed or answered call, and keeps a bounded set of records in step
// with what the view shows:
//
//   - A new missed call creates a pending record and a "create" delivery.
//   - An answered call reclassifies the unanswered records for the same
//     phone from the preceding match window (nearest first, capped) and
//     queues one "update" delivery each, keyed on the original missed time.
//   - Re-observing the same rows changes nothing: source indices, record
//     identities and answer keys are all deduplicated.
//
// Single-Writer Event Loop:
// Observations, delivery results, sweeps and acknowledgments are queued
// and applied one at a time by Run. Deliveries are sent on other
// goroutines and come back as events stamped with the generation that
// produced them; a result from an older generation is dropped.
//
// State is persisted through store.Store after every mutation. Write
// failures trigger one eviction pass and one retry. Nothing in the loop is
// fatal; failures are logged as typed Failure values and the loop moves on.
package engine
