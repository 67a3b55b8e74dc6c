// Package call defines the call history data model shared by every
// reconciliation component.
//
// Row is what the live view renders. Event is the classified, ephemeral
// result of one row. Record is the durable missed-call entry that the
// engine creates, reclassifies and forwards to the sink.
//
// Identity:
//   - RecordKey (phone key, missed timestamp epoch) is the sink lookup key
//   - AnswerKey (phone key, minute bucket) deduplicates answered observations
//   - DeliveryKey is a content hash over canonical JSON, used as an
//     idempotency key on outbound requests
package call
