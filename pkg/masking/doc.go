// Package masking redacts registered credentials from text emitted by the
// agent: command echo, process output, structured logs and notifications.
//
// An Engine holds literal, pattern and encoded secrets and replaces every
// match with RedactionToken. An AuditedEngine wraps it for production use:
// registrations carry an origin tag for tracing, invalid input is skipped with
// a warning, and the minimum secret length can never exceed
// MinSecretLengthCeiling.
package masking
