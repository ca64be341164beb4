// Package audit records security-relevant decisions and session events as
// immutable, append-only entries.
//
// # Overview
//
// Every authorization denial, session lifecycle transition, and catalog change
// produces an Entry. Entries are never updated or deleted by this package;
// retention and archival belong to an external job.
//
// # Durability contract
//
// Audit writes are best-effort relative to the operation that produced them:
// a failed write is logged locally and swallowed, never surfaced to the
// originating authorization or session call. The protected operation fails
// open with respect to its audit trail, and fails closed only on its own
// errors.
//
// # Severity policy
//
//	permission denials                      medium
//	security revocations, suspicious flags  high
//	role/permission catalog changes         high
//	routine expiry/inactivity cleanup       low
//
// # Recorders
//
// DBRecorder persists entries to PostgreSQL. MemoryRecorder keeps them
// in-process for tests and small deployments. MultiRecorder fans out to
// several recorders at once. All of them implement Recorder.
package audit
