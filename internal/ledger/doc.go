// Package ledger implements the work ledger: a PostgreSQL table holding one
// row per input file and its status, and the claim protocol that hands
// disjoint sets of PENDING rows to concurrent workers.
//
// A claim is an open transaction holding row locks taken with
// SELECT ... FOR UPDATE SKIP LOCKED. Concurrent claimers never see each
// other's rows. Everything done under the claim (ingested rows and status
// updates) commits together; a rollback or a dropped connection returns the
// rows to PENDING.
package ledger
