// Package engine is the host-facing service of shiksha.
//
// The Engine owns the local store, the progression evaluator, the cache
// manager and the sync scheduler, and exposes the operations a host calls:
// record a completion, read a snapshot, manage play sessions, and drive
// synchronization.
//
// ARCHITECTURE:
//
// Write path:
//  1. RecordCompletion computes XP from the prior history and the catalog
//  2. The progress record and its outbox item are committed in one transaction
//  3. The snapshot is re-derived and diffed against the previous one
//  4. Newly earned achievements are recorded, each with its own outbox item
//  5. Subscribers receive the Diff and the scheduler is nudged
//
// Sync path (Scheduler):
//  1. Stuck syncing items older than the grace timeout return to pending
//  2. Failed items whose backoff elapsed return to pending
//  3. Pending items are drained FIFO per kind, one upload at a time
//  4. Synced items older than the retention window are pruned
//  5. Catalog, assets and curriculum of priority subjects are refreshed
//
// Only one pass runs at a time. Triggers that arrive during a pass coalesce
// into a single follow-up pass. Losing connectivity cancels the pass; an
// item whose upload was in flight stays syncing until the grace timeout
// hands it back, and the remote deduplicates the replay by item id.
package engine
