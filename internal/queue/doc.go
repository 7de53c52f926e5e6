// Package queue persists upload items, duplicate groups, and the rate
// limiter window in SQLite.
//
// The store is the single writer surface for the item state machine:
// pending -> processing -> completed, with processing returning to pending
// on retryable failure and landing in failed when the retry budget runs out
// or the error is permanent. Claims are compare-and-set updates so multiple
// workers never process the same item.
package queue
