// Package throttle bounds the rate of security-sensitive attempts per
// subject.
//
// Buckets are fixed windows keyed by subject kind (address, account, secret
// selector) and an optional action. An attempt charges a cost. Failures are
// usually charged more than successes. The attempt is denied once the
// window's total cost passes the kind's threshold. A bucket rolls over to a
// fresh window atomically when its window has elapsed. Repeated denial
// across consecutive windows can lock the bucket with exponential backoff.
//
// [Throttler.Check] is a read-only peek meant to run before any expensive
// work, and [Throttler.Attempt] records the outcome afterwards.
package throttle
