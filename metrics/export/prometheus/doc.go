// Package prometheus renders authkit engine metrics in Prometheus text
// exposition format.
//
// [New] wraps an [authkit.Engine] and exposes an [http.Handler]. Counters are
// named authkit_*_total and the login latency histogram is
// authkit_login_latency_seconds.
//
// # What this package must NOT do
//
//   - Register anything in a global registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus
