// Package middleware adapts authkit sessions to net/http.
//
// # Handlers
//
//   - [ClientInfo] copies the client address and user agent into the request
//     context so the engine can throttle and fingerprint.
//   - [Guard] resumes the session named by a cookie and rejects requests
//     without a live one.
//   - [RequireAntiForgery] checks the anti-forgery token on unsafe methods.
//
// All authentication decisions are delegated to the engine; this package only
// translates HTTP into engine calls.
package middleware
