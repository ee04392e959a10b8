// Package internaldefs holds the metric names and bucket boundaries shared by
// the Prometheus and OTel exporters.
//
// Both exporters render from these tables, so a rename here changes every
// exporter at once.
//
// # What this package must NOT do
//
//   - Import any exporter package.
//   - Perform I/O.
package internaldefs
