// Package internaldefs holds the stable metric names and bucket bounds
// shared by every exporter implementation.
//
// Counter and histogram definitions live here so the Prometheus and
// OTel exporters render identical names and boundaries. A change in
// this package changes all exporters simultaneously.
//
// # What this package must NOT do
//
//   - Import any exporter package.
//   - Perform I/O.
package internaldefs
