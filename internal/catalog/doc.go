// Package catalog provides the SQLite-backed extension catalog that
// compiled filters run against.
//
// One table, extensions, holds one row per Entry. Entry is the parameter
// type of every compiled lambda, so its field names are the property names
// a script may use ($gall.Author, $gall.DownloadCount) and its db tags are
// the columns querysql lowers them to.
//
// # Value encodings
//
// Stored values use the same encodings as query parameters
// (querysql.DriverValue), so a lowered comparison compares like with like:
//   - LastModified: Unix nanoseconds
//   - NonNullVsixVersion: a fixed-width key whose byte order is version order
//   - CategoryID: canonical UUID text
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - case_sensitive_like=ON: LIKE matches the way in-process evaluation does
//
// Every read orders by id COLLATE BINARY ASC last, so equal sort keys come
// back in the same order on every run.
package catalog
