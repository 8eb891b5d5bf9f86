// Package storage keeps an optional audit journal of host events: plugin
// starts, frees and reloads, and PAD dispatches or drops.
//
// Drivers:
//   - "file": append-only JSON Lines file
//   - "sqlite": SQLite database (modernc.org/sqlite, no cgo)
//
// An empty driver or "none" disables storage.
package storage
