// Package catalog holds the application records tracked by the daemon.
//
// A Record combines the static metadata read from a desktop entry (id,
// name, icon, command line, activation kind) with the live lifecycle state
// the launcher maintains for it. The Catalog itself is append-only during
// startup and read-only afterwards.
package catalog
