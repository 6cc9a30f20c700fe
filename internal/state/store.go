// Package state persists which items of a collection have already been
// synced, as a mapping from item identifier to the update marker seen at the
// time of the last successful transfer. Two backends exist: a line-oriented
// state file (the default) and a SQLite database.
package state

// File names inside a collection's working directory.
const (
	FileName       = ".arcsync-state"
	BackupFileName = ".arcsync-state.bak"
	SQLiteFileName = ".arcsync-state.db"
)

// Store is the persistence contract. A store is owned by a single sync run;
// Rotate is called exactly once at run start, before any Record call.
type Store interface {
	// Rotate snapshots the current state into the backup slot, discarding
	// any previous backup, and keeps the working state intact so lookups
	// continue to see prior history. With no state to snapshot it removes
	// a stale backup left by an older run.
	Rotate() error

	// Load returns the full mapping. Missing state yields an empty
	// mapping, and a corrupt record is skipped rather than aborting the
	// load. The returned map is the caller's copy.
	Load() (map[string]string, error)

	// Lookup returns the recorded marker for identifier. It consults the
	// mapping cached by Load/Rotate and performs no I/O; before the first
	// successful Load it reports nothing found.
	Lookup(identifier string) (string, bool)

	// Record inserts or replaces the entry for identifier. Atomic per
	// call: an interruption never leaves a truncated record, and entries
	// recorded by earlier calls survive.
	Record(identifier, marker string) error

	// Close releases backend resources.
	Close() error
}
