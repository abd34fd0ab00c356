package fanload

import "context"

// Fleet is the set of running fast-load servers of one run.
// Slot i owns served directory Dir(i); nothing else writes into it.
type Fleet interface {
	// Size returns the number of running members.
	Size() int

	// Dir returns the served directory of slot i.
	Dir(slot int) string

	// Dirs returns all served directories in slot order.
	Dirs() []string

	// Location returns the URL at which slot's server exposes name.
	Location(slot int, name string) string

	// Close stops every server and removes the served directories. Idempotent.
	Close(ctx context.Context) error
}

// Distributor places claimed files into served directories.
type Distributor interface {
	// Distribute assigns paths[i] to dirs[i % len(dirs)] and returns the names
	// placed in each directory, keyed by directory.
	Distribute(paths []string, dirs []string) (map[string][]string, error)

	// Clear empties every directory, leaving the directories in place.
	Clear(dirs []string) error
}
