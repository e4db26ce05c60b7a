package refresh

// EventKind mirrors the three notifications a refresh produces:
// incremental progress, a per-item or terminal error, and terminal
// success.
type EventKind int

const (
	// EventRefresh signals partial progress: a page of names was
	// persisted or one name's details arrived. Consumers re-read the
	// store.
	EventRefresh EventKind = iota
	// EventError carries either a per-name detail failure (the run
	// continues) or the terminal failure of the run.
	EventError
	// EventSuccess terminates the stream: paging and the detail
	// fan-out are both done.
	EventSuccess
)

type Event struct {
	Kind    EventKind
	Message string
	// NewNames is the newly-discovered subset of a page, set on
	// paging EventRefresh events.
	NewNames []string
	Err      error
}
