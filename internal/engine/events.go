package engine

// EventKind names a milestone in a reconciliation run.
type EventKind int

const (
	// EventStarted fires once, before the first lookup.
	EventStarted EventKind = iota
	// EventResolved fires when a barcode's item and copies are in hand.
	EventResolved
	// EventNotFound fires when the catalog has no item for a barcode.
	EventNotFound
	// EventFailed fires when a lookup failed for reasons other than the
	// barcode being unknown, such as retries running out.
	EventFailed
	// EventFinished fires once, after the report rows are assembled.
	EventFinished
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventResolved:
		return "resolved"
	case EventNotFound:
		return "not found"
	case EventFailed:
		return "failed"
	case EventFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Event reports run progress to an optional observer. Total is set on
// EventStarted; Barcode, Holdings, and Err accompany the per-barcode kinds.
type Event struct {
	Kind     EventKind
	Barcode  string
	Holdings int
	Total    int
	Err      error
}

func emitEvent(progress func(Event), ev Event) {
	if progress != nil {
		progress(ev)
	}
}
