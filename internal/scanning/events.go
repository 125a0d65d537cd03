package scanning

// EventType names an orchestrator event.
type EventType string

// Event types.
const (
	EventProgress       EventType = "progress"
	EventCacheHit       EventType = "cache-hit"
	EventHostDiscovered EventType = "host-discovered"
	EventCacheError     EventType = "cache-error"
	EventScanComplete   EventType = "scan-complete"
	EventScanCancelled  EventType = "scan-cancelled"
)

// Event is delivered to listeners. Only the field matching Type is set.
type Event struct {
	Type     EventType
	ScanID   string
	Progress *Progress
	Host     *HostResult
	Result   *ScanResult
	Err      error
}

// Listener receives events. Calls are serialized; a listener must not block
// for long since it runs on the scan's goroutines.
type Listener func(Event)
