package research

import "time"

// EventType identifies an orchestrator event.
type EventType string

// Event types.
const (
	EventProgress       EventType = "progress"
	EventPartialText    EventType = "partial_text"
	EventCompleted      EventType = "completed"
	EventCompletedEmpty EventType = "completed_empty"
	EventFailed         EventType = "failed"
)

// Stage names a pipeline step.
type Stage string

// Pipeline stages.
const (
	StageReport Stage = "report"
	StageSearch Stage = "search"
	StageScrape Stage = "scrape"
	StageWrite  Stage = "write"
)

// Event is one element of the sequence produced by Orchestrator.Run.
type Event struct {
	Type      EventType
	RunID     string
	Timestamp time.Time
	Stage     Stage
	// Text is the delta for PartialText, the whole report for Completed, and
	// the user-facing message for Progress and CompletedEmpty.
	Text string
	// Cached is set on Completed when the report came from the cache, and on
	// Progress when the stage was served from the cache.
	Cached bool
	// Articles counts the articles involved in the stage.
	Articles int
	Err      error
}

// Terminal reports whether e ends the sequence.
func (e Event) Terminal() bool {
	switch e.Type {
	case EventCompleted, EventCompletedEmpty, EventFailed:
		return true
	default:
		return false
	}
}
