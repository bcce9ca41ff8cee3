package dashboard

import (
	"encoding/json"

	"github.com/rajlabs/tallybridge/internal/snapshot"
)

// EventSink adapts the server to the sync engine's event interface. Each
// engine event becomes one broadcast frame.
type EventSink struct {
	server *Server
}

// NewEventSink wraps a server as an event sink.
func NewEventSink(server *Server) *EventSink {
	return &EventSink{server: server}
}

// PassCompleted broadcasts a sync pass summary.
func (e *EventSink) PassCompleted(run snapshot.Run) {
	data, err := json.Marshal(PassData{
		RunID:     run.RunID,
		New:       run.New,
		Changed:   run.Changed,
		Unchanged: run.Unchanged,
		Uploaded:  run.Uploaded,
		Failed:    run.Failed,
		Error:     run.Error,
	})
	if err != nil {
		return
	}
	e.server.Broadcast(Message{Type: MessageTypePass, Data: data})
}

// PollCompleted broadcasts a pending-update poll result.
func (e *EventSink) PollCompleted(processed, failed int) {
	data, err := json.Marshal(PollData{Processed: processed, Failed: failed})
	if err != nil {
		return
	}
	e.server.Broadcast(Message{Type: MessageTypePoll, Data: data})
}
