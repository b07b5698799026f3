package router

import "chatrelay/pkg/types"

// Delivery is one event addressed to a set of connections
type Delivery struct {
	To    []string
	Event types.Event
}

// ArchiveRecord is a state change forwarded to the transcript archive
type ArchiveRecord struct {
	Message  *types.Message
	Reaction *types.ReactionRecord
}

// Outcome is the full fan-out of one command, applied by the hub in order
// FUNCTIONAL DISCOVERY: Deliveries keep emission order so every observer of a
// room sees the same event sequence
type Outcome struct {
	Deliveries []Delivery
	Terminate  []string
	Archive    []ArchiveRecord
}

func (o *Outcome) send(to []string, eventType string, payload interface{}) {
	if len(to) == 0 {
		return
	}
	o.Deliveries = append(o.Deliveries, Delivery{
		To:    to,
		Event: types.Event{Type: eventType, Payload: payload},
	})
}

func (o *Outcome) reply(connectionID, eventType string, payload interface{}) {
	o.send([]string{connectionID}, eventType, payload)
}

func (o *Outcome) fail(connectionID, code string, err error) {
	o.reply(connectionID, types.EventError, types.ErrorPayload{Code: code, Message: err.Error()})
}

func (o *Outcome) archiveMessage(msg *types.Message) {
	o.Archive = append(o.Archive, ArchiveRecord{Message: msg.Clone()})
}

func (o *Outcome) archiveReaction(record *types.ReactionRecord) {
	o.Archive = append(o.Archive, ArchiveRecord{Reaction: record})
}

// Empty reports whether the outcome has no effect
func (o Outcome) Empty() bool {
	return len(o.Deliveries) == 0 && len(o.Terminate) == 0 && len(o.Archive) == 0
}

// EventsFor returns the events addressed to one connection, in order
func (o Outcome) EventsFor(connectionID string) []types.Event {
	var events []types.Event
	for _, d := range o.Deliveries {
		for _, id := range d.To {
			if id == connectionID {
				events = append(events, d.Event)
				break
			}
		}
	}
	return events
}
