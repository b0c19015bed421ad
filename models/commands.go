package models

type EventType string

const (
	EventHandStarted    EventType = "handStarted"
	EventDealerAssigned EventType = "dealerAssigned"
	EventBlindPosted    EventType = "blindPosted"
	EventPlayerActed    EventType = "playerActed"
	EventStreetDealt    EventType = "streetDealt"
	EventHandComplete   EventType = "handComplete"
	// EventNotice covers table notices raised outside the engine, such as
	// joins, departures and timeouts.
	EventNotice EventType = "notice"
)

// Event is an informational notice raised by the engine while it mutates a
// table. Message is the human readable form relayed to clients as a system chat.
type Event struct {
	Event    EventType   `json:"event"`
	TableID  string      `json:"tableId"`
	PlayerID string      `json:"playerId,omitempty"`
	Message  string      `json:"message"`
	Data     interface{} `json:"data,omitempty"`
}

type BlindPostedEvent struct {
	Seat   int    `json:"seat"`
	Amount int    `json:"amount"`
	Blind  string `json:"blind"`
}

type PlayerActedEvent struct {
	Action PlayerAction `json:"action"`
	Amount int          `json:"amount"`
}

type HandCompleteEvent struct {
	Winners []Winner `json:"winners"`
}
