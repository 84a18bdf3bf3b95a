package models

// -----------------------------------------------------------------------------
// Server State Structure
// -----------------------------------------------------------------------------

// MProgressSnapshot is sent to a websocket client on connect and after it
// subscribes: the latest progress event of every symbol it follows.
type MProgressSnapshot struct {
	Type      string                  `json:"type"` // "INITIAL"
	Progress  map[string]MFitProgress `json:"progress"`
	Timestamp int64                   `json:"timestamp"`
}

// -----------------------------------------------------------------------------
// SubscribeCommand for client messages
// -----------------------------------------------------------------------------

// MSubscribeCommand narrows the progress stream of one client. An empty
// symbol list means every symbol.
type MSubscribeCommand struct {
	Command string   `json:"command"`
	Symbols []string `json:"symbols"`
}
