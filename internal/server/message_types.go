package server

// MessageType represents a WebSocket message type with type safety
type MessageType string

// WebSocket message type constants
// These are used for client-server communication protocol
const (
	// Client to server messages
	MessageTypeAuth     MessageType = "auth"
	MessageTypeJoin     MessageType = "join"
	MessageTypePlaceBet MessageType = "place_bet"
	MessageTypeCashOut  MessageType = "cash_out"
	MessageTypeGetState MessageType = "get_state"

	// Server to client messages (unicast)
	MessageTypeError         MessageType = "error"
	MessageTypeAuthResponse  MessageType = "auth_response"
	MessageTypeJoined        MessageType = "joined"
	MessageTypeState         MessageType = "state"
	MessageTypeBetResult     MessageType = "bet_result"
	MessageTypeCashOutResult MessageType = "cash_out_result"
	MessageTypeBalanceUpdate MessageType = "balance_update"

	// Server to client messages (broadcast)
	MessageTypeStateChange MessageType = "state_change"
	MessageTypeStarting    MessageType = "starting"
	MessageTypeStarted     MessageType = "started"
	MessageTypeTick        MessageType = "tick"
	MessageTypeCrashed     MessageType = "crashed"
	MessageTypeBetPlaced   MessageType = "bet_placed"
	MessageTypeCashOutMade MessageType = "cash_out_made"
	MessageTypeHistory     MessageType = "history"
)

// String returns the string representation of the message type
func (mt MessageType) String() string {
	return string(mt)
}
