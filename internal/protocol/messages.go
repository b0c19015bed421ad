package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"poker-table/internal/validation"
	"poker-table/models"
)

// Message types, client to server.
const (
	TypePlayerAction = "playerAction"
	TypeStartGame    = "startGame"
	TypeChat         = "chat"
	TypePing         = "ping"
)

// Message types, server to client. Chat shares TypeChat.
const (
	TypeGameState  = "gameState"
	TypePlayerLeft = "playerLeft"
	TypeError      = "error"
	TypePong       = "pong"
)

// SystemPlayerID marks chat lines generated by the server.
const SystemPlayerID = "system"

const MaxChatLength = 500

var (
	ErrMalformed      = errors.New("malformed message")
	ErrUnknownType    = errors.New("unknown message type")
	ErrInvalidPayload = errors.New("invalid payload")
)

// Envelope is the frame used in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Inbound is one of PlayerAction, StartGame, Chat or Ping.
type Inbound interface {
	inboundType() string
}

type PlayerAction struct {
	Action    models.PlayerAction
	Amount    int
	PlayerID  string
	Timestamp int64
	RequestID string
}

type StartGame struct{}

type Chat struct {
	Message string
}

type Ping struct{}

func (PlayerAction) inboundType() string { return TypePlayerAction }
func (StartGame) inboundType() string    { return TypeStartGame }
func (Chat) inboundType() string         { return TypeChat }
func (Ping) inboundType() string         { return TypePing }

type playerActionPayload struct {
	Type      string `json:"type"`
	Amount    *int   `json:"amount,omitempty"`
	PlayerID  string `json:"playerId"`
	Timestamp int64  `json:"timestamp"`
	RequestID string `json:"requestId,omitempty"`
}

type chatPayload struct {
	Message string `json:"message"`
}

// Decode parses one client frame into its typed message.
func Decode(data []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case TypePlayerAction:
		var p playerActionPayload
		if err := decodePayload(env.Payload, &p); err != nil {
			return nil, err
		}
		action, ok := models.ParseAction(p.Type)
		if !ok {
			return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidPayload, p.Type)
		}
		amount := 0
		if p.Amount != nil {
			amount = *p.Amount
		}
		if amount < 0 {
			return nil, fmt.Errorf("%w: amount cannot be negative", ErrInvalidPayload)
		}
		if action == models.ActionRaise && p.Amount == nil {
			return nil, fmt.Errorf("%w: raise requires an amount", ErrInvalidPayload)
		}
		return PlayerAction{
			Action:    action,
			Amount:    amount,
			PlayerID:  p.PlayerID,
			Timestamp: p.Timestamp,
			RequestID: p.RequestID,
		}, nil

	case TypeStartGame:
		return StartGame{}, nil

	case TypeChat:
		var p chatPayload
		if err := decodePayload(env.Payload, &p); err != nil {
			return nil, err
		}
		msg, err := validation.ValidateSafeString(p.Message, 1, MaxChatLength, "chat message")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return Chat{Message: msg}, nil

	case TypePing:
		return Ping{}, nil

	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func decodePayload(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return fmt.Errorf("%w: missing payload", ErrInvalidPayload)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// Encode frames an outbound payload.
func Encode(msgType string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	return json.Marshal(Envelope{Type: msgType, Payload: data})
}

// MustEncode is Encode for payload types that always marshal.
func MustEncode(msgType string, payload interface{}) []byte {
	data, err := Encode(msgType, payload)
	if err != nil {
		panic(err)
	}
	return data
}

type ChatMessage struct {
	PlayerID  string `json:"playerId"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

type PlayerLeft struct {
	PlayerID string `json:"playerId"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}

type Pong struct {
	Timestamp int64 `json:"timestamp"`
}
