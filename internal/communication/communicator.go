package communication

import (
	"context"
	"reflect"
)

type Message struct {
	From    string `json:"from"`
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type SandCode string

const (
	CodeOK          SandCode = "OK"
	CodeBadRequest  SandCode = "BAD_REQUEST"
	CodeNotFound    SandCode = "NOT_FOUND"
	CodeTooMany     SandCode = "TOO_MANY"
	CodeInternal    SandCode = "INTERNAL"
	CodeUnavailable SandCode = "UNAVAILABLE"
)

type Response struct {
	Code SandCode `json:"code"`
	Body []byte   `json:"body,omitempty"`
}

type MessageHandler func(msg Message) (*Response, error)

type Communicator interface {
	Start(handler MessageHandler) error
	Stop() error
	Send(ctx context.Context, to string, msg Message) (*Response, error)
	Address() string
	RegisterPayloadType(msgType string, payloadType reflect.Type)
}
