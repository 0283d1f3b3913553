package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// SignalType is the "type" tag of a signaling frame
type SignalType string

const (
	SignalTypeHello   SignalType = "hello"
	SignalTypeWelcome SignalType = "welcome"
	SignalTypeJoin    SignalType = "join"
	SignalTypeLeave   SignalType = "leave"
	SignalTypeOffer   SignalType = "offer"
	SignalTypeAnswer  SignalType = "answer"
	SignalTypeICE     SignalType = "ice"
	SignalTypePing    SignalType = "ping"
	SignalTypePong    SignalType = "pong"
	SignalTypeError   SignalType = "error"
)

const (
	// ServerID is the "from" value of frames generated by the server itself
	ServerID = "server"

	// ProtocolVersion is announced in every welcome frame
	ProtocolVersion = "1.0"
)

var (
	ErrUnknownType  = errors.New("unknown message type")
	ErrMissingField = errors.New("missing required field")
	ErrNoPayload    = errors.New("message has no payload")
)

// Payload is the body of a signaling frame. The set of implementations is
// closed: only the types in this file satisfy it.
type Payload interface {
	Type() SignalType
	isPayload()
}

// Directed is implemented by payloads addressed to a single peer
type Directed interface {
	Payload
	Target() string
}

type Hello struct {
	Version string `json:"version"`
	Client  string `json:"client"`
}

type Welcome struct {
	Version string `json:"version"`
	PeerID  string `json:"peer_id"`
}

type Join struct {
	PeerID string `json:"peer_id"`
}

type Leave struct {
	PeerID string `json:"peer_id"`
}

type Offer struct {
	To  string `json:"to"`
	SDP string `json:"sdp"`
}

type Answer struct {
	To  string `json:"to"`
	SDP string `json:"sdp"`
}

type ICE struct {
	To        string `json:"to"`
	Candidate string `json:"candidate"`
}

type Ping struct{}

type Pong struct{}

// Error tells a client why the server rejected or closed its connection
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (Hello) Type() SignalType   { return SignalTypeHello }
func (Welcome) Type() SignalType { return SignalTypeWelcome }
func (Join) Type() SignalType    { return SignalTypeJoin }
func (Leave) Type() SignalType   { return SignalTypeLeave }
func (Offer) Type() SignalType   { return SignalTypeOffer }
func (Answer) Type() SignalType  { return SignalTypeAnswer }
func (ICE) Type() SignalType     { return SignalTypeICE }
func (Ping) Type() SignalType    { return SignalTypePing }
func (Pong) Type() SignalType    { return SignalTypePong }
func (Error) Type() SignalType   { return SignalTypeError }

func (Hello) isPayload()   {}
func (Welcome) isPayload() {}
func (Join) isPayload()    {}
func (Leave) isPayload()   {}
func (Offer) isPayload()   {}
func (Answer) isPayload()  {}
func (ICE) isPayload()     {}
func (Ping) isPayload()    {}
func (Pong) isPayload()    {}
func (Error) isPayload()   {}

func (o Offer) Target() string  { return o.To }
func (a Answer) Target() string { return a.To }
func (i ICE) Target() string    { return i.To }

// SignalMessage is one frame on the wire. From is always assigned by the
// server before a frame is re-published.
type SignalMessage struct {
	From    string
	Payload Payload
}

// NewServerMessage wraps a payload generated by the server
func NewServerMessage(p Payload) SignalMessage {
	return SignalMessage{From: ServerID, Payload: p}
}

// Type returns the tag of the payload, or "" if there is none
func (m SignalMessage) Type() SignalType {
	if m.Payload == nil {
		return ""
	}
	return m.Payload.Type()
}

type envelope struct {
	Type SignalType `json:"type"`
	From string     `json:"from"`
}

// MarshalJSON flattens the payload fields next to "type" and "from"
func (m SignalMessage) MarshalJSON() ([]byte, error) {
	if m.Payload == nil {
		return nil, ErrNoPayload
	}

	head, err := json.Marshal(envelope{Type: m.Payload.Type(), From: m.From})
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(m.Payload)
	if err != nil {
		return nil, err
	}
	if bytes.Equal(body, []byte("{}")) {
		return head, nil
	}

	out := make([]byte, 0, len(head)+len(body))
	out = append(out, head[:len(head)-1]...)
	out = append(out, ',')
	out = append(out, body[1:]...)
	return out, nil
}

// UnmarshalJSON decodes a flattened frame. Unknown types and frames missing a
// required field are rejected.
func (m *SignalMessage) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var head envelope
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}

	codec, ok := payloadCodecs[head.Type]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownType, head.Type)
	}
	for _, name := range codec.required {
		if _, ok := fields[name]; !ok {
			return fmt.Errorf("%w: %s.%s", ErrMissingField, head.Type, name)
		}
	}

	p, err := codec.decode(data)
	if err != nil {
		return err
	}
	m.From = head.From
	m.Payload = p
	return nil
}

type payloadCodec struct {
	required []string
	decode   func([]byte) (Payload, error)
}

var payloadCodecs = map[SignalType]payloadCodec{
	SignalTypeHello:   {[]string{"version", "client"}, decodeAs[Hello]},
	SignalTypeWelcome: {[]string{"version", "peer_id"}, decodeAs[Welcome]},
	SignalTypeJoin:    {[]string{"peer_id"}, decodeAs[Join]},
	SignalTypeLeave:   {[]string{"peer_id"}, decodeAs[Leave]},
	SignalTypeOffer:   {[]string{"to", "sdp"}, decodeAs[Offer]},
	SignalTypeAnswer:  {[]string{"to", "sdp"}, decodeAs[Answer]},
	SignalTypeICE:     {[]string{"to", "candidate"}, decodeAs[ICE]},
	SignalTypePing:    {nil, decodeAs[Ping]},
	SignalTypePong:    {nil, decodeAs[Pong]},
	SignalTypeError:   {[]string{"code", "message"}, decodeAs[Error]},
}

func decodeAs[T Payload](data []byte) (Payload, error) {
	var p T
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return p, nil
}
