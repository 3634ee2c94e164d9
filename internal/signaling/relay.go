// Package signaling relays WebRTC negotiation messages between two
// connections. The server never looks inside a session description or ICE
// candidate; it only checks that a target is named and forwards the opaque
// blob with the sender's id attached.
package signaling

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/Tyrowin/talkrooms/internal/presence"
)

// Sender delivers one event to one connection.
type Sender interface {
	ToOne(conn presence.ConnID, event string, payload any) bool
}

// Description is the inbound payload of offer and answer.
type Description struct {
	Target presence.ConnID `json:"target" validate:"required"`
	SDP    json.RawMessage `json:"sdp" validate:"required"`
}

// Candidate is the inbound payload of ice-candidate.
type Candidate struct {
	Target    presence.ConnID `json:"target" validate:"required"`
	Candidate json.RawMessage `json:"candidate" validate:"required"`
}

// ForwardedDescription is what the target receives for offer and answer.
type ForwardedDescription struct {
	SDP    json.RawMessage `json:"sdp"`
	Sender presence.ConnID `json:"sender"`
}

// ForwardedCandidate is what the target receives for ice-candidate.
type ForwardedCandidate struct {
	Candidate json.RawMessage `json:"candidate"`
	Sender    presence.ConnID `json:"sender"`
}

// Relay implements presence.Relay.
type Relay struct {
	out      Sender
	validate *validator.Validate
	log      *slog.Logger
}

// NewRelay returns a Relay that forwards through out.
func NewRelay(out Sender, log *slog.Logger) *Relay {
	return &Relay{out: out, validate: validator.New(), log: log}
}

// Forward sends event from one connection to the target named in data. A
// target that is gone is not an error; the offer simply goes nowhere.
func (r *Relay) Forward(from presence.ConnID, event string, data json.RawMessage) error {
	var (
		target  presence.ConnID
		payload any
	)
	switch event {
	case presence.EventOffer, presence.EventAnswer:
		var d Description
		if err := r.decode(event, data, &d); err != nil {
			return err
		}
		target, payload = d.Target, ForwardedDescription{SDP: d.SDP, Sender: from}
	case presence.EventICECandidate:
		var c Candidate
		if err := r.decode(event, data, &c); err != nil {
			return err
		}
		target, payload = c.Target, ForwardedCandidate{Candidate: c.Candidate, Sender: from}
	default:
		return fmt.Errorf("%q: %w", event, presence.ErrUnknownEvent)
	}

	if target == from {
		return fmt.Errorf("%s to self: %w", event, presence.ErrMalformedRequest)
	}
	if !r.out.ToOne(target, event, payload) {
		r.log.Debug("Signaling target unavailable", "event", event, "from", from, "target", target)
	}
	return nil
}

func (r *Relay) decode(event string, data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%s: %w: missing data", event, presence.ErrMalformedRequest)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s: %w: %v", event, presence.ErrMalformedRequest, err)
	}
	if err := r.validate.Struct(v); err != nil {
		return fmt.Errorf("%s: %w: %v", event, presence.ErrMalformedRequest, err)
	}
	return nil
}
