package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// FlexTime parses an absolute instant expressed either as milliseconds
// since the Unix epoch or as RFC3339 text, per §6: "both representations
// must be parseable."
type FlexTime time.Time

func (t FlexTime) Time() time.Time { return time.Time(t) }

func (t *FlexTime) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		*t = FlexTime{}
		return nil
	}

	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		*t = FlexTime(time.UnixMilli(ms))
		return nil
	}

	var text string
	if err := json.Unmarshal(b, &text); err != nil {
		return fmt.Errorf("expiresAt: not a number or string: %w", err)
	}
	parsed, err := time.Parse(time.RFC3339, text)
	if err != nil {
		return fmt.Errorf("expiresAt: unparseable time %q: %w", text, err)
	}
	*t = FlexTime(parsed)
	return nil
}

func (t FlexTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).UnixMilli())
}

// Event names, both inbound (server -> client) and outbound.
const (
	EventInviteIncoming  = "invite:incoming"
	EventInviteSuccess   = "invite:success"
	EventInviteError     = "invite:error"
	EventInviteDeclined  = "invite:declined"
	EventInviteCancelled = "invite:cancelled"
	EventInviteExpired   = "invite:expired"
	EventCallStart       = "call:start"
	EventCallEnd         = "call:end"

	EventOutboundInvite  = "invite"
	EventOutboundAccept  = "invite:accept"
	EventOutboundDecline = "invite:decline"
	EventOutboundCancel  = "invite:cancel"
	EventOutboundCallEnd = "call:end"
)

// InviteIncoming is the invite:incoming payload (§4.2).
type InviteIncoming struct {
	InviteID         string         `json:"inviteId"`
	CallerID         string         `json:"callerId"`
	CallerName       string         `json:"callerName"`
	CallerProfilePic string         `json:"callerProfilePic,omitempty"`
	Metadata         map[string]any `json:"metadata"`
	ExpiresAt        FlexTime       `json:"expiresAt"`
	CallHistoryID    string         `json:"callHistoryId,omitempty"`
}

func (p InviteIncoming) Validate() error {
	if p.InviteID == "" {
		return errors.New("invite:incoming missing inviteId")
	}
	if p.CallerID == "" {
		return errors.New("invite:incoming missing callerId")
	}
	return nil
}

// AutoAccept reports whether the match-flow auto-accept flag (§4.3 rule 8)
// is set in the invitation's metadata.
func (p InviteIncoming) AutoAccept() bool {
	if p.Metadata == nil {
		return false
	}
	v, ok := p.Metadata["autoAccept"]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// InviteSuccess is the invite:success payload.
type InviteSuccess struct {
	InviteID      string `json:"inviteId"`
	ReceiverID    string `json:"receiverId"`
	CallHistoryID string `json:"callHistoryId,omitempty"`
}

func (p InviteSuccess) Validate() error {
	if p.InviteID == "" {
		return errors.New("invite:success missing inviteId")
	}
	return nil
}

// InviteError is the invite:error payload.
type InviteError struct {
	Error string `json:"error"`
}

func (p InviteError) Validate() error {
	if p.Error == "" {
		return errors.New("invite:error missing error")
	}
	return nil
}

// InviteDeclined is the invite:declined payload.
type InviteDeclined struct {
	InviteID   string `json:"inviteId"`
	ReceiverID string `json:"receiverId,omitempty"`
}

func (p InviteDeclined) Validate() error {
	if p.InviteID == "" {
		return errors.New("invite:declined missing inviteId")
	}
	return nil
}

// InviteCancelled is the invite:cancelled payload.
type InviteCancelled struct {
	InviteID    string `json:"inviteId"`
	CancelledBy string `json:"cancelledBy,omitempty"`
}

func (p InviteCancelled) Validate() error {
	if p.InviteID == "" {
		return errors.New("invite:cancelled missing inviteId")
	}
	return nil
}

// InviteExpired is the invite:expired payload.
type InviteExpired struct {
	InviteID string `json:"inviteId"`
}

func (p InviteExpired) Validate() error {
	if p.InviteID == "" {
		return errors.New("invite:expired missing inviteId")
	}
	return nil
}

// CallStart is the call:start payload.
type CallStart struct {
	CallID        string         `json:"callId"`
	CallerID      string         `json:"callerId"`
	ReceiverID    string         `json:"receiverId"`
	Metadata      map[string]any `json:"metadata"`
	CallHistoryID string         `json:"callHistoryId,omitempty"`
}

func (p CallStart) Validate() error {
	if p.CallID == "" {
		return errors.New("call:start missing callId")
	}
	if p.CallerID == "" || p.ReceiverID == "" {
		return errors.New("call:start missing callerId or receiverId")
	}
	return nil
}

// IsVideo reports whether metadata requests video.
func (p CallStart) IsVideo() bool {
	if p.Metadata == nil {
		return false
	}
	v, _ := p.Metadata["isVideo"].(bool)
	return v
}

// CallEnd is the call:end payload.
type CallEnd struct {
	CallID  string `json:"callId"`
	Reason  string `json:"reason,omitempty"`
	EndedBy string `json:"endedBy,omitempty"`
}

func (p CallEnd) Validate() error {
	if p.CallID == "" {
		return errors.New("call:end missing callId")
	}
	return nil
}
