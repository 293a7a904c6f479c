// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

// Package event defines the communication event record shared by the
// store, the feed, and the recency list. An event is one call or
// message on one local account with one remote correspondent; the
// core only reorders and filters events, never mutates their identity
// or timestamps.
package event

import (
	"fmt"
	"time"

	"github.com/commtrail/commtrail/lib/recipient"
)

// Type identifies what kind of communication an event records. Values
// are stable wire and storage constants.
type Type int

const (
	TypeUnknown Type = 0

	// TypeIM is an instant message on an online account.
	TypeIM Type = 1

	// TypeSMS is a short text message.
	TypeSMS Type = 2

	// TypeCall is a voice call.
	TypeCall Type = 3

	// TypeVoicemail is a voicemail deposit notification.
	TypeVoicemail Type = 4

	// TypeStatusMessage is a presence or status broadcast.
	TypeStatusMessage Type = 5

	// TypeMMS is a multimedia message.
	TypeMMS Type = 6
)

// String returns the storage name of the type.
func (t Type) String() string {
	switch t {
	case TypeIM:
		return "im"
	case TypeSMS:
		return "sms"
	case TypeCall:
		return "call"
	case TypeVoicemail:
		return "voicemail"
	case TypeStatusMessage:
		return "status"
	case TypeMMS:
		return "mms"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// ParseType parses a storage name back to a type.
func ParseType(name string) (Type, error) {
	switch name {
	case "im":
		return TypeIM, nil
	case "sms":
		return TypeSMS, nil
	case "call":
		return TypeCall, nil
	case "voicemail":
		return TypeVoicemail, nil
	case "status":
		return TypeStatusMessage, nil
	case "mms":
		return TypeMMS, nil
	default:
		return TypeUnknown, fmt.Errorf("unknown event type: %q", name)
	}
}

// MarshalText renders the type by its storage name in JSON output.
// CBOR keeps the integer form.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses a storage name.
func (t *Type) UnmarshalText(text []byte) error {
	parsed, err := ParseType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Category groups event types for filtering. A category value used as
// a filter is a bitmask; CategoryAny (zero) passes everything.
type Category uint32

const (
	CategoryAny Category = 0

	CategoryVoicecall           Category = 1 << 0
	CategoryVoicemail           Category = 1 << 1
	CategoryShortMessaging      Category = 1 << 2
	CategoryInstantMessaging    Category = 1 << 3
	CategoryMultimediaMessaging Category = 1 << 4
	CategoryOther               Category = 1 << 5
)

// Category derives the event category from the type.
func (t Type) Category() Category {
	switch t {
	case TypeCall:
		return CategoryVoicecall
	case TypeVoicemail:
		return CategoryVoicemail
	case TypeSMS:
		return CategoryShortMessaging
	case TypeIM:
		return CategoryInstantMessaging
	case TypeMMS:
		return CategoryMultimediaMessaging
	default:
		return CategoryOther
	}
}

// Matches reports whether the category passes a filter mask.
func (c Category) Matches(mask Category) bool {
	return mask == CategoryAny || c&mask != 0
}

// Types returns the event types belonging to the categories in the
// mask, in stable order. Used to fold a category filter into storage
// queries. CategoryAny returns nil, meaning no type restriction.
func (c Category) Types() []Type {
	if c == CategoryAny {
		return nil
	}
	var types []Type
	for _, t := range []Type{TypeIM, TypeSMS, TypeCall, TypeVoicemail, TypeStatusMessage, TypeMMS} {
		if t.Category().Matches(c) {
			types = append(types, t)
		}
	}
	return types
}

// String names the categories in the mask, comma separated, "any" for
// the empty mask.
func (c Category) String() string {
	if c == CategoryAny {
		return "any"
	}
	names := ""
	appendName := func(bit Category, name string) {
		if c&bit == 0 {
			return
		}
		if names != "" {
			names += ","
		}
		names += name
	}
	appendName(CategoryVoicecall, "voicecall")
	appendName(CategoryVoicemail, "voicemail")
	appendName(CategoryShortMessaging, "sms")
	appendName(CategoryInstantMessaging, "im")
	appendName(CategoryMultimediaMessaging, "mms")
	appendName(CategoryOther, "other")
	return names
}

// ParseCategory parses a single category name.
func ParseCategory(name string) (Category, error) {
	switch name {
	case "any":
		return CategoryAny, nil
	case "voicecall":
		return CategoryVoicecall, nil
	case "voicemail":
		return CategoryVoicemail, nil
	case "sms":
		return CategoryShortMessaging, nil
	case "im":
		return CategoryInstantMessaging, nil
	case "mms":
		return CategoryMultimediaMessaging, nil
	case "other":
		return CategoryOther, nil
	default:
		return CategoryAny, fmt.Errorf("unknown event category: %q", name)
	}
}

// ParseCategories folds a list of category names into one mask. An
// empty list or an explicit "any" yields CategoryAny.
func ParseCategories(names []string) (Category, error) {
	var mask Category
	for _, name := range names {
		c, err := ParseCategory(name)
		if err != nil {
			return CategoryAny, err
		}
		if c == CategoryAny {
			return CategoryAny, nil
		}
		mask |= c
	}
	return mask, nil
}

// Direction records which side initiated the event.
type Direction int

const (
	DirectionUnknown  Direction = 0
	DirectionInbound  Direction = 1
	DirectionOutbound Direction = 2
)

// String returns the storage name of the direction.
func (d Direction) String() string {
	switch d {
	case DirectionInbound:
		return "in"
	case DirectionOutbound:
		return "out"
	default:
		return "unknown"
	}
}

// ParseDirection parses a storage name back to a direction.
func ParseDirection(name string) (Direction, error) {
	switch name {
	case "in":
		return DirectionInbound, nil
	case "out":
		return DirectionOutbound, nil
	case "unknown":
		return DirectionUnknown, nil
	default:
		return DirectionUnknown, fmt.Errorf("unknown direction: %q", name)
	}
}

// MarshalText renders the direction by its storage name in JSON
// output. CBOR keeps the integer form.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText parses a storage name.
func (d *Direction) UnmarshalText(text []byte) error {
	parsed, err := ParseDirection(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Event is one communication event. The exported address fields are
// the wire and storage representation; Recipient is the in-memory
// resolution handle attached at decode boundaries and never
// serialized.
type Event struct {
	// ID is the store-assigned identifier, unique per event.
	ID int64 `json:"id"`

	Type      Type      `json:"type"`
	StartTime time.Time `json:"start_time"`

	// EndTime is the recency timestamp: when the call ended or the
	// message was sent or received. All ordering uses EndTime.
	EndTime time.Time `json:"end_time"`

	Direction Direction `json:"direction"`
	IsRead    bool      `json:"is_read"`

	// LocalUID and RemoteUID identify the conversation: the local
	// account and the correspondent address.
	LocalUID  string `json:"local_uid"`
	RemoteUID string `json:"remote_uid"`

	// FreeText is the message body or call annotation.
	FreeText string `json:"free_text,omitempty"`

	// Recipient is the interned resolution handle for
	// (LocalUID, RemoteUID). Nil until Attach runs.
	Recipient *recipient.Recipient `json:"-"`
}

// Category derives the event's category from its type.
func (e Event) Category() Category {
	return e.Type.Category()
}

// ContactID returns the resolved contact of the event's recipient, 0
// when unattached, unresolved, or resolved to nothing.
func (e Event) ContactID() int {
	if e.Recipient == nil {
		return 0
	}
	return e.Recipient.ContactID()
}

// Attach populates the recipient handle from the address fields via
// the registry. Safe to call repeatedly; decode boundaries call it on
// every event before handing it to the core.
func (e *Event) Attach(reg *recipient.Registry) {
	e.Recipient = reg.Recipient(e.LocalUID, e.RemoteUID)
}

// AttachAll attaches every event in the slice.
func AttachAll(events []Event, reg *recipient.Registry) {
	for i := range events {
		events[i].Attach(reg)
	}
}
