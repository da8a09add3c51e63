// Package relay speaks the relay websocket protocol: REQ/CLOSE/EVENT from the
// client and EVENT/EOSE/NOTICE/OK/CLOSED from the relay.
package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/alanyoungcy/tradedvm/internal/nostr"
)

// Relay-to-client message labels.
const (
	LabelEvent  = "EVENT"
	LabelEOSE   = "EOSE"
	LabelNotice = "NOTICE"
	LabelOK     = "OK"
	LabelClosed = "CLOSED"
	LabelReq    = "REQ"
	LabelClose  = "CLOSE"
)

var ErrMalformedMessage = errors.New("relay: malformed message")

// Filter selects events in a REQ. Tags maps a single-letter tag name to the
// accepted values and is encoded as "#<name>".
type Filter struct {
	IDs     []string
	Authors []string
	Kinds   []int
	Tags    map[string][]string
	Since   *int64
	Until   *int64
	Limit   int
}

func (f Filter) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, 6+len(f.Tags))
	if len(f.IDs) > 0 {
		m["ids"] = f.IDs
	}
	if len(f.Authors) > 0 {
		m["authors"] = f.Authors
	}
	if len(f.Kinds) > 0 {
		m["kinds"] = f.Kinds
	}
	for name, values := range f.Tags {
		m["#"+name] = values
	}
	if f.Since != nil {
		m["since"] = *f.Since
	}
	if f.Until != nil {
		m["until"] = *f.Until
	}
	if f.Limit > 0 {
		m["limit"] = f.Limit
	}
	return json.Marshal(m)
}

func (f *Filter) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*f = Filter{}
	for key, v := range raw {
		var err error
		switch {
		case key == "ids":
			err = json.Unmarshal(v, &f.IDs)
		case key == "authors":
			err = json.Unmarshal(v, &f.Authors)
		case key == "kinds":
			err = json.Unmarshal(v, &f.Kinds)
		case key == "since":
			err = json.Unmarshal(v, &f.Since)
		case key == "until":
			err = json.Unmarshal(v, &f.Until)
		case key == "limit":
			err = json.Unmarshal(v, &f.Limit)
		case strings.HasPrefix(key, "#") && len(key) > 1:
			var values []string
			if err = json.Unmarshal(v, &values); err == nil {
				if f.Tags == nil {
					f.Tags = map[string][]string{}
				}
				f.Tags[key[1:]] = values
			}
		}
		if err != nil {
			return fmt.Errorf("filter %s: %w", key, err)
		}
	}
	return nil
}

// Matches reports whether ev passes every constraint of f. Relays filter on
// their side; this is used to drop stray events after a resubscribe.
func (f Filter) Matches(ev nostr.Event) bool {
	if len(f.IDs) > 0 && !contains(f.IDs, ev.ID) {
		return false
	}
	if len(f.Authors) > 0 && !contains(f.Authors, ev.PubKey) {
		return false
	}
	if len(f.Kinds) > 0 && !contains(f.Kinds, ev.Kind) {
		return false
	}
	if f.Since != nil && ev.CreatedAt < *f.Since {
		return false
	}
	if f.Until != nil && ev.CreatedAt > *f.Until {
		return false
	}
	for name, values := range f.Tags {
		found := false
		for _, v := range nostr.TagValues(ev.Tags, name) {
			if contains(values, v) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func contains[T comparable](xs []T, x T) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// Message is one decoded relay-to-client frame.
type Message struct {
	Label    string
	SubID    string
	Event    *nostr.Event
	EventID  string
	Accepted bool
	Text     string
}

// ParseMessage decodes a relay frame. Unknown labels are returned with only
// Label set.
func ParseMessage(raw []byte) (Message, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil || len(parts) == 0 {
		return Message{}, ErrMalformedMessage
	}
	var msg Message
	if err := json.Unmarshal(parts[0], &msg.Label); err != nil {
		return Message{}, ErrMalformedMessage
	}

	str := func(i int, dst *string) error {
		if i >= len(parts) {
			return fmt.Errorf("%w: %s missing element %d", ErrMalformedMessage, msg.Label, i)
		}
		if err := json.Unmarshal(parts[i], dst); err != nil {
			return fmt.Errorf("%w: %s element %d: %v", ErrMalformedMessage, msg.Label, i, err)
		}
		return nil
	}

	switch msg.Label {
	case LabelEvent:
		if err := str(1, &msg.SubID); err != nil {
			return Message{}, err
		}
		if len(parts) < 3 {
			return Message{}, fmt.Errorf("%w: EVENT without event", ErrMalformedMessage)
		}
		var ev nostr.Event
		if err := json.Unmarshal(parts[2], &ev); err != nil {
			return Message{}, fmt.Errorf("%w: EVENT: %v", ErrMalformedMessage, err)
		}
		msg.Event = &ev
	case LabelEOSE:
		if err := str(1, &msg.SubID); err != nil {
			return Message{}, err
		}
	case LabelNotice:
		if err := str(1, &msg.Text); err != nil {
			return Message{}, err
		}
	case LabelClosed:
		if err := str(1, &msg.SubID); err != nil {
			return Message{}, err
		}
		if len(parts) > 2 {
			_ = json.Unmarshal(parts[2], &msg.Text)
		}
	case LabelOK:
		if err := str(1, &msg.EventID); err != nil {
			return Message{}, err
		}
		if len(parts) < 3 || json.Unmarshal(parts[2], &msg.Accepted) != nil {
			return Message{}, fmt.Errorf("%w: OK without status", ErrMalformedMessage)
		}
		if len(parts) > 3 {
			_ = json.Unmarshal(parts[3], &msg.Text)
		}
	}
	return msg, nil
}

// reqFrame builds ["REQ", subID, filters...].
func reqFrame(subID string, filters []Filter) ([]byte, error) {
	frame := make([]any, 0, 2+len(filters))
	frame = append(frame, LabelReq, subID)
	for _, f := range filters {
		frame = append(frame, f)
	}
	return json.Marshal(frame)
}

func closeFrame(subID string) ([]byte, error) {
	return json.Marshal([]any{LabelClose, subID})
}

func eventFrame(ev nostr.Event) ([]byte, error) {
	return json.Marshal([]any{LabelEvent, ev})
}
