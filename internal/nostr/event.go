// Package nostr defines the signed-event record exchanged with relays and
// small helpers for working with its tag lists. Signatures are carried but
// never created or checked here.
package nostr

import "strings"

const (
	KindProfile = 0
	KindListing = 30402
)

// Tag is an ordered list of strings; element 0 is the key.
type Tag []string

// Key returns the tag key, or "" for an empty tag.
func (t Tag) Key() string {
	if len(t) == 0 {
		return ""
	}
	return t[0]
}

// Value returns element i, or "" and false when the tag is too short.
func (t Tag) Value(i int) (string, bool) {
	if i < 0 || i >= len(t) {
		return "", false
	}
	return t[i], true
}

// Event is a signed relay event.
type Event struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// FirstTag returns the first tag with key.
func (e Event) FirstTag(key string) (Tag, bool) {
	return FindTag(e.Tags, key)
}

// WireParts is the unsigned portion of an event produced by an encoder.
type WireParts struct {
	Kind    int        `json:"kind"`
	Content string     `json:"content"`
	Tags    [][]string `json:"tags"`
}

// FindTag returns the first tag whose key equals key.
func FindTag(tags [][]string, key string) (Tag, bool) {
	for _, t := range tags {
		if len(t) > 0 && t[0] == key {
			return Tag(t), true
		}
	}
	return nil, false
}

// TagValues returns element 1 of every tag with key.
func TagValues(tags [][]string, key string) []string {
	var out []string
	for _, t := range tags {
		if len(t) > 1 && t[0] == key {
			out = append(out, t[1])
		}
	}
	return out
}

// IsHex64 reports whether s looks like a 32-byte lowercase hex id or pubkey.
func IsHex64(s string) bool {
	if len(s) != 64 {
		return false
	}
	return strings.Trim(s, "0123456789abcdef") == ""
}
