package journal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Content is the value of one section: either a single string or an ordered
// list of strings. The zero value is empty.
type Content struct {
	items []string
	seq   bool
}

// Scalar returns single-string content.
func Scalar(s string) Content {
	return Content{items: []string{s}}
}

// Sequence returns list content. A sequence stays a sequence even with one item.
func Sequence(items ...string) Content {
	return Content{items: append([]string(nil), items...), seq: true}
}

// IsEmpty reports whether the content holds no non-blank value.
func (c Content) IsEmpty() bool {
	for _, s := range c.items {
		if strings.TrimSpace(s) != "" {
			return false
		}
	}
	return true
}

// IsSequence reports whether the content is a list.
func (c Content) IsSequence() bool {
	return c.seq
}

// Len is 1 for a scalar, the item count for a sequence and 0 when empty.
func (c Content) Len() int {
	return len(c.items)
}

// Values returns a copy of the stored strings in order.
func (c Content) Values() []string {
	return append([]string(nil), c.items...)
}

// Append adds a fragment. Empty becomes a scalar, a scalar becomes a
// two-item sequence with the existing value first, a sequence grows.
// The receiver is not modified.
func (c Content) Append(fragment string) Content {
	switch {
	case len(c.items) == 0 && !c.seq:
		return Scalar(fragment)
	default:
		items := make([]string, 0, len(c.items)+1)
		items = append(items, c.items...)
		items = append(items, fragment)
		return Content{items: items, seq: true}
	}
}

// Clone returns a copy that shares no storage with c.
func (c Content) Clone() Content {
	return Content{items: c.Values(), seq: c.seq}
}

// String joins the values with "; ".
func (c Content) String() string {
	return strings.Join(c.items, "; ")
}

// MarshalJSON encodes a scalar as a string and a sequence as an array.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.seq {
		if c.items == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(c.items)
	}
	if len(c.items) == 0 {
		return []byte("null"), nil
	}
	return json.Marshal(c.items[0])
}

// UnmarshalJSON accepts a string, an array of strings or null.
func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*c = Content{}
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Scalar(s)
		return nil
	case len(data) > 0 && data[0] == '[':
		var items []string
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("section content: %w", err)
		}
		*c = Sequence(items...)
		return nil
	default:
		return fmt.Errorf("section content must be a string or an array of strings")
	}
}

// CloneSections deep-copies a section map, dropping empty content.
func CloneSections(in map[string]Content) map[string]Content {
	out := make(map[string]Content, len(in))
	for name, c := range in {
		if c.IsEmpty() {
			continue
		}
		out[name] = c.Clone()
	}
	return out
}
