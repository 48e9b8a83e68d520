package host

import (
	"fmt"
	"strings"

	"github.com/roach88/gall/internal/script"
)

// Hashtable is the value of an @{...} literal. String keys compare without
// regard to case; insertion order is kept so output is deterministic.
type Hashtable struct {
	keys   []any
	values map[string]any
}

func NewHashtable() *Hashtable {
	return &Hashtable{values: make(map[string]any)}
}

func hashKey(k any) string {
	switch k := script.Unwrap(k).(type) {
	case string:
		return "s:" + strings.ToLower(k)
	case int:
		return fmt.Sprintf("n:%d", k)
	case int64:
		return fmt.Sprintf("n:%d", k)
	case float64:
		return fmt.Sprintf("f:%v", k)
	case nil:
		return "nil"
	default:
		return fmt.Sprintf("%T:%v", k, k)
	}
}

// Set adds or replaces an entry.
func (h *Hashtable) Set(k, v any) {
	key := hashKey(k)
	if _, ok := h.values[key]; !ok {
		h.keys = append(h.keys, script.Unwrap(k))
	}
	h.values[key] = v
}

// Add inserts a new entry and fails if the key is already present.
func (h *Hashtable) Add(k, v any) error {
	if _, ok := h.values[hashKey(k)]; ok {
		return newError(nil, ErrCodeRuntime,
			"Item has already been added. Key in dictionary: '%s'  Key being added: '%s'", toString(k), toString(k))
	}
	h.Set(k, v)
	return nil
}

func (h *Hashtable) Get(k any) (any, bool) {
	v, ok := h.values[hashKey(k)]
	return v, ok
}

func (h *Hashtable) Remove(k any) {
	key := hashKey(k)
	if _, ok := h.values[key]; !ok {
		return
	}
	delete(h.values, key)
	for i, existing := range h.keys {
		if hashKey(existing) == key {
			h.keys = append(h.keys[:i], h.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (h *Hashtable) Keys() []any { return append([]any(nil), h.keys...) }

// Values returns the values in key order.
func (h *Hashtable) Values() []any {
	out := make([]any, len(h.keys))
	for i, k := range h.keys {
		out[i] = h.values[hashKey(k)]
	}
	return out
}

func (h *Hashtable) Len() int { return len(h.keys) }

func (h *Hashtable) clone() *Hashtable {
	c := NewHashtable()
	for _, k := range h.keys {
		c.Set(k, h.values[hashKey(k)])
	}
	return c
}

// ScriptBlockValue is the value of a {...} expression.
type ScriptBlockValue struct {
	Body *script.ScriptBlock
}

// String returns the text between the braces.
func (b *ScriptBlockValue) String() string {
	text := b.Body.String()
	if strings.HasPrefix(text, "{") && strings.HasSuffix(text, "}") {
		return text[1 : len(text)-1]
	}
	return text
}

// ErrorRecord is bound to $_ inside catch and trap blocks.
type ErrorRecord struct {
	Err *RuntimeError
}

func (r *ErrorRecord) String() string { return r.Err.Message }

// Exception is the value of $_.Exception.
type Exception struct {
	Message string
	Type    string
}

func (e *Exception) String() string { return e.Message }
