// Package callbacks encodes typed callback queries into Telegram callback data
// and decodes them back.
//
// A query travels as "\f<tag>|<json>", the layout telebot produces for inline
// buttons with a Unique set. Telegram caps the whole string at 64 bytes.
package callbacks

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// MaxDataLen is the Telegram limit for callback_data in bytes.
const MaxDataLen = 64

var (
	// ErrUnrecognized reports callback data that this codec did not produce.
	ErrUnrecognized = errors.New("callbacks: unrecognized query")
	// ErrPayloadTooLarge reports a query that does not fit into callback_data.
	ErrPayloadTooLarge = errors.New("callbacks: payload exceeds 64 bytes")
	// ErrDuplicateTag reports two query types sharing a tag.
	ErrDuplicateTag = errors.New("callbacks: duplicate query tag")
)

// Query is a typed callback payload. Tag must be constant for the type and
// must not contain '|'.
type Query interface {
	Tag() string
}

// Codec tracks the registered query types by tag.
type Codec struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
}

// NewCodec returns an empty codec.
func NewCodec() *Codec {
	return &Codec{types: make(map[string]reflect.Type)}
}

// Register adds Q to the codec. Registering the same type twice is a no-op;
// registering a different type under an existing tag fails.
func Register[Q Query](c *Codec) error {
	var zero Q
	tag := zero.Tag()
	if tag == "" || strings.ContainsAny(tag, "|\f") {
		return fmt.Errorf("callbacks: invalid tag %q for %T", tag, zero)
	}
	typ := reflect.TypeOf(zero)

	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.types[tag]; ok {
		if prev == typ {
			return nil
		}
		return fmt.Errorf("%w: %q used by %s and %s", ErrDuplicateTag, tag, prev, typ)
	}
	c.types[tag] = typ
	return nil
}

// Known reports whether a query type is registered under tag.
func (c *Codec) Known(tag string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.types[tag]
	return ok
}

// Encode returns the unique and data parts for an inline button carrying q.
// Queries without fields encode to empty data.
func (c *Codec) Encode(q Query) (unique, data string, err error) {
	if q == nil {
		return "", "", errors.New("callbacks: nil query")
	}
	tag := q.Tag()
	c.mu.RLock()
	typ, ok := c.types[tag]
	c.mu.RUnlock()
	if !ok || typ != reflect.TypeOf(q) {
		return "", "", fmt.Errorf("callbacks: query %T is not registered", q)
	}

	raw, err := json.Marshal(q)
	if err != nil {
		return "", "", fmt.Errorf("callbacks: encode %q: %w", tag, err)
	}
	if string(raw) != "{}" {
		data = string(raw)
	}
	if size := wireLen(tag, data); size > MaxDataLen {
		return "", "", fmt.Errorf("%w: %q needs %d bytes", ErrPayloadTooLarge, tag, size)
	}
	return tag, data, nil
}

// Decode parses data produced by Encode for a query of type Q. Data for a
// different tag, foreign JSON, or unknown fields yield ErrUnrecognized.
func Decode[Q Query](tag, data string) (Q, error) {
	var q Q
	if tag != q.Tag() {
		return q, fmt.Errorf("%w: tag %q", ErrUnrecognized, tag)
	}
	if data == "" {
		return q, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&q); err != nil {
		var zero Q
		return zero, fmt.Errorf("%w: %q: %v", ErrUnrecognized, tag, err)
	}
	if dec.More() {
		var zero Q
		return zero, fmt.Errorf("%w: %q: trailing data", ErrUnrecognized, tag)
	}
	return q, nil
}

// wireLen is the length of "\f<tag>|<data>" as telebot puts it on the wire.
func wireLen(tag, data string) int {
	n := 1 + len(tag)
	if data != "" {
		n += 1 + len(data)
	}
	return n
}
