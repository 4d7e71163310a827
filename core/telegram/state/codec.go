package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// ErrUnknownKind reports a persisted state whose kind is not registered.
var ErrUnknownKind = errors.New("state: unknown kind")

// Codec serializes State values into a {"kind","data"} envelope so durable
// stores can rebuild the concrete variant.
type Codec struct {
	mu    sync.RWMutex
	kinds map[Kind]reflect.Type
}

type envelope struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewCodec returns a codec that already knows Empty.
func NewCodec() *Codec {
	c := &Codec{kinds: make(map[Kind]reflect.Type)}
	c.kinds[KindEmpty] = reflect.TypeOf(Empty{})
	return c
}

// RegisterKind adds the value type S to c.
func RegisterKind[S State](c *Codec) error {
	var zero S
	typ := reflect.TypeOf(zero)
	if typ == nil || typ.Kind() == reflect.Pointer {
		return fmt.Errorf("state: kind %T must be a value type", zero)
	}
	kind := zero.Kind()
	if kind == "" || kind == AnyState {
		return fmt.Errorf("state: invalid kind %q for %s", kind, typ)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.kinds[kind]; ok && prev != typ {
		return fmt.Errorf("state: kind %q used by %s and %s", kind, prev, typ)
	}
	c.kinds[kind] = typ
	return nil
}

// Marshal encodes st.
func (c *Codec) Marshal(st State) ([]byte, error) {
	if st == nil {
		st = Empty{}
	}
	c.mu.RLock()
	typ, ok := c.kinds[st.Kind()]
	c.mu.RUnlock()
	if !ok || typ != reflect.TypeOf(st) {
		return nil, fmt.Errorf("%w: %q (%T)", ErrUnknownKind, st.Kind(), st)
	}
	data, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("state: marshal %q: %w", st.Kind(), err)
	}
	return json.Marshal(envelope{Kind: st.Kind(), Data: data})
}

// Unmarshal decodes an envelope produced by Marshal.
func (c *Codec) Unmarshal(raw []byte) (State, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("state: decode envelope: %w", err)
	}
	c.mu.RLock()
	typ, ok := c.kinds[env.Kind]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
	}
	ptr := reflect.New(typ)
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, ptr.Interface()); err != nil {
			return nil, fmt.Errorf("state: decode %q: %w", env.Kind, err)
		}
	}
	st, ok := ptr.Elem().Interface().(State)
	if !ok {
		return nil, fmt.Errorf("%w: %q does not implement State", ErrUnknownKind, env.Kind)
	}
	return st, nil
}
