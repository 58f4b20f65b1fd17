package domain

import "encoding/json"

// ChangePayload holds the JSON image of an entity before or after a change.
// The zero value is "absent": creates have no Before, deletes have no After.
type ChangePayload struct {
	raw json.RawMessage
}

// NewChangePayload copies raw so later writes to the caller's slice do not leak in.
func NewChangePayload(raw json.RawMessage) ChangePayload {
	if raw == nil {
		return ChangePayload{}
	}
	cp := make(json.RawMessage, len(raw))
	copy(cp, raw)
	return ChangePayload{raw: cp}
}

// PayloadOf marshals value into a payload. Entity types in this package always
// marshal, so a failure here is a programming error and panics.
func PayloadOf[T any](value T) ChangePayload {
	raw, err := json.Marshal(value)
	if err != nil {
		panic("domain: marshal change payload: " + err.Error())
	}
	return ChangePayload{raw: raw}
}

// Defined reports whether the payload carries an entity image.
func (p ChangePayload) Defined() bool { return len(p.raw) > 0 }

// Raw returns a copy of the JSON bytes, or nil when undefined.
func (p ChangePayload) Raw() json.RawMessage {
	if len(p.raw) == 0 {
		return nil
	}
	cp := make(json.RawMessage, len(p.raw))
	copy(cp, p.raw)
	return cp
}

// DecodePayload unmarshals p into a T. ok is false when p is undefined or
// does not decode.
func DecodePayload[T any](p ChangePayload) (T, bool) {
	var out T
	if !p.Defined() {
		return out, false
	}
	if err := json.Unmarshal(p.raw, &out); err != nil {
		return out, false
	}
	return out, true
}
