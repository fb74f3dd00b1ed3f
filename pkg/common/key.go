package common

import "encoding/hex"

// GroupID identifies a single replica universe. A key's object may
// exist in many groups; each group holds at most one copy.
type GroupID int

// RawID is the 256-bit content id used to address an object once a
// symbolic name has been transformed by the session.
type RawID [32]byte

func (id RawID) String() string {
	return hex.EncodeToString(id[:])
}

// Key is a value object identifying an object in the store. It is
// either raw-id based (HasID) or name based; a name-based key is
// transformed into a raw id by the session (see internal/session).
// Equality is on the raw id when both keys carry one, per spec.md §3.
type Key struct {
	Name  string
	ID    RawID
	HasID bool
	Type  uint32
}

func KeyFromID(id RawID, typ uint32) Key {
	return Key{ID: id, HasID: true, Type: typ}
}

func KeyFromName(name string, typ uint32) Key {
	return Key{Name: name, Type: typ}
}

// Equal compares by raw id when both keys have one resolved; otherwise
// it falls back to comparing name and type, which is the best a
// pre-transform name-based key can do.
func (k Key) Equal(other Key) bool {
	if k.Type != other.Type {
		return false
	}
	if k.HasID && other.HasID {
		return k.ID == other.ID
	}
	if !k.HasID && !other.HasID {
		return k.Name == other.Name
	}
	return false
}

// String renders the key for error messages: the full 64-hex raw id
// when the key has one, otherwise its name. This differs from the
// 40-hex debug form of id_str (see pkg/client.Client.IDStr).
func (k Key) String() string {
	if k.HasID {
		return k.ID.String()
	}
	return k.Name
}
