// Package mapper turns the wire form of an event (a type name, a version,
// and an encoded payload) into the Go value a Behavior expects, and back.
// It is the boundary where format changes (a codec swap) and class-name
// changes (an event renamed or restructured between releases) are absorbed
// so aggregate and consumer code never has to know about either.
package mapper

import "fmt"

// WireEvent is an event in transit: identified by type name and version,
// carrying an encoded payload whose format is owned by a Codec.
type WireEvent struct {
	TypeName    string
	TypeVersion int
	Payload     []byte
}

// Migration rewrites a WireEvent, typically to the next type name/version in
// a chain. A migration that only reshapes the payload without renaming the
// type is a "format migration"; one that changes TypeName is a "class-name
// migration". Both use the same signature.
type Migration func(WireEvent) (WireEvent, error)

// Codec encodes and decodes the payload bytes of a WireEvent into a Go
// value of a registered type.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, out any) error
}

// Mapper decodes WireEvents into registered Go types, running any migration
// chain registered for a type name before decoding, and encodes Go values
// back into WireEvents for persistence or transmission.
type Mapper struct {
	codec      Codec
	types      map[string]func() any
	versions   map[string]int
	migrations map[string][]Migration
}

// New builds a Mapper using codec to encode/decode payload bytes.
func New(codec Codec) *Mapper {
	return &Mapper{
		codec:      codec,
		types:      make(map[string]func() any),
		versions:   make(map[string]int),
		migrations: make(map[string][]Migration),
	}
}

// Register associates typeName with a zero-value factory for T at the given
// version, so a WireEvent tagged with typeName can be decoded into *T.
func Register[T any](m *Mapper, typeName string, version int) {
	m.types[typeName] = func() any { return new(T) }
	m.versions[typeName] = version
}

// RegisterMigration appends migration to the chain run, in registration
// order, against any WireEvent whose TypeName equals fromTypeName before
// decoding is attempted. Chains compose left to right: a WireEvent may pass
// through several migrations (format and/or class-name) before it reaches a
// registered, decodable type.
func (m *Mapper) RegisterMigration(fromTypeName string, migration Migration) {
	m.migrations[fromTypeName] = append(m.migrations[fromTypeName], migration)
}

// ErrUnknownType is wrapped into the error Decode returns when a WireEvent's
// (possibly migrated) type name has no registered factory.
type ErrUnknownType struct {
	TypeName string
}

func (e *ErrUnknownType) Error() string {
	return fmt.Sprintf("mapper: unknown event type %q", e.TypeName)
}

// Registered reports whether typeName is known to the Mapper: either
// directly, via Register, or as the root of a migration chain registered
// via RegisterMigration. It does not run the chain, so it cannot guarantee
// that a given payload will actually decode; it is meant for eager
// validation (e.g. a subscriber rejecting an unrecognized event type at
// registration time) rather than a decode precheck.
func (m *Mapper) Registered(typeName string) bool {
	if _, ok := m.types[typeName]; ok {
		return true
	}
	_, ok := m.migrations[typeName]
	return ok
}

// Decode migrates wire (if a chain is registered for its type name) and
// decodes the resulting payload into the registered Go type, returning the
// decoded value as any.
func (m *Mapper) Decode(wire WireEvent) (any, error) {
	for {
		chain, ok := m.migrations[wire.TypeName]
		if !ok || len(chain) == 0 {
			break
		}
		migrated := wire
		for _, step := range chain {
			next, err := step(migrated)
			if err != nil {
				return nil, fmt.Errorf("mapper: migrate %s: %w", wire.TypeName, err)
			}
			migrated = next
		}
		if migrated.TypeName == wire.TypeName && migrated.TypeVersion == wire.TypeVersion {
			// Migration chain registered but made no forward progress; stop
			// to avoid looping forever.
			break
		}
		wire = migrated
	}

	factory, ok := m.types[wire.TypeName]
	if !ok {
		return nil, &ErrUnknownType{TypeName: wire.TypeName}
	}

	out := factory()
	if err := m.codec.Decode(wire.Payload, out); err != nil {
		return nil, fmt.Errorf("mapper: decode %s: %w", wire.TypeName, err)
	}
	return out, nil
}

// Encode produces the WireEvent for v, whose concrete type must have been
// registered under typeName via Register.
func (m *Mapper) Encode(typeName string, v any) (WireEvent, error) {
	version, ok := m.versions[typeName]
	if !ok {
		return WireEvent{}, &ErrUnknownType{TypeName: typeName}
	}

	payload, err := m.codec.Encode(v)
	if err != nil {
		return WireEvent{}, fmt.Errorf("mapper: encode %s: %w", typeName, err)
	}

	return WireEvent{TypeName: typeName, TypeVersion: version, Payload: payload}, nil
}
