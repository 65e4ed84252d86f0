package subscription

import (
	"errors"

	"github.com/brackenhill/eventflow/pkg/mapper"
)

// Decoder resolves a feed event's wire type name to a decoded Go value. It
// is the black-box boundary between the HTTP consumer and whatever payload
// mapper a caller has configured: the consumer only ever asks "do you know
// this type name" and "decode these bytes for it".
type Decoder interface {
	// Knows reports whether typeName has a registered decoder. Subscribe
	// uses this to fail loudly at registration time for event types with no
	// decoder, rather than discovering it silently at dispatch time.
	Knows(typeName string) bool

	// Decode decodes payload for the given wire type name. ok is false when
	// typeName is unregistered; callers must treat that as a silent skip,
	// not an error.
	Decode(typeName string, payload []byte) (value any, ok bool, err error)
}

// MapperDecoder adapts a *mapper.Mapper to Decoder. The remote feed's wire
// format (§6) carries no type_version field, so every lookup is made
// against version 0; a mapper whose registered types are only reachable via
// a migration chain rooted at version 0 decodes feed events correctly by
// construction.
type MapperDecoder struct {
	Mapper *mapper.Mapper
}

func (d MapperDecoder) Knows(typeName string) bool {
	return d.Mapper.Registered(typeName)
}

func (d MapperDecoder) Decode(typeName string, payload []byte) (any, bool, error) {
	value, err := d.Mapper.Decode(mapper.WireEvent{TypeName: typeName, Payload: payload})
	if err == nil {
		return value, true, nil
	}
	var unknown *mapper.ErrUnknownType
	if errors.As(err, &unknown) {
		return nil, false, nil
	}
	return nil, false, err
}

var _ Decoder = MapperDecoder{}
