package mapper

import "encoding/json"

// JSONCodec is the default Codec, backed by encoding/json. It is the
// simplest choice for a feed that humans or other non-Go systems may need
// to read directly.
type JSONCodec struct{}

func (JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Decode(data []byte, out any) error {
	return json.Unmarshal(data, out)
}

var _ Codec = JSONCodec{}
