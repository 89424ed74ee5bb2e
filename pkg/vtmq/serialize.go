package vtmq

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack"
)

// Serializer converts an application value into the opaque bytes the engine
// stores. Deserializer is its inverse. The engine itself never interprets
// payloads; serialization lives entirely in this layer.
type (
	Serializer   func(v interface{}) ([]byte, error)
	Deserializer func(data []byte) (interface{}, error)
)

// JSONSerializer is the default Serializer.
func JSONSerializer(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	return data, errors.Wrap(err, "unable to encode value as JSON")
}

// JSONDeserializer is the default Deserializer.
func JSONDeserializer(data []byte) (interface{}, error) {
	var v interface{}
	err := json.Unmarshal(data, &v)
	return v, errors.Wrap(err, "unable to decode value as JSON")
}

// MsgpackSerializer serializes values with msgpack, for callers that want a
// more compact wire format than JSON.
func MsgpackSerializer(v interface{}) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	return data, errors.Wrap(err, "unable to encode value as msgpack")
}

// MsgpackDeserializer is the inverse of MsgpackSerializer.
func MsgpackDeserializer(data []byte) (interface{}, error) {
	var v interface{}
	err := msgpack.Unmarshal(data, &v)
	return v, errors.Wrap(err, "unable to decode value as msgpack")
}

// RawSerializer passes []byte payloads through untouched.
func RawSerializer(v interface{}) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, errors.Errorf("raw serializer requires []byte, got %T", v)
	}
	return b, nil
}

// RawDeserializer passes stored bytes through untouched.
func RawDeserializer(data []byte) (interface{}, error) {
	return data, nil
}
