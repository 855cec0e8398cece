// Package serialization provides the format-tagged protobuf envelope codec
// used by Admin's binary snapshot export/import. Grounded on the teacher's
// format-tagged Serializer, trimmed to the single format (protobuf) the
// snapshot surface actually produces and consumes.
package serialization

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/proto"
)

// PayloadFormat tags a marshaled payload with a one-byte prefix so a
// future second format could be added without breaking already-written
// snapshots.
type PayloadFormat byte

// FormatProtobuf is the only format relayq's admin snapshots use.
const FormatProtobuf PayloadFormat = 0x01

var (
	// ErrUnknownFormat is returned when the payload's format byte isn't
	// one this Serializer recognizes.
	ErrUnknownFormat = errors.New("unknown payload format")

	// ErrMarshalFailed is returned when marshaling fails.
	ErrMarshalFailed = errors.New("failed to marshal payload")

	// ErrUnmarshalFailed is returned when unmarshaling fails.
	ErrUnmarshalFailed = errors.New("failed to unmarshal payload")
)

// Serializer frames a protobuf message with a one-byte format prefix.
type Serializer struct{}

// NewProtobufSerializer constructs a Serializer for the admin snapshot
// wire format.
func NewProtobufSerializer() *Serializer {
	return &Serializer{}
}

// Marshal serializes v, which must implement proto.Message, prefixed with
// its format byte.
func (s *Serializer) Marshal(v interface{}) ([]byte, error) {
	msg, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("%w: value does not implement proto.Message", ErrMarshalFailed)
	}

	data, err := proto.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMarshalFailed, err)
	}

	result := make([]byte, len(data)+1)
	result[0] = byte(FormatProtobuf)
	copy(result[1:], data)
	return result, nil
}

// Unmarshal decodes a payload produced by Marshal into v, which must
// implement proto.Message.
func (s *Serializer) Unmarshal(data []byte, v interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty payload", ErrUnmarshalFailed)
	}
	if PayloadFormat(data[0]) != FormatProtobuf {
		return fmt.Errorf("%w: format byte 0x%02X", ErrUnknownFormat, data[0])
	}

	msg, ok := v.(proto.Message)
	if !ok {
		return fmt.Errorf("%w: value does not implement proto.Message", ErrUnmarshalFailed)
	}
	if err := proto.Unmarshal(data[1:], msg); err != nil {
		return fmt.Errorf("%w: %v", ErrUnmarshalFailed, err)
	}
	return nil
}

// IsProtobuf reports whether data carries the protobuf format prefix.
func (s *Serializer) IsProtobuf(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	return PayloadFormat(data[0]) == FormatProtobuf
}
