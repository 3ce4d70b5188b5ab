package heartbeat

import (
	"encoding/json"

	"github.com/pkg/errors"
)

var (
	ErrEmptyNodeID      = errors.New("node id is empty")
	ErrNodeIDTooLong    = errors.New("node id exceeds maximum length")
	ErrInvalidType      = errors.New("invalid message type")
	ErrNegativeSequence = errors.New("sequence number is negative")
	ErrTooManyEntries   = errors.New("metadata exceeds maximum entries")
	ErrDatagramTooLarge = errors.New("encoded message exceeds datagram size")
)

// Validate checks the message against the wire format constraints.
func (m *Message) Validate() error {
	if !m.Type.Valid() {
		return errors.Wrapf(ErrInvalidType, "type %d", m.Type)
	}
	if m.NodeID == "" {
		return ErrEmptyNodeID
	}
	if len(m.NodeID) > MaxNodeIDLength {
		return errors.Wrapf(ErrNodeIDTooLong, "%d bytes", len(m.NodeID))
	}
	if m.SequenceNumber < 0 {
		return ErrNegativeSequence
	}
	if len(m.Metadata) > MaxMetadataEntries {
		return errors.Wrapf(ErrTooManyEntries, "%d entries", len(m.Metadata))
	}
	return nil
}

// Encode serializes the message into a single datagram payload. The same
// logical message round-trips with equal sequence number and timestamp.
func Encode(m *Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid message")
	}

	data, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal message")
	}
	if len(data) > MaxDatagramSize {
		return nil, errors.Wrapf(ErrDatagramTooLarge, "%d bytes", len(data))
	}

	return data, nil
}

// Decode parses a datagram payload. Malformed or out-of-shape payloads
// return an error and never panic; the caller drops the datagram.
func Decode(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal message")
	}
	if err := m.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid message")
	}
	return &m, nil
}
