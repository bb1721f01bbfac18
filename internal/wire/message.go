// Package wire defines the fixed-layout datagram format used to synchronize
// region bytes between nodes, and the batching rules that split a set of
// pending edits into one or more messages.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// MaxRegionName is the fixed size of the region name field. Names are
	// NUL-padded on the wire; longer names are rejected at region creation.
	MaxRegionName = 64

	// MaxPayload is the payload capacity of a single message. Edits larger
	// than this are split into multiple chunks before encoding.
	MaxPayload = 1024

	// headerSize covers name, kind, update ID, offset, length and timestamp.
	headerSize = MaxRegionName + 4 + 8 + 8 + 8 + 4

	// MessageSize is the exact size of every encoded datagram.
	MessageSize = headerSize + MaxPayload
)

// ErrMalformed reports a datagram that does not decode to a valid message.
var ErrMalformed = errors.New("wire: malformed message")

// Kind identifies the role of a message within an update batch.
type Kind uint32

const (
	// SingleUpdate is a self-contained update applied on receipt.
	SingleUpdate Kind = iota

	// StartUpdate opens a multi-part update.
	StartUpdate

	// UpdateChunk is a middle piece of a multi-part update.
	UpdateChunk

	// EndUpdate closes a multi-part update and triggers reassembly.
	EndUpdate
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case SingleUpdate:
		return "single"
	case StartUpdate:
		return "start"
	case UpdateChunk:
		return "chunk"
	case EndUpdate:
		return "end"
	default:
		return fmt.Sprintf("kind(%d)", uint32(k))
	}
}

// Message is the unit of synchronization on the wire: one byte range of one
// named region, plus the bookkeeping needed to reassemble multi-part batches.
type Message struct {
	// Region names the target region.
	Region string

	// Kind is the message role within its batch.
	Kind Kind

	// UpdateID is shared by every message of one batch. Unique per batch
	// per sender.
	UpdateID uint64

	// Offset is the byte offset into the region.
	Offset uint64

	// Length is the number of meaningful payload bytes. Never exceeds
	// MaxPayload.
	Length uint64

	// Timestamp is the sender's millisecond tick count at encode time.
	// Wraps; advisory only.
	Timestamp uint32

	// Payload holds the region bytes, exactly Length of them.
	Payload []byte
}

// Marshal encodes the message into a MessageSize datagram. Numeric fields
// are network byte order. Only the first Length payload bytes carry data;
// the tail of the payload field is zeroed.
func (m *Message) Marshal() ([]byte, error) {
	if len(m.Region) > MaxRegionName {
		return nil, fmt.Errorf("%w: region name %d bytes exceeds %d", ErrMalformed, len(m.Region), MaxRegionName)
	}
	if m.Length > MaxPayload {
		return nil, fmt.Errorf("%w: length %d exceeds payload capacity %d", ErrMalformed, m.Length, MaxPayload)
	}
	if uint64(len(m.Payload)) != m.Length {
		return nil, fmt.Errorf("%w: payload %d bytes, length field %d", ErrMalformed, len(m.Payload), m.Length)
	}

	buf := make([]byte, MessageSize)
	copy(buf[:MaxRegionName], m.Region)
	binary.BigEndian.PutUint32(buf[64:], uint32(m.Kind))
	binary.BigEndian.PutUint64(buf[68:], m.UpdateID)
	binary.BigEndian.PutUint64(buf[76:], m.Offset)
	binary.BigEndian.PutUint64(buf[84:], m.Length)
	binary.BigEndian.PutUint32(buf[92:], m.Timestamp)
	copy(buf[headerSize:], m.Payload)
	return buf, nil
}

// Unmarshal decodes a datagram. Truncated or oversized datagrams, unknown
// kinds and length fields beyond the payload capacity are all ErrMalformed.
func Unmarshal(data []byte) (Message, error) {
	var m Message
	if len(data) != MessageSize {
		return m, fmt.Errorf("%w: datagram is %d bytes, want %d", ErrMalformed, len(data), MessageSize)
	}

	name := data[:MaxRegionName]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	m.Region = string(name)

	kind := binary.BigEndian.Uint32(data[64:])
	if kind > uint32(EndUpdate) {
		return m, fmt.Errorf("%w: unknown message kind %d", ErrMalformed, kind)
	}
	m.Kind = Kind(kind)
	m.UpdateID = binary.BigEndian.Uint64(data[68:])
	m.Offset = binary.BigEndian.Uint64(data[76:])
	m.Length = binary.BigEndian.Uint64(data[84:])
	m.Timestamp = binary.BigEndian.Uint32(data[92:])

	if m.Length > MaxPayload {
		return m, fmt.Errorf("%w: length %d exceeds payload capacity %d", ErrMalformed, m.Length, MaxPayload)
	}
	if m.Offset+m.Length < m.Offset {
		return m, fmt.Errorf("%w: offset %d + length %d overflows", ErrMalformed, m.Offset, m.Length)
	}

	m.Payload = make([]byte, m.Length)
	copy(m.Payload, data[headerSize:headerSize+int(m.Length)])
	return m, nil
}
