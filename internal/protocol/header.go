// Package protocol implements the 28-byte fixed-layout packet header and
// the fixed-sample-count packet builder described in spec.md §4.4.
package protocol

import (
	"encoding/binary"
	"errors"
)

const (
	// HeaderSize is the fixed on-wire header length in bytes.
	HeaderSize = 28
	// MaxPacketSize bounds a packet (header+payload) to what a 16-bit
	// stream length prefix can address.
	MaxPacketSize = 65535

	// Codec identifies raw, uncompressed 16-bit signed PCM.
	Codec uint8 = 0
	// Version is the current wire format version.
	Version uint8 = 1
)

// Magic is the 4-byte ASCII tag every packet opens with.
var Magic = [4]byte{'A', 'U', 'D', '0'}

// ErrPayloadTooLarge is returned by Build when header+payload would exceed
// MaxPacketSize.
var ErrPayloadTooLarge = errors.New("protocol: payload exceeds maximum packet size")

// Header is the 28-byte fixed-layout packet header, little-endian for all
// multi-byte fields.
type Header struct {
	Version            uint8
	Codec              uint8
	Channels           uint8
	SampleRate         uint32
	Sequence           uint32
	SendTimeMicros     uint64
	SamplesPerChannel  uint16
	PayloadLen         uint16
}

// Encode writes the header into a fresh HeaderSize-byte buffer.
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], Magic[:])
	buf[4] = h.Version
	buf[5] = h.Codec
	buf[6] = h.Channels
	buf[7] = 0 // reserved
	binary.LittleEndian.PutUint32(buf[8:12], h.SampleRate)
	binary.LittleEndian.PutUint32(buf[12:16], h.Sequence)
	binary.LittleEndian.PutUint64(buf[16:24], h.SendTimeMicros)
	binary.LittleEndian.PutUint16(buf[24:26], h.SamplesPerChannel)
	binary.LittleEndian.PutUint16(buf[26:28], h.PayloadLen)
	return buf
}

// ErrShortHeader is returned by DecodeHeader when fewer than HeaderSize
// bytes are available.
var ErrShortHeader = errors.New("protocol: short header")

// ErrBadMagic is returned by DecodeHeader when the magic tag doesn't match.
var ErrBadMagic = errors.New("protocol: bad magic")

// DecodeHeader parses the first HeaderSize bytes of buf into a Header.
func DecodeHeader(buf []byte) (Header, error) {
	var h Header
	if len(buf) < HeaderSize {
		return h, ErrShortHeader
	}
	if buf[0] != Magic[0] || buf[1] != Magic[1] || buf[2] != Magic[2] || buf[3] != Magic[3] {
		return h, ErrBadMagic
	}
	h.Version = buf[4]
	h.Codec = buf[5]
	h.Channels = buf[6]
	h.SampleRate = binary.LittleEndian.Uint32(buf[8:12])
	h.Sequence = binary.LittleEndian.Uint32(buf[12:16])
	h.SendTimeMicros = binary.LittleEndian.Uint64(buf[16:24])
	h.SamplesPerChannel = binary.LittleEndian.Uint16(buf[24:26])
	h.PayloadLen = binary.LittleEndian.Uint16(buf[26:28])
	return h, nil
}
