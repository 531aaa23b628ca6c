package ntp

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// fieldsEncoded is the header after the leap/version/mode byte, in wire order.
type fieldsEncoded struct {
	Stratum   byte             /* stratum */
	Poll      int8             /* poll interval */
	Precision int8             /* precision */
	Rootdelay ShortEncoded     /* root delay */
	Rootdisp  ShortEncoded     /* root dispersion */
	Refid     [4]byte          /* reference ID */
	Reftime   TimestampEncoded /* reference time */
	Org       TimestampEncoded /* origin timestamp */
	Rec       TimestampEncoded /* receive timestamp */
	Xmt       TimestampEncoded /* transmit timestamp */
}

// Encode packs m into the 48 byte NTP header. Leap, version and mode are
// truncated to their 2, 3 and 3 bit widths.
func Encode(m Message) []byte {
	firstByte := (m.Leap&0b11)<<6 | (m.Version&0b111)<<3 | byte(m.Mode)&0b111

	var buffer bytes.Buffer
	buffer.Grow(PacketSize)
	buffer.WriteByte(firstByte)
	// Writes to a bytes.Buffer of a fixed size struct cannot fail.
	_ = binary.Write(&buffer, binary.BigEndian, fieldsEncoded{
		Stratum:   m.Stratum,
		Poll:      m.Poll,
		Precision: m.Precision,
		Rootdelay: m.RootDelay,
		Rootdisp:  m.RootDispersion,
		Refid:     m.ReferenceID,
		Reftime:   m.ReferenceTimestamp,
		Org:       m.OriginateTimestamp,
		Rec:       m.ReceiveTimestamp,
		Xmt:       m.TransmitTimestamp,
	})
	return buffer.Bytes()
}

// Decode reads an NTP header from encoded. Anything past the first 48
// bytes (extension fields, MAC) is ignored.
func Decode(encoded []byte) (*Message, error) {
	if len(encoded) < PacketSize {
		return nil, fmt.Errorf("%w: %d bytes, want at least %d", ErrMalformedMessage, len(encoded), PacketSize)
	}

	firstByte := encoded[0]

	fields := fieldsEncoded{}
	if err := binary.Read(bytes.NewReader(encoded[1:PacketSize]), binary.BigEndian, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	return &Message{
		Leap:               firstByte >> 6,
		Version:            (firstByte >> 3) & 0b111,
		Mode:               Mode(firstByte & 0b111),
		Stratum:            fields.Stratum,
		Poll:               fields.Poll,
		Precision:          fields.Precision,
		RootDelay:          fields.Rootdelay,
		RootDispersion:     fields.Rootdisp,
		ReferenceID:        fields.Refid,
		ReferenceTimestamp: fields.Reftime,
		OriginateTimestamp: fields.Org,
		ReceiveTimestamp:   fields.Rec,
		TransmitTimestamp:  fields.Xmt,
	}, nil
}
