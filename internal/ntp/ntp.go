package ntp

import "errors"

type TimestampEncoded = uint64

type ShortEncoded = uint32

type Mode byte

const (
	RESERVED Mode = iota
	SYMMETRIC_ACTIVE
	SYMMETRIC_PASSIVE
	CLIENT
	SERVER
	BROADCAST_SERVER
	NTP_CONTROL_MESSAGE
	RESERVED_PRIVATE_USE
)

const (
	Port = "123" // NTP port number

	PacketSize = 48 // header size without extension fields

	VERSION byte = 3 // version sent in requests
	NOSYNC  byte = 0x3
)

var ErrMalformedMessage = errors.New("malformed ntp message")

// Message is a decoded NTP header. Timestamps are kept in their wire
// format so a decoded message encodes back to the same bytes.
//
// Timestamps are read in era 0 (1900-2036). The 2036 rollover is not
// handled: a server timestamp past 2036-02-07 decodes to a time in 1900.
type Message struct {
	Leap      byte /* leap indicator */
	Version   byte /* version number */
	Mode      Mode /* mode */
	Stratum   byte /* stratum */
	Poll      int8 /* poll interval */
	Precision int8 /* precision */

	RootDelay      ShortEncoded /* root delay */
	RootDispersion ShortEncoded /* root dispersion */
	ReferenceID    [4]byte      /* reference ID */

	ReferenceTimestamp TimestampEncoded /* reference time */
	OriginateTimestamp TimestampEncoded /* origin timestamp */
	ReceiveTimestamp   TimestampEncoded /* receive timestamp */
	TransmitTimestamp  TimestampEncoded /* transmit timestamp */
}

// NewRequest returns a client request. Only leap, version and mode are set
// besides the transmit timestamp, which the server echoes back as the
// originate timestamp of its reply.
func NewRequest(transmit float64) Message {
	return Message{
		Leap:              0,
		Version:           VERSION,
		Mode:              CLIENT,
		TransmitTimestamp: SecondsToTimestamp(transmit),
	}
}

// Reply builds the answer of a stratum 1 server to request m.
func (m *Message) Reply(receive, transmit float64) Message {
	version := m.Version
	if version == 0 {
		version = VERSION
	}
	return Message{
		Leap:               0,
		Version:            version,
		Mode:               SERVER,
		Stratum:            1,
		Poll:               m.Poll,
		Precision:          PRECISION,
		RootDelay:          0,
		RootDispersion:     SecondsToShort(MINDISP),
		ReferenceID:        [4]byte{'L', 'O', 'C', 'L'},
		ReferenceTimestamp: SecondsToTimestamp(receive - 1),
		OriginateTimestamp: m.TransmitTimestamp,
		ReceiveTimestamp:   SecondsToTimestamp(receive),
		TransmitTimestamp:  SecondsToTimestamp(transmit),
	}
}

const PRECISION = -20       /* precision (log2 s) */
const MINDISP float64 = .01 /* minimum dispersion (s) */
