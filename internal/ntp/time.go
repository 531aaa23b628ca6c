package ntp

import (
	"math"
	"time"

	"golang.org/x/sys/unix"
)

const (
	EraLength     int64   = 4_294_967_296 // 2^32
	UnixEraOffset int64   = 2_208_988_800 // 1970 - 1900 in seconds
	ShortLength   float64 = 65536         // 2^16
)

// Now returns the wall clock in seconds since 1900-01-01.
func Now() float64 {
	var unixTime unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_REALTIME, &unixTime); err != nil {
		return UnixToSeconds(time.Now())
	}
	return float64(int64(unixTime.Sec)+UnixEraOffset) + float64(unixTime.Nsec)/1e9
}

// UnixMillis returns the wall clock in milliseconds since the Unix epoch.
func UnixMillis() int64 {
	var unixTime unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_REALTIME, &unixTime); err != nil {
		return time.Now().UnixMilli()
	}
	return unixTime.Nano() / 1e6
}

func UnixToSeconds(t time.Time) float64 {
	return float64(t.Unix()+UnixEraOffset) + float64(t.Nanosecond())/1e9
}

// SecondsToUnixMillis converts seconds since 1900 to Unix milliseconds.
func SecondsToUnixMillis(seconds float64) int64 {
	return int64(math.Round((seconds - float64(UnixEraOffset)) * 1e3))
}

// TimestampToSeconds converts a 32.32 fixed point timestamp to seconds.
func TimestampToSeconds(ntpTimestamp TimestampEncoded) float64 {
	return float64(ntpTimestamp>>32) + float64(uint32(ntpTimestamp))/float64(EraLength)
}

// SecondsToTimestamp is the inverse of TimestampToSeconds. Values outside
// era 0 wrap modulo 2^32 seconds.
func SecondsToTimestamp(seconds float64) TimestampEncoded {
	whole := math.Floor(seconds)
	fraction := math.Round((seconds - whole) * float64(EraLength))
	if fraction >= float64(EraLength) {
		whole++
		fraction = 0
	}
	return TimestampEncoded(uint32(int64(whole)))<<32 | TimestampEncoded(uint32(fraction))
}

// ShortToSeconds converts a 16.16 fixed point value to seconds.
func ShortToSeconds(short ShortEncoded) float64 {
	return float64(short>>16) + float64(uint16(short))/ShortLength
}

func SecondsToShort(seconds float64) ShortEncoded {
	return ShortEncoded(math.Round(seconds * ShortLength))
}

func Log2ToDouble(a int8) float64 {
	if a < 0 {
		return 1.0 / float64(int64(1)<<-a)
	}
	return float64(int64(1) << a)
}

func TimestampToTime(ntpTimestamp TimestampEncoded) time.Time {
	Sec := int64(ntpTimestamp >> 32)
	Nsec := int64(math.Round(float64(uint32(ntpTimestamp)) / float64(EraLength) * 1e9))
	Sec -= UnixEraOffset
	return time.Unix(Sec, Nsec)
}
