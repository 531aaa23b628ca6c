package sntp

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/AndrewLester/countdown/internal/ntp"
	"github.com/sethvargo/go-retry"
)

const MTU = 1300

var (
	ErrTimeSyncUnavailable = errors.New("time synchronization unavailable")
	ErrNoResponse          = errors.New("server did not respond")
	ErrUnreachable         = errors.New("server unreachable")
	ErrRejectedReply       = errors.New("server reply rejected")
)

// Sample holds the four timestamps of one exchange in seconds since 1900.
type Sample struct {
	Originate   float64 /* client transmit, echoed by the server */
	Receive     float64 /* server receive */
	Transmit    float64 /* server transmit */
	Destination float64 /* client receive */
}

func (s Sample) RoundTripDelay() float64 {
	return (s.Destination - s.Originate) - (s.Transmit - s.Receive)
}

// LocalClockOffset is how far the server is ahead of the local clock.
func (s Sample) LocalClockOffset() float64 {
	return ((s.Receive - s.Originate) + (s.Transmit - s.Destination)) / 2
}

type Result struct {
	Server   string
	Address  *net.UDPAddr
	Attempts int

	Stratum        byte
	Leap           byte
	Precision      float64 // seconds
	RootDelay      float64 // seconds
	RootDispersion float64 // seconds
	ReferenceID    [4]byte
	ReferenceTime  time.Time

	Sample

	CorrectedTime int64 // Unix milliseconds
}

func (r *Result) Offset() time.Duration {
	return time.Duration(math.Round(r.LocalClockOffset() * 1e9))
}

func (r *Result) Delay() time.Duration {
	return time.Duration(math.Round(r.RoundTripDelay() * 1e9))
}

// ServerTime is the server's transmit timestamp in Unix milliseconds.
func (r *Result) ServerTime() int64 {
	return ntp.SecondsToUnixMillis(r.Transmit)
}

type Client struct {
	config Config
}

func NewClient(config Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Client{config: config}, nil
}

func (client *Client) Config() Config {
	return client.config
}

// FetchCorrectedTime returns the local clock corrected by the offset of a
// single exchange, in Unix milliseconds. It never falls back to the local
// clock: every failure wraps ErrTimeSyncUnavailable.
func (client *Client) FetchCorrectedTime(ctx context.Context) (int64, error) {
	result, err := client.Query(ctx)
	if err != nil {
		return 0, err
	}
	return result.CorrectedTime, nil
}

// Query performs one exchange, moving on to the next server on timeout
// until MaxRetries attempts were made.
func (client *Client) Query(ctx context.Context) (*Result, error) {
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		attemptsMetric.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %w", ErrTimeSyncUnavailable, err)
	}
	defer conn.Close()

	info("Timeout is set to", client.config.SocketTimeout)

	session := &exchange{
		conn:      conn,
		version:   byte(client.config.Version),
		timeout:   client.config.SocketTimeout,
		sent:      map[string]string{},
		transmits: map[ntp.TimestampEncoded]bool{},
		buffer:    make([]byte, MTU),
	}

	var result *Result
	attempt := 0

	backoff := retry.WithMaxRetries(uint64(client.config.MaxRetries-1), retry.BackoffFunc(func() (time.Duration, bool) {
		return 0, false
	}))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		server := client.config.Servers[attempt%len(client.config.Servers)]
		attempt++

		r, err := session.run(server, client.config.Port)
		switch {
		case err == nil:
			result = r
			return nil
		case errors.Is(err, ErrNoResponse), errors.Is(err, ErrUnreachable):
			attemptsMetric.WithLabelValues("timeout").Inc()
			warn("Attempt", attempt, "failed:", err)
			return retry.RetryableError(err)
		case errors.Is(err, ErrRejectedReply):
			attemptsMetric.WithLabelValues("rejected").Inc()
			warn("Attempt", attempt, "failed:", err)
			return retry.RetryableError(err)
		case errors.Is(err, ntp.ErrMalformedMessage):
			attemptsMetric.WithLabelValues("malformed").Inc()
			return err
		default:
			attemptsMetric.WithLabelValues("error").Inc()
			return err
		}
	})
	if err != nil {
		logger.WithError(err).Errorf("No time from %d attempt(s)", attempt)
		return nil, fmt.Errorf("%w: %w", ErrTimeSyncUnavailable, err)
	}

	result.Attempts = attempt
	attemptsMetric.WithLabelValues("ok").Inc()

	offset := result.LocalClockOffset()
	delay := result.RoundTripDelay()
	offsetMetric.Set(offset)
	roundTripMetric.Set(delay)

	debug(fmt.Sprintf("NTP server: %s", result.Address))
	debug(fmt.Sprintf("Round-trip delay: %+9.2f ms", 1000*delay))
	debug(fmt.Sprintf("Local clock offset: %+9.2f ms", 1000*offset))

	now := ntp.UnixMillis()
	result.CorrectedTime = now + int64(math.Round(1000*offset))

	info("Local time:", time.UnixMilli(now), "Corrected time:", time.UnixMilli(result.CorrectedTime))

	return result, nil
}

// exchange is the socket state shared by the attempts of one Query. A late
// reply to an earlier attempt is accepted: its originate timestamp belongs
// to the request it answers, so the sample stays consistent. The reply is
// attributed to the server it came from, not to the current attempt.
type exchange struct {
	conn      *net.UDPConn
	version   byte
	timeout   time.Duration
	sent      map[string]string // resolved address -> server name
	transmits map[ntp.TimestampEncoded]bool
	buffer    []byte
}

func (e *exchange) run(server, port string) (*Result, error) {
	address, err := net.ResolveUDPAddr("udp", hostPort(server, port))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreachable, server, err)
	}
	info("Trying to connect to NTP server:", server, address)

	request := ntp.NewRequest(ntp.Now())
	request.Version = e.version
	if _, err := e.conn.WriteToUDP(ntp.Encode(request), address); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreachable, server, err)
	}
	e.sent[address.String()] = server
	e.transmits[request.TransmitTimestamp] = true
	debug("Server request was sent to", address)

	if err := e.conn.SetReadDeadline(time.Now().Add(e.timeout)); err != nil {
		return nil, err
	}

	for {
		n, from, err := e.conn.ReadFromUDP(e.buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil, fmt.Errorf("%w: %s after %v", ErrNoResponse, server, e.timeout)
			}
			return nil, fmt.Errorf("%w: %s: %v", ErrUnreachable, server, err)
		}
		destination := ntp.Now()

		replied, ok := e.sent[from.String()]
		if !ok {
			debug("Dropping packet from unknown peer", from)
			continue
		}

		reply, err := ntp.Decode(e.buffer[:n])
		if err != nil {
			return nil, err
		}

		// Stray packets are skipped, unusable answers fail the attempt
		if reply.Mode != ntp.SERVER || !e.transmits[reply.OriginateTimestamp] {
			debug("Dropping mode", reply.Mode, "packet from", from, "not answering a request")
			continue
		}
		if reply.Stratum == 0 {
			return nil, fmt.Errorf("%w: %s sent kiss code %q", ErrRejectedReply, replied, string(reply.ReferenceID[:]))
		}
		if reply.TransmitTimestamp == 0 {
			return nil, fmt.Errorf("%w: %s sent no transmit timestamp", ErrRejectedReply, replied)
		}

		return &Result{
			Server:         replied,
			Address:        from,
			Stratum:        reply.Stratum,
			Leap:           reply.Leap,
			Precision:      ntp.Log2ToDouble(reply.Precision),
			RootDelay:      ntp.ShortToSeconds(reply.RootDelay),
			RootDispersion: ntp.ShortToSeconds(reply.RootDispersion),
			ReferenceID:    reply.ReferenceID,
			ReferenceTime:  ntp.TimestampToTime(reply.ReferenceTimestamp),
			Sample: Sample{
				Originate:   ntp.TimestampToSeconds(reply.OriginateTimestamp),
				Receive:     ntp.TimestampToSeconds(reply.ReceiveTimestamp),
				Transmit:    ntp.TimestampToSeconds(reply.TransmitTimestamp),
				Destination: destination,
			},
		}, nil
	}
}

// hostPort appends port unless server already names one.
func hostPort(server, port string) string {
	if _, _, err := net.SplitHostPort(server); err == nil {
		return server
	}
	return net.JoinHostPort(server, port)
}
