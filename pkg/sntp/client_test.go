package sntp

import (
	"context"
	"errors"
	"math"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AndrewLester/countdown/internal/ntp"
	"golang.org/x/net/nettest"
)

func TestSampleFormulas(t *testing.T) {
	sample := Sample{Originate: 0, Receive: 1.0, Transmit: 1.0, Destination: 2.0}
	if delay := sample.RoundTripDelay(); delay != 1.0 {
		t.Errorf("expected round trip delay 1.0s, got %v", delay)
	}
	if offset := sample.LocalClockOffset(); offset != 0.0 {
		t.Errorf("expected offset 0.0s, got %v", offset)
	}

	// Server 2.4s ahead, 100ms spent in the server, 200ms on the wire
	sample = Sample{Originate: 10, Receive: 12.5, Transmit: 12.6, Destination: 10.3}
	if delay := sample.RoundTripDelay(); math.Abs(delay-0.2) > 1e-9 {
		t.Errorf("expected round trip delay 0.2s, got %v", delay)
	}
	if offset := sample.LocalClockOffset(); math.Abs(offset-2.4) > 1e-9 {
		t.Errorf("expected offset 2.4s, got %v", offset)
	}

	result := &Result{Sample: sample}
	if d := result.Offset() - 2400*time.Millisecond; d < -time.Microsecond || d > time.Microsecond {
		t.Errorf("expected Offset() 2.4s, got %v", result.Offset())
	}
}

// startServer runs a Server with the given clock offset on a local port.
func startServer(t *testing.T, offset time.Duration) string {
	t.Helper()

	conn, err := nettest.NewLocalPacketListener("udp")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	server := &Server{Offset: offset}
	go server.Serve(conn)
	t.Cleanup(func() { server.Close() })

	return conn.LocalAddr().String()
}

// startSilentServer reads requests and never answers them.
func startSilentServer(t *testing.T) (string, *atomic.Int32) {
	t.Helper()
	return startHandler(t, func(net.PacketConn, net.Addr, []byte) {})
}

func startHandler(t *testing.T, handle func(conn net.PacketConn, addr net.Addr, packet []byte)) (string, *atomic.Int32) {
	t.Helper()

	conn, err := nettest.NewLocalPacketListener("udp")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	var requests atomic.Int32
	go func() {
		packet := make([]byte, MTU)
		for {
			n, addr, err := conn.ReadFrom(packet)
			if err != nil {
				return
			}
			requests.Add(1)
			handle(conn, addr, packet[:n])
		}
	}()

	return conn.LocalAddr().String(), &requests
}

func testConfig(servers ...string) Config {
	config := DefaultConfig()
	config.Servers = servers
	config.SocketTimeout = 100 * time.Millisecond
	config.MaxRetries = 3
	return config
}

func newTestClient(t *testing.T, config Config) *Client {
	t.Helper()
	client, err := NewClient(config)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func waitForCount(counter *atomic.Int32, want int32) int32 {
	deadline := time.Now().Add(time.Second)
	for counter.Load() < want && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	return counter.Load()
}

func TestQueryLocalServer(t *testing.T) {
	address := startServer(t, 2*time.Second)
	client := newTestClient(t, testConfig(address))

	result, err := client.Query(context.Background())
	if err != nil {
		t.Fatalf("Query: %v", err)
	}

	if result.Server != address || result.Attempts != 1 {
		t.Errorf("expected first attempt on %s, got %s after %d", address, result.Server, result.Attempts)
	}
	if result.Stratum != 1 || string(result.ReferenceID[:]) != "LOCL" {
		t.Errorf("expected stratum 1 LOCL, got %d %q", result.Stratum, result.ReferenceID)
	}
	if result.Precision != ntp.Log2ToDouble(ntp.PRECISION) {
		t.Errorf("unexpected precision %v", result.Precision)
	}
	if math.Abs(result.RootDispersion-ntp.MINDISP) > 1e-4 {
		t.Errorf("expected root dispersion %v, got %v", ntp.MINDISP, result.RootDispersion)
	}
	if diff := result.ServerTime() - ntp.UnixMillis(); diff < 1900 || diff > 2100 {
		t.Errorf("expected server time ~2000ms ahead, got %dms", diff)
	}
	if diff := time.Until(result.ReferenceTime); diff < 500*time.Millisecond || diff > 1500*time.Millisecond {
		t.Errorf("expected reference time ~1s ahead, got %v", diff)
	}
	if offset := result.LocalClockOffset(); math.Abs(offset-2) > 0.05 {
		t.Errorf("expected offset ~2s, got %v", offset)
	}
	if delay := result.RoundTripDelay(); delay < 0 || delay > 0.05 {
		t.Errorf("expected small positive delay, got %v", delay)
	}
	if diff := result.CorrectedTime - ntp.UnixMillis(); diff < 1900 || diff > 2100 {
		t.Errorf("expected corrected time ~2000ms ahead, got %dms", diff)
	}
}

func TestFetchCorrectedTime(t *testing.T) {
	address := startServer(t, -1500*time.Millisecond)
	client := newTestClient(t, testConfig(address))

	corrected, err := client.FetchCorrectedTime(context.Background())
	if err != nil {
		t.Fatalf("FetchCorrectedTime: %v", err)
	}
	if diff := corrected - time.Now().UnixMilli(); diff < -1600 || diff > -1400 {
		t.Errorf("expected corrected time ~1500ms behind, got %dms", diff)
	}
}

func TestAllServersTimeout(t *testing.T) {
	first, firstRequests := startSilentServer(t)
	second, secondRequests := startSilentServer(t)

	config := testConfig(first, second)
	config.SocketTimeout = 50 * time.Millisecond
	config.MaxRetries = 3
	client := newTestClient(t, config)

	start := time.Now()
	_, err := client.FetchCorrectedTime(context.Background())
	if !errors.Is(err, ErrTimeSyncUnavailable) {
		t.Fatalf("expected ErrTimeSyncUnavailable, got %v", err)
	}
	if !errors.Is(err, ErrNoResponse) {
		t.Errorf("expected ErrNoResponse as cause, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Errorf("expected three 50ms timeouts, returned after %v", elapsed)
	}

	// Attempts go first, second, first
	if got := waitForCount(firstRequests, 2); got != 2 {
		t.Errorf("expected 2 requests to first server, got %d", got)
	}
	if got := waitForCount(secondRequests, 1); got != 1 {
		t.Errorf("expected 1 request to second server, got %d", got)
	}
}

func TestRetryAdvancesToNextServer(t *testing.T) {
	silent, silentRequests := startSilentServer(t)
	answering := startServer(t, 0)

	client := newTestClient(t, testConfig(silent, answering))

	result, err := client.Query(context.Background())
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if result.Server != answering {
		t.Errorf("expected answer from %s, got %s", answering, result.Server)
	}
	if result.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", result.Attempts)
	}
	if got := waitForCount(silentRequests, 1); got != 1 {
		t.Errorf("expected 1 request to silent server, got %d", got)
	}
}

func TestMalformedReplyIsNotRetried(t *testing.T) {
	address, requests := startHandler(t, func(conn net.PacketConn, addr net.Addr, packet []byte) {
		conn.WriteTo(packet[:20], addr)
	})

	client := newTestClient(t, testConfig(address))

	_, err := client.Query(context.Background())
	if !errors.Is(err, ErrTimeSyncUnavailable) {
		t.Fatalf("expected ErrTimeSyncUnavailable, got %v", err)
	}
	if !errors.Is(err, ntp.ErrMalformedMessage) {
		t.Errorf("expected ErrMalformedMessage as cause, got %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if got := requests.Load(); got != 1 {
		t.Errorf("expected a single request, got %d", got)
	}
}

func TestUnresolvableServerIsSkipped(t *testing.T) {
	answering := startServer(t, 0)
	client := newTestClient(t, testConfig("host.invalid", answering))

	result, err := client.Query(context.Background())
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if result.Server != answering || result.Attempts != 2 {
		t.Errorf("expected second attempt on %s, got %s after %d", answering, result.Server, result.Attempts)
	}
}

func TestQueryCanceledContext(t *testing.T) {
	address := startServer(t, 0)
	client := newTestClient(t, testConfig(address))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Query(ctx)
	if !errors.Is(err, ErrTimeSyncUnavailable) || !errors.Is(err, context.Canceled) {
		t.Errorf("expected canceled sync, got %v", err)
	}
}

func TestHostPort(t *testing.T) {
	tests := map[string]string{
		"pool.ntp.org":      "pool.ntp.org:123",
		"127.0.0.1:1234":    "127.0.0.1:1234",
		"::1":               "[::1]:123",
		"[2001:db8::1]:999": "[2001:db8::1]:999",
	}
	for server, want := range tests {
		if got := hostPort(server, ntp.Port); got != want {
			t.Errorf("hostPort(%q) = %q, want %q", server, got, want)
		}
	}
}

// reply answers packet the way Server does, with the local clock.
func reply(t *testing.T, packet []byte, modify func(*ntp.Message)) []byte {
	request, err := ntp.Decode(packet)
	if err != nil {
		t.Errorf("decode request: %v", err)
		return nil
	}
	answer := request.Reply(ntp.Now(), ntp.Now())
	if modify != nil {
		modify(&answer)
	}
	return ntp.Encode(answer)
}

func TestLateReplyIsAttributedToItsServer(t *testing.T) {
	slow, _ := startHandler(t, func(conn net.PacketConn, addr net.Addr, packet []byte) {
		answer := reply(t, packet, nil)
		go func() {
			time.Sleep(150 * time.Millisecond)
			conn.WriteTo(answer, addr)
		}()
	})
	silent, _ := startSilentServer(t)

	client := newTestClient(t, testConfig(slow, silent))

	result, err := client.Query(context.Background())
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if result.Attempts != 2 {
		t.Errorf("expected the reply during the second attempt, got attempt %d", result.Attempts)
	}
	if result.Server != slow || result.Address.String() != slow {
		t.Errorf("expected reply attributed to %s, got server %s address %s", slow, result.Server, result.Address)
	}
	if delay := result.RoundTripDelay(); delay < 0.1 {
		t.Errorf("expected the delay of the first request, got %v", delay)
	}
}

func TestReplyFromUnknownPeerIsDropped(t *testing.T) {
	other, err := nettest.NewLocalPacketListener("udp")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer other.Close()

	address, requests := startHandler(t, func(conn net.PacketConn, addr net.Addr, packet []byte) {
		other.WriteTo(reply(t, packet, nil), addr)
	})

	config := testConfig(address)
	config.MaxRetries = 1
	client := newTestClient(t, config)

	_, err = client.Query(context.Background())
	if !errors.Is(err, ErrNoResponse) {
		t.Errorf("expected ErrNoResponse, got %v", err)
	}
	if got := waitForCount(requests, 1); got != 1 {
		t.Errorf("expected 1 request, got %d", got)
	}
}

func TestStrayPacketsAreSkipped(t *testing.T) {
	address, _ := startHandler(t, func(conn net.PacketConn, addr net.Addr, packet []byte) {
		// Wrong mode, then an unknown originate, then the real answer
		conn.WriteTo(reply(t, packet, func(m *ntp.Message) { m.Mode = ntp.CLIENT }), addr)
		conn.WriteTo(reply(t, packet, func(m *ntp.Message) { m.OriginateTimestamp++ }), addr)
		conn.WriteTo(reply(t, packet, nil), addr)
	})

	client := newTestClient(t, testConfig(address))

	result, err := client.Query(context.Background())
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if result.Attempts != 1 || result.Stratum != 1 {
		t.Errorf("expected the real answer on the first attempt, got %+v", result)
	}
}

func TestUnusableReplyMovesToNextServer(t *testing.T) {
	kiss, _ := startHandler(t, func(conn net.PacketConn, addr net.Addr, packet []byte) {
		conn.WriteTo(reply(t, packet, func(m *ntp.Message) {
			m.Stratum = 0
			m.ReferenceID = [4]byte{'R', 'A', 'T', 'E'}
		}), addr)
	})
	noTransmit, _ := startHandler(t, func(conn net.PacketConn, addr net.Addr, packet []byte) {
		conn.WriteTo(reply(t, packet, func(m *ntp.Message) { m.TransmitTimestamp = 0 }), addr)
	})
	answering := startServer(t, 0)

	client := newTestClient(t, testConfig(kiss, noTransmit, answering))

	result, err := client.Query(context.Background())
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if result.Server != answering || result.Attempts != 3 {
		t.Errorf("expected third attempt on %s, got %s after %d", answering, result.Server, result.Attempts)
	}

	config := testConfig(kiss)
	config.MaxRetries = 1
	_, err = newTestClient(t, config).Query(context.Background())
	if !errors.Is(err, ErrTimeSyncUnavailable) || !errors.Is(err, ErrRejectedReply) {
		t.Errorf("expected rejected reply, got %v", err)
	}
}
