package sntp

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/AndrewLester/countdown/internal/ntp"
)

// Server answers client mode requests with the local clock shifted by
// Offset, acting as a stratum 1 server. It is meant for local testing.
type Server struct {
	Offset time.Duration

	lock   sync.Mutex
	conn   net.PacketConn
	closed bool
}

func (s *Server) ListenAndServe(address string) error {
	conn, err := net.ListenPacket("udp", address)
	if err != nil {
		return err
	}
	return s.Serve(conn)
}

// Serve handles requests on conn until Close is called.
func (s *Server) Serve(conn net.PacketConn) error {
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return conn.Close()
	}
	s.conn = conn
	s.lock.Unlock()

	info("SNTP server listening on", conn.LocalAddr())

	offset := s.Offset.Seconds()
	packet := make([]byte, MTU)

	for {
		n, addr, err := conn.ReadFrom(packet)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}

			logger.Errorf("error reading on %s/udp: %s", conn.LocalAddr(), err)
			continue
		}
		receive := ntp.Now() + offset

		request, err := ntp.Decode(packet[:n])
		if err != nil {
			debug("Dropping packet from", addr, err)
			continue
		}
		if request.Mode != ntp.CLIENT {
			debug("Dropping mode", request.Mode, "packet from", addr)
			continue
		}

		reply := request.Reply(receive, ntp.Now()+offset)
		if _, err := conn.WriteTo(ntp.Encode(reply), addr); err != nil {
			logger.Errorf("error replying to %s: %s", addr, err)
		}
	}
}

func (s *Server) Addr() net.Addr {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

func (s *Server) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.closed = true
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
