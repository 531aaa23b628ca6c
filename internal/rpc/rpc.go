package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	netrpc "net/rpc"
	"os"
	"sync"

	"github.com/AndrewLester/countdown/pkg/countdown"
	log "github.com/sirupsen/logrus"
)

const DefaultSocket = "/tmp/countdownd.sock"

const serviceName = "CountdownRPCServer"

var logger = log.WithField("component", "rpc")

// Status is a snapshot of the daemon's current countdown.
type Status struct {
	ID        string
	Remaining int64 // milliseconds
	Initial   int64 // milliseconds
	Mode      string
	Running   bool
}

// Expired reports whether a countdown exists and reached zero.
func (s *Status) Expired() bool {
	return s.ID != "" && s.Remaining <= 0
}

// StatusOf snapshots the current countdown of timer.
func StatusOf(timer *countdown.Timer) Status {
	status := Status{Running: timer.Running()}

	current := timer.Current()
	if current == nil {
		return status
	}
	status.ID = current.ID().String()
	status.Remaining = current.Get()
	status.Initial = current.Initial()
	status.Mode = current.Mode().String()
	return status
}

type CountdownRPCServer struct {
	Socket string
	Timer  *countdown.Timer

	lock     sync.Mutex
	listener net.Listener
}

// Listen serves RPC requests on the unix socket until ctx is done or Close
// is called. A stale socket file is replaced.
func (s *CountdownRPCServer) Listen(ctx context.Context) error {
	server := netrpc.NewServer()
	if err := server.RegisterName(serviceName, s); err != nil {
		return err
	}

	if err := os.Remove(s.Socket); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("bind error: %w", err)
	}

	listener, err := net.Listen("unix", s.Socket)
	if err != nil {
		return fmt.Errorf("listen error: %w", err)
	}

	s.lock.Lock()
	s.listener = listener
	s.lock.Unlock()

	logger.Infoln("RPC server listening on", s.Socket)

	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go server.ServeConn(conn)
	}
}

func (s *CountdownRPCServer) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.listener == nil {
		return nil
	}
	err := s.listener.Close()
	s.listener = nil
	return err
}

func (s *CountdownRPCServer) FetchStatus(args int, reply *Status) error {
	*reply = StatusOf(s.Timer)
	return nil
}

func (s *CountdownRPCServer) Stop(args int, reply *bool) error {
	*reply = s.Timer.Running()
	s.Timer.Stop()
	logger.Infoln("Countdown stopped over RPC")
	return nil
}

type Client struct {
	client *netrpc.Client
}

func Dial(socket string) (*Client, error) {
	client, err := netrpc.Dial("unix", socket)
	if err != nil {
		return nil, err
	}
	return &Client{client: client}, nil
}

func (c *Client) FetchStatus() (*Status, error) {
	var status Status
	if err := c.client.Call(serviceName+".FetchStatus", 0, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Stop stops the daemon's countdown and reports whether it was running.
func (c *Client) Stop() (bool, error) {
	var wasRunning bool
	err := c.client.Call(serviceName+".Stop", 0, &wasRunning)
	return wasRunning, err
}

func (c *Client) Close() error {
	return c.client.Close()
}
