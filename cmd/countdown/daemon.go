package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/AndrewLester/countdown/internal/rpc"
	"github.com/AndrewLester/countdown/pkg/countdown"
	"github.com/AndrewLester/countdown/pkg/sntp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sevlyar/go-daemon"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const daemonName = "countdownd"

var daemonCtx = &daemon.Context{
	PidFileName: filepath.Join(os.TempDir(), daemonName+".pid"),
	PidFilePerm: 0644,
	LogFileName: filepath.Join(os.TempDir(), daemonName+".log"),
	LogFilePerm: 0640,
	WorkDir:     "./",
	Umask:       027,
	Args:        append([]string{daemonName}, os.Args[1:]...),
}

func killDaemon() {
	process, err := daemonCtx.Search()
	if err != nil {
		log.Fatalf("Error finding daemon: %v", err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		log.Fatal("Couldn't stop countdown daemon.")
	}
}

// serveDaemon runs the countdown with its RPC socket and, if metrics is
// set, a Prometheus endpoint until SIGTERM.
func serveDaemon(config sntp.Config, args countdownArgs, socket, metrics string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := sntp.NewClient(config)
	if err != nil {
		return err
	}
	timer := countdown.NewTimer(client)
	defer timer.Stop()

	current, err := args.start(ctx, timer)
	if err != nil {
		return err
	}

	group, ctx := errgroup.WithContext(ctx)

	server := &rpc.CountdownRPCServer{Socket: socket, Timer: timer}
	group.Go(func() error {
		return server.Listen(ctx)
	})

	if metrics != "" {
		prometheus.MustRegister(countdown.RemainingCollector(timer))
		group.Go(func() error {
			return serveMetrics(ctx, metrics)
		})
	}

	// The daemon keeps answering status requests after expiry until it is
	// stopped.
	group.Go(func() error {
		err := watchCountdown(ctx, current)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	return group.Wait()
}

func serveMetrics(ctx context.Context, address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Infoln("Serving metrics on", address)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
