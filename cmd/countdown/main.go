package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AndrewLester/countdown/internal/dateparse"
	"github.com/AndrewLester/countdown/internal/rpc"
	"github.com/AndrewLester/countdown/pkg/countdown"
	"github.com/AndrewLester/countdown/pkg/sntp"
	"github.com/caarlos0/env/v6"
	"github.com/sevlyar/go-daemon"
	log "github.com/sirupsen/logrus"
)

const defaultStep = 10 * time.Millisecond

type logConfig struct {
	Info   bool   `env:"INFO" envDefault:"false"`
	Debug  bool   `env:"DEBUG" envDefault:"false"`
	Format string `env:"LOG_FORMAT" envDefault:"text"`
}

func main() {
	var duration string
	var date string
	var step time.Duration
	var noUI bool
	var runDaemon bool
	var socket string
	var metrics string
	var attach bool
	var query string
	var compare bool
	var serve string
	var serveOffset time.Duration
	flag.StringVar(&duration, "duration", "", "Countdown length in milliseconds or as a Go duration (e.g. 90s).")
	flag.StringVar(&duration, "d", duration, "Countdown length in milliseconds or as a Go duration (e.g. 90s).")
	flag.StringVar(&date, "date", "", "Target date to count down to, synced with the NTP servers.")
	flag.DurationVar(&step, "step", defaultStep, "Tick step of the countdown.")
	flag.BoolVar(&noUI, "no-ui", false, "Log the remaining time instead of showing the terminal UI.")
	flag.BoolVar(&runDaemon, "daemon", false, "Run the countdown as a daemon. Running it again stops the daemon.")
	flag.StringVar(&socket, "socket", rpc.DefaultSocket, "Path to the daemon's RPC socket.")
	flag.StringVar(&metrics, "metrics", "", "Address to serve Prometheus metrics on in daemon mode.")
	flag.BoolVar(&attach, "attach", false, "Show the countdown of a running daemon.")
	flag.StringVar(&query, "query", "", "NTP server to query once.")
	flag.StringVar(&query, "q", query, "NTP server to query once.")
	flag.BoolVar(&compare, "compare", false, "Cross-check -query with a second NTP implementation.")
	flag.StringVar(&serve, "serve", "", "Address to run a local SNTP server on.")
	flag.DurationVar(&serveOffset, "serve-offset", 0, "Clock offset of the local SNTP server.")
	flag.Parse()

	setupLogging()

	config, err := sntp.LoadConfig()
	if err != nil {
		log.Fatalf("Invalid NTP configuration: %v", err)
	}

	switch {
	case serve != "":
		handleServeCommand(serve, serveOffset)
	case query != "":
		handleQueryCommand(config, query, compare)
	case attach:
		handleAttachUI(socket)
	case runDaemon:
		if duration == "" && date == "" {
			toggleDaemonOff()
			return
		}
		handleDaemonCommand(config, countdownArgs{duration, date, step}, socket, metrics)
	default:
		if duration == "" && date == "" {
			flag.Usage()
			os.Exit(2)
		}
		handleCountdownCommand(config, countdownArgs{duration, date, step}, noUI)
	}
}

func setupLogging() {
	var config logConfig
	if err := env.Parse(&config); err != nil {
		log.Fatalf("Invalid logging configuration: %v", err)
	}

	switch {
	case config.Debug:
		log.SetLevel(log.DebugLevel)
	case config.Info:
		log.SetLevel(log.InfoLevel)
	default:
		log.SetLevel(log.WarnLevel)
	}
	if config.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	}
}

type countdownArgs struct {
	duration string
	date     string
	step     time.Duration
}

// start parses the countdown arguments before anything is scheduled, so an
// invalid target never reaches the timer.
func (args countdownArgs) start(ctx context.Context, timer *countdown.Timer) (*countdown.Time, error) {
	step := args.step.Milliseconds()

	if args.date != "" {
		target, err := dateparse.ParseTarget(args.date, nil)
		if err != nil {
			return nil, err
		}
		log.Infoln("Counting down to", target.Format(dateparse.DisplayLayout))
		return timer.StartWithTarget(ctx, target.UnixMilli(), step), nil
	}

	millis, err := dateparse.ParseDuration(args.duration)
	if err != nil {
		return nil, err
	}
	return timer.StartWithDuration(millis, step), nil
}

func handleCountdownCommand(config sntp.Config, args countdownArgs, noUI bool) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := sntp.NewClient(config)
	if err != nil {
		log.Fatalf("Invalid NTP configuration: %v", err)
	}
	timer := countdown.NewTimer(client)
	defer timer.Stop()

	current, err := args.start(ctx, timer)
	if err != nil {
		log.Fatal(err)
	}

	if noUI {
		if err := watchCountdown(ctx, current); err != nil && !errors.Is(err, context.Canceled) {
			log.Fatal(err)
		}
		return
	}
	handleCountdownUI(timer)
}

// watchCountdown logs the remaining time once a second until the countdown
// expires or ctx is done.
func watchCountdown(ctx context.Context, current *countdown.Time) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		if current.Expired() {
			fmt.Println("Time is up!")
			log.WithField("id", current.ID()).Infoln("Countdown expired")
			return nil
		}
		log.WithField("id", current.ID()).Infoln("Remaining:", time.Duration(current.Get())*time.Millisecond, "mode:", current.Mode())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func toggleDaemonOff() {
	if _, err := daemonCtx.Search(); err != nil {
		fmt.Println("No countdown daemon is running. Pass -duration or -date to start one.")
		return
	}
	killDaemon()
	fmt.Println("Successfully stopped countdown daemon.")
}

func handleDaemonCommand(config sntp.Config, args countdownArgs, socket, metrics string) {
	// Validate before detaching so errors reach the terminal
	if args.date != "" {
		if _, err := dateparse.ParseTarget(args.date, nil); err != nil {
			log.Fatal(err)
		}
	} else if _, err := dateparse.ParseDuration(args.duration); err != nil {
		log.Fatal(err)
	}

	d, err := daemonCtx.Reborn()
	if err != nil {
		if errors.Is(err, daemon.ErrWouldBlock) {
			killDaemon()
			fmt.Println("Successfully stopped countdown daemon.")
			return
		}
		log.Fatal("Unable to run: ", err)
	}
	if d != nil {
		fmt.Printf("Daemon process (%s, %d) started successfully.\n", daemonName, d.Pid)
		return
	}
	defer daemonCtx.Release()

	log.Info("- - - - - - - - - - - - - - -")
	log.Info("daemon started ", os.Args)

	if err := serveDaemon(config, args, socket, metrics); err != nil {
		log.Fatal(err)
	}
	log.Info("daemon stopped")
}
