package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AndrewLester/countdown/pkg/sntp"
	log "github.com/sirupsen/logrus"
)

func handleServeCommand(address string, offset time.Duration) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := &sntp.Server{Offset: offset}
	go func() {
		<-ctx.Done()
		server.Close()
	}()

	log.Infoln("Serving SNTP on", address, "with an offset of", offset)
	if err := server.ListenAndServe(address); err != nil {
		log.Fatalf("SNTP server: %v", err)
	}
}
