package main

import (
	"fmt"
	"os"

	"github.com/AndrewLester/countdown/internal/rpc"
	"github.com/AndrewLester/countdown/internal/ui"
	"github.com/AndrewLester/countdown/pkg/countdown"
	log "github.com/sirupsen/logrus"
)

func handleCountdownUI(timer *countdown.Timer) {
	source := func() (*rpc.Status, error) {
		status := rpc.StatusOf(timer)
		return &status, nil
	}
	stop := func() error {
		timer.Stop()
		return nil
	}

	runCountdownUI(ui.NewCountdownModel("Countdown", source, stop))
}

func handleAttachUI(socket string) {
	client, err := rpc.Dial(socket)
	if err != nil {
		log.Fatalf("Error connecting to countdown daemon: %v", err)
	}
	defer client.Close()

	stop := func() error {
		_, err := client.Stop()
		return err
	}

	runCountdownUI(ui.NewCountdownModel("Countdown - "+daemonName, client.FetchStatus, stop))
}

func runCountdownUI(model ui.CountdownModel) {
	final, err := ui.Run(model)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if status := final.(ui.CountdownModel).Status(); status != nil && status.Expired() {
		log.WithField("id", status.ID).Infoln("Countdown expired")
	}
}
