package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ppn/presentation/configuration"
	"ppn/presentation/runners/client"
)

const PackageName = "ppn"

func main() {
	headless := flag.Bool("headless", false, "run without the dashboard")
	writeDefault := flag.Bool("init", false, "write a default configuration and exit")
	flag.Parse()

	manager := configuration.NewManager(configuration.NewClientResolver())

	if *writeDefault {
		if err := manager.Write(configuration.Default()); err != nil {
			fmt.Fprintf(os.Stderr, "write configuration: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if os.Geteuid() != 0 {
		fmt.Printf("Warning: %s must be run with admin privileges\n", PackageName)
	}

	conf, err := manager.Configuration()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	appCtx, appCtxCancel := context.WithCancel(context.Background())
	defer appCtxCancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		<-sigChan
		fmt.Println("\nInterrupt received. Shutting down...")
		appCtxCancel()
	}()

	runner := client.NewRunner(*conf, !*headless)
	if err := runner.Run(appCtx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
