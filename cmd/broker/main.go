// Command broker runs the pub/sub core described in spec §4.4: a TCP
// listener plus an admin console on stdin that accepts a single command,
// "shutdown".
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/gonzalop/cityeye/internal/broker"
)

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintln(os.Stderr, "usage: broker <host> <port>")
		os.Exit(1)
	}
	addr := os.Args[1] + ":" + os.Args[2]

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg := broker.Config{Logger: logger}
	if path := os.Getenv("CITYEYE_CLIENTS_FILE"); path != "" {
		creds, err := broker.LoadCredentialStore(path)
		if err != nil {
			logger.Error("loading clients file", slog.Any("error", err))
			os.Exit(1)
		}
		cfg.Credentials = creds
	} else {
		cfg.Credentials = broker.NewCredentialStore(nil)
	}

	b := broker.NewBroker(cfg)

	serveErr := make(chan error, 1)
	go func() { serveErr <- b.ListenAndServe(addr) }()

	adminErr := make(chan error, 1)
	go func() { adminErr <- b.RunAdminConsole(context.Background(), os.Stdin) }()

	select {
	case err := <-serveErr:
		if err != nil {
			if errors.Is(err, broker.ErrBind) {
				fmt.Fprintf(os.Stderr, "BindError: %v\n", err)
			} else {
				logger.Error("serve stopped", slog.Any("error", err))
			}
			os.Exit(1)
		}
		os.Exit(0)
	case err := <-adminErr:
		if errors.Is(err, broker.ErrInvalidCommand) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		if err != nil {
			logger.Error("admin console error", slog.Any("error", err))
			os.Exit(1)
		}
		os.Exit(0)
	}
}
