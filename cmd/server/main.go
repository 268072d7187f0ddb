// The chatline server relays line-based chat between TCP and WebSocket
// clients: broadcast, direct messages, and a built-in assistant.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/chatline/chatline/internal/agent"
	"github.com/chatline/chatline/internal/server"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "chatline-server: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	// Environment first, flags override.
	cfg := server.NewConfigFromEnv()

	fs := flag.NewFlagSet("chatline-server", flag.ContinueOnError)
	fs.StringVarP(&cfg.ListenAddr, "listen", "l", cfg.ListenAddr, "Chat listen address")
	fs.StringVar(&cfg.HTTPAddr, "http", cfg.HTTPAddr, "Health/metrics/WebSocket address (empty disables)")
	fs.StringVarP(&cfg.Key, "key", "k", cfg.Key, "Shared payload key")
	fs.StringVar(&cfg.Codec, "codec", cfg.Codec, "Payload codec: xor or secretbox")
	fs.IntVar(&cfg.MaxConnections, "max-conns", cfg.MaxConnections, "Maximum concurrent connections")
	fs.StringVar(&cfg.ConnectionLog, "log", cfg.ConnectionLog, "Connection log file (empty disables)")

	var deadlineSec int
	fs.IntVarP(&deadlineSec, "read-deadline", "w", int(cfg.ReadDeadline/time.Second),
		"Per-connection idle read deadline in seconds (0 disables)")

	var showHelp bool
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if showHelp {
		fmt.Println("Usage of chatline-server:")
		fs.PrintDefaults()
		return nil
	}
	cfg.ReadDeadline = time.Duration(deadlineSec) * time.Second

	if err := cfg.Validate(); err != nil {
		return err
	}

	srv, err := server.NewServer(cfg, agent.NewRuleResponder())
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}
