// Package main is a line-oriented terminal client for the chat relay. The
// first line is the display name unless one is configured; every later line
// is sent as a message.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Tyrowin/gochat-relay/internal/chatclient"
	"github.com/Tyrowin/gochat-relay/internal/logging"
)

const typersRefresh = time.Second

func main() {
	cfg, err := ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.New(os.Stderr, cfg.LogLevel)
	if err := run(ctx, cfg, os.Stdin, os.Stdout, logger); err != nil {
		logger.Error("chat client stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config, in io.Reader, out io.Writer, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := newPrinter(out)
	client := chatclient.NewClient(chatclient.Config{
		URL:             cfg.ServerURL,
		Origin:          cfg.Origin,
		ReconnectWindow: cfg.ReconnectWindow,
	}, logger)

	var session *chatclient.Session
	session = chatclient.NewSession(client, chatclient.Options{
		Logger:       logger,
		OnChange:     func() { p.render(session) },
		OnJoinNotice: func(name string) { p.notice("%s has joined the chat", name) },
	})
	defer session.Close()

	runErr := make(chan error, 1)
	go func() { runErr <- client.Run(ctx, session) }()

	lines := readLines(ctx, in)
	if cfg.Name != "" {
		if err := session.Join(cfg.Name); err != nil {
			return fmt.Errorf("join: %w", err)
		}
	} else {
		p.notice("Enter your name:")
	}

	ticker := time.NewTicker(typersRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return <-runErr
		case err := <-runErr:
			return err
		case <-ticker.C:
			p.render(session)
		case line, ok := <-lines:
			if !ok {
				cancel()
				return <-runErr
			}
			handleLine(session, p, line)
		}
	}
}

func handleLine(session *chatclient.Session, p *printer, line string) {
	if session.State() == chatclient.Unjoined {
		if err := session.Join(line); err != nil {
			p.notice("Enter your name:")
		}
		return
	}

	session.SetText(line)
	if _, err := session.Send(); err != nil && !errors.Is(err, chatclient.ErrEmptyMessage) {
		p.notice("not sent: %v", err)
	}
}

func readLines(ctx context.Context, in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}
