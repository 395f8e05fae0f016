// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/halyard-chat/halyard/desk"
	"github.com/halyard-chat/halyard/lib/clock"
	"github.com/halyard-chat/halyard/lib/config"
	"github.com/halyard-chat/halyard/lib/engine"
	"github.com/halyard-chat/halyard/lib/matrixengine"
	"github.com/halyard-chat/halyard/lib/ref"
	"github.com/halyard-chat/halyard/lib/secret"
	"github.com/halyard-chat/halyard/lib/service"
	"github.com/halyard-chat/halyard/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var flags service.CommonFlags
	flagSet := pflag.NewFlagSet("halyard-daemon", pflag.ContinueOnError)
	service.RegisterCommonFlags(flagSet, &flags)
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if flags.ShowVersion {
		fmt.Printf("halyard-daemon %s\n", version.Info())
		return nil
	}

	boot, err := service.Bootstrap(flags)
	if err != nil {
		return err
	}
	logger := boot.Logger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	daemon, err := newDaemon(boot.Config, clock.Real(), logger)
	if err != nil {
		return err
	}
	defer daemon.close()

	logger.Info("halyard-daemon starting",
		"version", version.Info(),
		"socket", boot.SocketPath,
		"data_root", boot.Config.Paths.DataRoot,
		"environment", boot.Config.Environment,
	)
	return daemon.serve(ctx, boot.SocketPath)
}

// sessionDesk is the session layer the socket actions drive.
// *desk.Manager implements it.
type sessionDesk interface {
	Login(ctx context.Context, homeserverURL, username string, password *secret.Buffer) (desk.SessionInfo, error)
	Session() (desk.SessionInfo, bool)
	Logout(ctx context.Context) error
	Sync(ctx context.Context) error

	ListRooms(ctx context.Context) ([]desk.RoomSummary, error)
	FetchMessages(ctx context.Context, room string, pageSize int, fromCursor string) (desk.MessagePage, error)
	FetchOlderMessages(ctx context.Context, room string, pageSize int) (desk.MessagePage, error)
	SendMessage(ctx context.Context, room, body string) (ref.EventID, error)

	CheckVerificationStatus(ctx context.Context) (desk.VerificationStatus, error)
	Verification() (string, desk.VerificationState)
	RequestVerification(ctx context.Context) (engine.Device, error)
	GetVerificationEmoji(ctx context.Context) ([]engine.Emoji, error)
	ConfirmVerification(ctx context.Context) (bool, error)
	CancelVerification(ctx context.Context) error
	VerifyWithRecoveryKey(ctx context.Context, recoveryKey *secret.Buffer) error

	Close() error
}

var _ sessionDesk = (*desk.Manager)(nil)

// Daemon serves one sessionDesk on the socket.
type Daemon struct {
	desk         sessionDesk
	clock        clock.Clock
	startedAt    time.Time
	syncInterval time.Duration
	logger       *slog.Logger

	// lastSync is the Unix millisecond time of the last successful
	// background sync.
	lastSync atomic.Int64
}

// newDaemon builds the homeserver connector and the session manager
// from cfg.
func newDaemon(cfg *config.Config, clk clock.Clock, logger *slog.Logger) (*Daemon, error) {
	requestTimeout, err := cfg.Homeserver.Timeout()
	if err != nil {
		return nil, err
	}
	emojiPolicy, err := cfg.Verification.EmojiPolicy()
	if err != nil {
		return nil, err
	}
	completionPolicy, err := cfg.Verification.CompletionPolicy()
	if err != nil {
		return nil, err
	}
	syncInterval, err := cfg.Daemon.BackgroundSync()
	if err != nil {
		return nil, err
	}

	hostname, _ := os.Hostname()
	connector := matrixengine.Connector{
		HTTPClient:        &http.Client{Timeout: requestTimeout},
		DeviceDisplayName: deviceDisplayName(hostname),
		Clock:             clk,
		WorkFactor:        cfg.Homeserver.WorkFactor,
	}
	manager, err := desk.NewManager(desk.Config{
		DataRoot:         cfg.Paths.DataRoot,
		Connector:        connector,
		Clock:            clk,
		EmojiPolicy:      emojiPolicy,
		CompletionPolicy: completionPolicy,
		Logger:           logger,
	})
	if err != nil {
		return nil, err
	}
	return &Daemon{
		desk:         manager,
		clock:        clk,
		startedAt:    clk.Now(),
		syncInterval: syncInterval,
		logger:       logger,
	}, nil
}

func deviceDisplayName(hostname string) string {
	if hostname == "" {
		return "Halyard"
	}
	return "Halyard on " + hostname
}

// serve runs the socket server and the background sync until ctx is
// cancelled.
func (d *Daemon) serve(ctx context.Context, socketPath string) error {
	server := service.NewSocketServer(socketPath, d.logger)
	d.registerActions(server)

	if d.syncInterval > 0 {
		go service.RunLoop(ctx, service.LoopConfig{
			Name:     "background-sync",
			Interval: d.syncInterval,
		}, d.syncStep, d.clock, d.logger)
	}

	err := server.Serve(ctx)
	d.logger.Info("halyard-daemon stopped")
	return err
}

// close releases the session's engine without logging out.
func (d *Daemon) close() {
	if err := d.desk.Close(); err != nil {
		d.logger.Warn("closing session failed", "error", err)
	}
}
