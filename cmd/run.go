package cmd

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/LLIEPJIOK/wsload/pkg/ws"
	"github.com/spf13/cobra"
)

var errURLRequired = errors.New("--url is required")

func interruptContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

type serverHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func startServer(ctx context.Context, server *ws.Server, ln net.Listener) *serverHandle {
	ctx, cancel := context.WithCancel(ctx)

	h := &serverHandle{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(h.done)
		h.err = server.Serve(ctx, ln)
	}()

	return h
}

func (h *serverHandle) stop() error {
	h.cancel()
	<-h.done

	return h.err
}

// awaitInterrupt ждёт сигнала без таймаута, затем останавливает сервер.
func (a *app) awaitInterrupt(ctx context.Context, server *serverHandle) error {
	var serverDone <-chan struct{}
	if server != nil {
		serverDone = server.done
	}

	select {
	case <-ctx.Done():
		a.logger.Info("interrupt received, shutting down")
	case <-serverDone:
		if ctx.Err() != nil {
			return server.err
		}

		a.logger.Error("server stopped unexpectedly", "error", server.err)

		return server.err
	}

	if server == nil {
		return nil
	}

	return server.stop()
}

func runCombined(cmd *cobra.Command, opts *globalOptions) error {
	a, err := wireApp(cmd, opts)
	if err != nil {
		return err
	}

	ctx, stop := interruptContext(cmd)
	defer stop()

	server := a.newServer()

	ln, err := server.Bind(a.cfg.Server.Addr)
	if err != nil {
		return err
	}

	handle := startServer(ctx, server, ln)

	orchestrator, err := a.newFleet(server.URL(ln))
	if err != nil {
		_ = handle.stop()
		return err
	}

	a.raiseFileLimit()

	if _, err := orchestrator.Run(ctx); err != nil && ctx.Err() == nil {
		_ = handle.stop()
		return err
	}

	if ctx.Err() == nil {
		a.logger.Info("finished all rounds, Ctrl-C to exit")
	}

	return a.awaitInterrupt(ctx, handle)
}

func newServerCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run only the WebSocket echo server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := wireApp(cmd, opts)
			if err != nil {
				return err
			}

			ctx, stop := interruptContext(cmd)
			defer stop()

			server := a.newServer()

			ln, err := server.Bind(a.cfg.Server.Addr)
			if err != nil {
				return err
			}

			return a.awaitInterrupt(ctx, startServer(ctx, server, ln))
		},
	}

	addServerFlags(cmd)

	return cmd
}

func newClientCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Run only the client fleet against an external server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := wireApp(cmd, opts)
			if err != nil {
				return err
			}

			if a.cfg.Client.URL == "" {
				return errURLRequired
			}

			ctx, stop := interruptContext(cmd)
			defer stop()

			orchestrator, err := a.newFleet(a.cfg.Client.URL)
			if err != nil {
				return err
			}

			a.raiseFileLimit()

			if _, err := orchestrator.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}

			if ctx.Err() == nil {
				a.logger.Info("finished all rounds, Ctrl-C to exit")
			}

			return a.awaitInterrupt(ctx, nil)
		},
	}

	addFleetFlags(cmd)
	addClientFlags(cmd)

	return cmd
}
