package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rahul/operator/internal/gateway"
	"github.com/rahul/operator/internal/observability"
	"github.com/rahul/operator/internal/scheduler"
)

func newServeCmd() *cobra.Command {
	var dashboard bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat gateways and the case scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), dashboard)
		},
	}
	cmd.Flags().BoolVar(&dashboard, "dashboard", true, "draw the banner and live status line")
	return cmd
}

func serve(parent context.Context, dashboard bool) error {
	if dashboard {
		observability.PrintBanner()
		observability.InitializeTerminal()
		defer observability.CleanupTerminal()
	}

	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	dispatcher := gateway.NewDispatcher(a.cases, a.store, a.store)
	gateways := map[string]gateway.Messenger{}
	if gw, ok := a.cfg.GetGatewayConfig(gateway.NameTelegram); ok {
		tg, err := gateway.NewTelegramGateway(gw.Token, dispatcher)
		if err != nil {
			return err
		}
		gateways[gateway.NameTelegram] = tg
	}
	if gw, ok := a.cfg.GetGatewayConfig(gateway.NameDiscord); ok {
		dg, err := gateway.NewDiscordGateway(gw.Token, dispatcher)
		if err != nil {
			return err
		}
		gateways[gateway.NameDiscord] = dg
	}
	if len(gateways) == 0 {
		return errors.New("no gateway is enabled with a token; configure gateways.telegram or gateways.discord")
	}

	messengers := make(map[string]scheduler.Messenger, len(gateways))
	for name, m := range gateways {
		messengers[name] = m
	}
	go scheduler.New(a.cases, a.store, messengers).Start(ctx)

	if dashboard {
		go func() {
			ticker := time.NewTicker(1 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					observability.PrintLiveStatus()
				}
			}
		}()
	}

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				observability.Heartbeat()
				a.events.LogHeartbeat()
			}
		}
	}()

	for name, m := range gateways {
		go func() {
			if err := m.Start(ctx); err != nil {
				a.log.Error("Gateway stopped", zap.String("gateway", name), zap.Error(err))
				stop()
			}
		}()
	}

	<-ctx.Done()
	for name, m := range gateways {
		if err := m.Stop(); err != nil {
			a.log.Warn("Error stopping gateway", zap.String("gateway", name), zap.Error(err))
		}
	}
	// Give in-flight replies a moment to flush.
	time.Sleep(500 * time.Millisecond)
	a.log.Info("Operator stopped")
	return nil
}
