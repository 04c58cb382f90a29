package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/chatlink/internal/app"
	"github.com/vovakirdan/chatlink/internal/auth"
	"github.com/vovakirdan/chatlink/internal/config"
	"github.com/vovakirdan/chatlink/internal/irc"
	"github.com/vovakirdan/chatlink/internal/listener"
	"github.com/vovakirdan/chatlink/internal/log"
	"github.com/vovakirdan/chatlink/internal/registry"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "chatlink",
		Short:         "Chat session engine with a bot control service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newListenCmd(&configPath))
	root.AddCommand(newHashSecretCmd())
	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot control service",
		RunE: func(cmd *cobra.Command, args []string) error {
			bootLogger := log.New("info")
			cfg, path, err := config.Load(bootLogger, *configPath)
			if err != nil {
				return err
			}
			logger := log.New(cfg.LogLevel)
			logger.Info().Str("config", path).Str("addr", cfg.Addr).Msg("starting chatlink control service")

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(&cfg, logger)
			if err != nil {
				return err
			}
			if err := application.Run(ctx); err != nil {
				return err
			}
			logger.Info().Msg("control service stopped")
			return nil
		},
	}
}

func newListenCmd(configPath *string) *cobra.Command {
	var channel, username, token string

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Join a channel read-only and print its messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			bootLogger := log.New("info")
			cfg, _, err := config.Load(bootLogger, *configPath)
			if err != nil {
				return err
			}
			logger := log.New(cfg.LogLevel)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			reg := registry.New(registry.Config{
				URL:               cfg.ChatURL,
				JoinTimeout:       cfg.JoinTimeout,
				ReconnectBase:     cfg.ReconnectBase,
				ReconnectMax:      cfg.ReconnectMax,
				MaxAttempts:       cfg.MaxAttempts,
				KeepAliveInterval: cfg.KeepAliveInterval,
				AuthSettleDelay:   cfg.AuthSettleDelay,
			}, *logger, nil)

			client := listener.New(reg, listener.Options{
				Room:        channel,
				AccessToken: token,
				Username:    username,
				BufferSize:  cfg.BufferSize,
				OnMessage: func(msg irc.ChatMessage) {
					fmt.Printf("[%s] %s: %s\n", msg.Room, msg.DisplayName, msg.Text)
				},
			}, *logger)

			if err := client.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			client.Stop()
			return nil
		},
	}
	cmd.Flags().StringVar(&channel, "channel", "", "channel to join")
	cmd.Flags().StringVar(&username, "username", "", "account username (anonymous when empty)")
	cmd.Flags().StringVar(&token, "token", "", "account access token (anonymous when empty)")
	_ = cmd.MarkFlagRequired("channel")
	return cmd
}

func newHashSecretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-secret <secret>",
		Short: "Print a bcrypt hash of the control secret for config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashSecret(args[0])
			if err != nil {
				return err
			}
			fmt.Println(hash)
			return nil
		},
	}
}
