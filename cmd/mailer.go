/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/yamdb/apiserver/config"
	"github.com/yamdb/apiserver/internal/mailer"
	"github.com/yamdb/apiserver/internal/mq"
)

// mailerCmd represents the mailer command
var mailerCmd = &cobra.Command{
	Use:   "mailer",
	Short: "Delivers queued confirmation mail",
	Long: `Consumes MAIL_QUEUE and delivers each message through MAIL_BACKEND.
Run it alongside "yamdb server" when MAIL_QUEUE is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		if strings.TrimSpace(cfg.Mail.Queue) == "" {
			return errors.New("MAIL_QUEUE is required")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		broker, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return fmt.Errorf("open mail queue: %w", err)
		}
		defer broker.Close()

		sender, err := mailer.NewSender(ctx, cfg)
		if err != nil {
			return err
		}
		defer sender.Close()

		err = mailer.NewWorker(broker, cfg.Mail.Queue, sender, slog.Default()).Run(ctx)
		if errors.Is(err, ctx.Err()) {
			slog.Info("mailer worker stopped")
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(mailerCmd)
}
