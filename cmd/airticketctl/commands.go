package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/Domenick1991/airticket/config"
	"github.com/Domenick1991/airticket/internal/auth"
	"github.com/Domenick1991/airticket/internal/domain"
	"github.com/Domenick1991/airticket/internal/gateway"
	"github.com/Domenick1991/airticket/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func rootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "airticketctl",
		Short:         "Operator tooling for the airticket service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", envOr("CONFIG_PATH", "config.yaml"), "path to config.yaml")

	load := func() (*config.Config, error) {
		return config.LoadConfig(cfgPath)
	}
	root.AddCommand(migrateCmd(load), tokenCmd(load), callbackCmd(load))
	return root
}

type configLoader func() (*config.Config, error)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func migrateCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema to the configured database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			pool, err := pgxpool.New(cmd.Context(), cfg.Database.DSN())
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer pool.Close()

			applied, err := repository.Migrate(cmd.Context(), pool)
			if err != nil {
				return err
			}
			for _, name := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
			}
			return nil
		},
	}
}

func tokenCmd(load configLoader) *cobra.Command {
	var (
		identityID string
		email      string
		role       string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for an identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			id := uuid.New()
			if identityID != "" {
				if id, err = uuid.Parse(identityID); err != nil {
					return fmt.Errorf("invalid --identity: %w", err)
				}
			}
			r := domain.Role(role)
			if r != domain.RoleCustomer && r != domain.RoleStaff {
				return fmt.Errorf("unknown role %q", role)
			}

			token, err := auth.NewService(cfg.Auth).Issue(id, email, r)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&identityID, "identity", "", "identity id (random when empty)")
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleStaff), "customer or staff")
	return cmd
}

// callbackCmd replays a signed gateway notification, for local testing
// without the provider.
func callbackCmd(load configLoader) *cobra.Command {
	var (
		url        string
		orderID    string
		requestID  string
		amount     int64
		resultCode int
		transID    int64
	)
	cmd := &cobra.Command{
		Use:   "callback",
		Short: "Send a signed payment callback to the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			client := gateway.NewClient(cfg.Gateway, logrus.New())
			cb := gateway.Callback{
				PartnerCode:  cfg.Gateway.PartnerCode,
				OrderID:      orderID,
				RequestID:    requestID,
				Amount:       amount,
				OrderType:    "momo_wallet",
				TransID:      transID,
				ResultCode:   resultCode,
				Message:      "replayed by airticketctl",
				PayType:      "qr",
				ResponseTime: time.Now().UnixMilli(),
			}
			client.SignCallback(&cb)

			body, err := json.Marshal(cb)
			if err != nil {
				return err
			}
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("post callback: %w", err)
			}
			defer resp.Body.Close()

			reply, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", resp.Status, bytes.TrimSpace(reply))
			if resp.StatusCode >= http.StatusBadRequest {
				return fmt.Errorf("callback rejected with %s", resp.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "http://localhost:8080/api/v1/payments/gateway/callback", "callback endpoint")
	cmd.Flags().StringVar(&orderID, "order", "", "gateway order id")
	cmd.Flags().StringVar(&requestID, "request", "", "gateway request id")
	cmd.Flags().Int64Var(&amount, "amount", 0, "amount in minor units")
	cmd.Flags().IntVar(&resultCode, "result", 0, "gateway result code")
	cmd.Flags().Int64Var(&transID, "trans", 0, "gateway transaction id")
	_ = cmd.MarkFlagRequired("order")
	return cmd
}
