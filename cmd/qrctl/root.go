package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/omnipdf/qrauth/pkg/qrsdk"
)

var (
	flagJSON      bool
	flagServerURL string
	flagToken     string

	client *qrsdk.Client
)

var rootCmd = &cobra.Command{
	Use:   "qrctl",
	Short: "Drive OmniPDF QR logins from the terminal",
	Long: `qrctl talks to the OmniPDF QR login service.

Typical flow:
  qrctl create --wait           Show a code on this machine and wait for approval
  qrctl approve <token>         Approve a code from another signed-in session
  qrctl status <token>          Check whether a code was approved`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if flagToken == "" {
			flagToken = os.Getenv("QRCTL_TOKEN")
		}
		client = qrsdk.NewClient(flagServerURL, flagToken)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Output as JSON")
	rootCmd.PersistentFlags().StringVar(&flagServerURL, "server", envOr("QRCTL_SERVER", "http://localhost:8080"), "QR login service URL")
	rootCmd.PersistentFlags().StringVar(&flagToken, "token", "", "Bearer token of the signed-in user (default: $QRCTL_TOKEN)")
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", describe(err))
		return err
	}
	return nil
}

func requireAuth() error {
	if client == nil || client.AccessToken == "" {
		return errors.New("no bearer token, pass --token or set QRCTL_TOKEN")
	}
	return nil
}

// describe turns API errors into something a person can act on.
func describe(err error) string {
	switch {
	case errors.Is(err, qrsdk.ErrExpired):
		return "the QR code has expired, create a new one"
	case errors.Is(err, qrsdk.ErrNotFound):
		return "no such QR code (it may have been used or cancelled)"
	case errors.Is(err, qrsdk.ErrAlreadyAuthenticated):
		return "the QR code was already approved"
	case errors.Is(err, qrsdk.ErrNotAuthenticated):
		return "the QR code has not been approved yet"
	}
	var apiErr *qrsdk.APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("%s (HTTP %d)", apiErr.Description, apiErr.StatusCode)
	}
	return err.Error()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
