package main

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <token>",
	Short: "Show whether a QR login has been approved",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := client.Verify(cmd.Context(), tokenArg(args[0]))
		if err != nil {
			return err
		}

		if flagJSON {
			return printJSON(status)
		}
		fmt.Printf("State:   %s\n", status.State)
		fmt.Printf("Expires: %s\n", status.ExpiresAt.Local().Format(time.Kitchen))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// tokenArg accepts either a bare token or a scanned QR payload.
func tokenArg(arg string) string {
	if !strings.Contains(arg, "token=") {
		return arg
	}
	if u, err := url.Parse(arg); err == nil {
		if tok := u.Query().Get("token"); tok != "" {
			return tok
		}
	}
	return arg
}
