package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var flagDeviceToken string

var approveCmd = &cobra.Command{
	Use:   "approve <token>",
	Short: "Approve a QR login as the signed-in user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAuth(); err != nil {
			return err
		}

		if err := client.Authenticate(cmd.Context(), tokenArg(args[0]), flagDeviceToken); err != nil {
			return err
		}

		if flagJSON {
			return printJSON(map[string]bool{"success": true})
		}
		fmt.Println("Approved.")
		return nil
	},
}

func init() {
	approveCmd.Flags().StringVar(&flagDeviceToken, "device-token", "", "Push token of this device, recorded for audit")
	rootCmd.AddCommand(approveCmd)
}
