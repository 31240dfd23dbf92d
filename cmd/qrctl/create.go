package main

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/omnipdf/qrauth/pkg/qrsdk"
)

var (
	flagCreatePNG      string
	flagCreateWait     bool
	flagCreateInterval time.Duration
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a QR login session for this machine",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAuth(); err != nil {
			return err
		}
		ctx := cmd.Context()

		created, err := client.Create(ctx)
		if err != nil {
			return err
		}

		if flagCreatePNG != "" {
			if err := writeQRImage(flagCreatePNG, created.QRImage); err != nil {
				return err
			}
		}

		if !flagCreateWait {
			if flagJSON {
				return printJSON(created)
			}
			printCreated(created)
			return nil
		}

		if !flagJSON {
			printCreated(created)
			fmt.Println("Waiting for approval...")
		}
		if _, err := client.WaitForApproval(ctx, created.Token, flagCreateInterval); err != nil {
			return err
		}
		return consumeAndPrint(cmd, created.Token)
	},
}

func init() {
	createCmd.Flags().StringVar(&flagCreatePNG, "png", "", "Write the QR code image to this file")
	createCmd.Flags().BoolVar(&flagCreateWait, "wait", false, "Wait for approval and redeem the session")
	createCmd.Flags().DurationVar(&flagCreateInterval, "interval", qrsdk.DefaultPollInterval, "Polling interval while waiting")
	rootCmd.AddCommand(createCmd)
}

func printCreated(c *qrsdk.CreateResponse) {
	fmt.Printf("Session:      %s\n", c.ID)
	fmt.Printf("Display code: %s\n", c.DisplayCode)
	fmt.Printf("Expires:      %s\n", c.ExpiresAt.Local().Format(time.Kitchen))
	fmt.Printf("Payload:      %s\n", c.QRPayload)
	fmt.Printf("Token:        %s\n", c.Token)
}

func writeQRImage(path, dataURI string) error {
	raw, ok := strings.CutPrefix(dataURI, "data:image/png;base64,")
	if !ok {
		return fmt.Errorf("server returned no QR image")
	}
	img, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return fmt.Errorf("decoding QR image: %w", err)
	}
	if err := os.WriteFile(path, img, 0o600); err != nil {
		return fmt.Errorf("writing QR image: %w", err)
	}
	return nil
}
