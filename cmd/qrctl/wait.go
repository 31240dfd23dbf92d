package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/omnipdf/qrauth/pkg/qrsdk"
)

var (
	flagWaitInterval time.Duration
	flagWaitWatch    bool
)

var waitCmd = &cobra.Command{
	Use:   "wait <token>",
	Short: "Wait for a QR login to be approved, then redeem it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAuth(); err != nil {
			return err
		}
		token := tokenArg(args[0])

		if flagWaitWatch {
			_, err := client.Watch(cmd.Context(), token, func(ev qrsdk.WatchEvent) error {
				if !flagJSON && ev.Type == qrsdk.EventStatus {
					fmt.Printf("state: %s\n", ev.State)
				}
				return nil
			})
			if err != nil {
				return err
			}
		} else if _, err := client.WaitForApproval(cmd.Context(), token, flagWaitInterval); err != nil {
			return err
		}

		return consumeAndPrint(cmd, token)
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <token>",
	Short: "Abandon a QR login created by the signed-in user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAuth(); err != nil {
			return err
		}
		if err := client.Cancel(cmd.Context(), tokenArg(args[0])); err != nil {
			return err
		}
		if !flagJSON {
			fmt.Println("Cancelled.")
		}
		return nil
	},
}

func init() {
	waitCmd.Flags().DurationVar(&flagWaitInterval, "interval", qrsdk.DefaultPollInterval, "Polling interval")
	waitCmd.Flags().BoolVar(&flagWaitWatch, "watch", false, "Use the websocket push endpoint instead of polling")
	rootCmd.AddCommand(waitCmd, cancelCmd)
}

func consumeAndPrint(cmd *cobra.Command, token string) error {
	cred, err := client.Consume(cmd.Context(), token)
	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(cred)
	}
	fmt.Printf("Signed in as %s (expires in %ds)\n", cred.UserID, cred.ExpiresIn)
	fmt.Println(cred.AccessToken)
	return nil
}
