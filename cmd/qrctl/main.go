// Command qrctl drives the QR login handshake from a terminal, for testing
// deployments and for headless devices.
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
