/*
Package qrsdk provides a client SDK for the OmniPDF QR login service.

# Overview

A QR login moves an authenticated identity from one device to another. The
device that wants to sign in (the displaying device) creates a session and
renders its token as a QR code. A device that is already signed in (the
approving device) scans the code and approves it. The displaying device then
consumes the session and receives an access token of its own.

Both halves use the same Client; only the bearer token differs:

	display := qrsdk.NewClient("https://auth.example.com", displayToken)
	created, err := display.Create(ctx)

	phone := qrsdk.NewClient("https://auth.example.com", phoneToken)
	err = phone.Authenticate(ctx, scannedToken, "")

	status, err := display.WaitForApproval(ctx, created.Token, 0)
	cred, err := display.Consume(ctx, created.Token)

Watch is a push alternative to WaitForApproval over a websocket:

	ev, err := display.Watch(ctx, created.Token, func(ev qrsdk.WatchEvent) error {
		log.Printf("session state: %s", ev.State)
		return nil
	})

# Errors

Every non-2xx response is returned as an *APIError. Compare against the
predefined values with errors.Is:

	if errors.Is(err, qrsdk.ErrExpired) {
		// show a fresh code
	}

The same APIError values are what the server writes, so client and server
cannot drift apart on codes or status.
*/
package qrsdk
