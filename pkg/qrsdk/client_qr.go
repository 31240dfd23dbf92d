package qrsdk

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"
)

// DefaultPollInterval is how often WaitForApproval polls the verify endpoint.
const DefaultPollInterval = 2 * time.Second

// Create starts a new QR login session owned by the client's user. The
// returned Token must be kept secret by the displaying device; it is also
// embedded in QRPayload for the approving device to scan.
func (c *Client) Create(ctx context.Context) (*CreateResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/qr/create", nil, true)
	if err != nil {
		return nil, err
	}

	var out CreateResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Authenticate approves a scanned session as the client's user.
// deviceToken is optional.
func (c *Client) Authenticate(ctx context.Context, token, deviceToken string) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/qr/authenticate", AuthenticateRequest{
		Token:       token,
		DeviceToken: deviceToken,
	}, true)
	if err != nil {
		return err
	}

	var out AuthenticateResponse
	return decodeJSON(resp, &out, http.StatusOK)
}

// Verify reports whether a session has been approved. It needs no bearer
// token; possession of the session token is the capability.
func (c *Client) Verify(ctx context.Context, token string) (*VerifyResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/v1/qr/verify?token="+url.QueryEscape(token), nil, false)
	if err != nil {
		return nil, err
	}

	var out VerifyResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Consume exchanges an approved session for an access token. The session is
// destroyed; a second call returns ErrNotFound.
func (c *Client) Consume(ctx context.Context, token string) (*ConsumeResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/qr/consume", TokenRequest{Token: token}, true)
	if err != nil {
		return nil, err
	}

	var out ConsumeResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Cancel abandons a session the client's user created.
func (c *Client) Cancel(ctx context.Context, token string) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/qr/cancel", TokenRequest{Token: token}, true)
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// WaitForApproval polls Verify until the session is approved, the session
// stops existing, or ctx is done. A non-positive interval uses
// DefaultPollInterval.
func (c *Client) WaitForApproval(ctx context.Context, token string, interval time.Duration) (*VerifyResponse, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := c.Verify(ctx, token)
		if err != nil {
			var apiErr *APIError
			if !errors.As(err, &apiErr) && ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		if status.Authenticated {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Login drives the displaying-device half of the handshake: it creates a
// session, hands it to show, waits for approval and consumes it.
func (c *Client) Login(ctx context.Context, interval time.Duration, show func(*CreateResponse) error) (*ConsumeResponse, error) {
	created, err := c.Create(ctx)
	if err != nil {
		return nil, err
	}
	if show != nil {
		if err := show(created); err != nil {
			_ = c.Cancel(context.WithoutCancel(ctx), created.Token)
			return nil, err
		}
	}

	if _, err := c.WaitForApproval(ctx, created.Token, interval); err != nil {
		if ctx.Err() != nil {
			_ = c.Cancel(context.WithoutCancel(ctx), created.Token)
		}
		return nil, err
	}
	return c.Consume(ctx, created.Token)
}
