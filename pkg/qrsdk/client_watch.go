package qrsdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/coder/websocket"
)

const watchReadLimit = 4 << 10

// Watch opens a websocket to the service and calls fn for every event it
// pushes about the session. It returns the last event once the session is
// approved, expires or closes, or when fn returns an error.
//
// Watch is the push alternative to WaitForApproval; it needs no bearer token.
func (c *Client) Watch(ctx context.Context, token string, fn func(WatchEvent) error) (*WatchEvent, error) {
	wsURL, err := c.watchURL(token)
	if err != nil {
		return nil, err
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPClient: c.HTTPClient,
	})
	if err != nil {
		if resp != nil && resp.Body != nil {
			body, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if apiErr := parseErrorResponse(resp, body); apiErr != nil {
				return nil, apiErr
			}
		}
		return nil, fmt.Errorf("failed to open watch: %w", err)
	}
	defer func() { _ = conn.CloseNow() }()
	conn.SetReadLimit(watchReadLimit)

	for {
		mt, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil, ErrNotFound.WithDescription("watch closed before a final event")
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("watch read failed: %w", err)
		}
		if mt != websocket.MessageText {
			continue
		}

		var ev WatchEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("failed to decode watch event: %w", err)
		}
		if fn != nil {
			if err := fn(ev); err != nil {
				_ = conn.Close(websocket.StatusNormalClosure, "client done")
				return &ev, err
			}
		}

		switch {
		case ev.Type == EventStatus && ev.Authenticated:
			_ = conn.Close(websocket.StatusNormalClosure, "approved")
			return &ev, nil
		case ev.Type == EventExpired:
			_ = conn.Close(websocket.StatusNormalClosure, "expired")
			return &ev, ErrExpired
		case ev.Type == EventClosed:
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return &ev, ErrNotFound
		}
	}
}

func (c *Client) watchURL(token string) (string, error) {
	u, err := url.Parse(c.BaseURL + "/v1/qr/watch")
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", errors.New("base url must be http(s) or ws(s)")
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
