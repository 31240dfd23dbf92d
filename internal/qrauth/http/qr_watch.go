package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/omnipdf/qrauth/internal/qrauth/domain"
	"github.com/omnipdf/qrauth/internal/qrauth/service"
	"github.com/omnipdf/qrauth/pkg/qrsdk"
	"github.com/omnipdf/qrauth/pkg/slogx"
)

const (
	DefaultWatchInterval = time.Second

	watchReadLimit    = 512
	watchWriteTimeout = 5 * time.Second
)

// WatchMetrics tracks open watch sockets.
type WatchMetrics interface {
	WatcherOpened()
	WatcherClosed()
}

type QRWatchHandler struct {
	QRService *service.QRService
	Interval  time.Duration
	Metrics   WatchMetrics

	// OriginPatterns lists extra origins allowed to open a socket, in
	// websocket.AcceptOptions form. Same-origin is always allowed.
	OriginPatterns []string
}

// ServeHTTP godoc
//
//	@Summary		Watch QR Session
//	@Description	Websocket alternative to polling verify. The server pushes a status event on connect and on every change, then closes after an authenticated, expired or closed event. Errors before the upgrade use the normal JSON error shape.
//	@Tags			QR
//	@Produce		json
//	@Param			token	query		string				true	"Session token from create"
//	@Success		101		{object}	qrsdk.WatchEvent	"stream of events"
//	@Failure		400		{object}	qrsdk.ErrorResponse	"error, error_description"
//	@Failure		404		{object}	qrsdk.ErrorResponse	"qr_code_not_found"
//	@Failure		410		{object}	qrsdk.ErrorResponse	"QR_CODE_EXPIRED"
//	@Router			/v1/qr/watch [get].
func (h *QRWatchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)
	token := r.URL.Query().Get("token")

	// Reject before upgrading so plain HTTP clients get a JSON error.
	status, err := h.QRService.Verify(ctx, token)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.OriginPatterns,
	})
	if err != nil {
		log.Warn("qr watch upgrade failed", "err", err)
		return
	}
	defer func() { _ = conn.CloseNow() }()
	conn.SetReadLimit(watchReadLimit)

	if h.Metrics != nil {
		h.Metrics.WatcherOpened()
		defer h.Metrics.WatcherClosed()
	}

	// Clients never send anything; CloseRead cancels ctx when they hang up.
	ctx = conn.CloseRead(ctx)

	interval := h.Interval
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := statusEvent(status)
	if err := writeEvent(ctx, conn, last); err != nil {
		log.Debug("qr watch write failed", "close_status", websocket.CloseStatus(err), "err", err)
		return
	}

	for !last.Authenticated {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		status, err := h.QRService.Verify(ctx, token)
		switch {
		case errors.Is(err, service.ErrExpired):
			h.finish(ctx, conn, qrsdk.WatchEvent{
				Type:  qrsdk.EventExpired,
				State: string(domain.StateExpired),
				Error: qrsdk.ErrorCodeExpired,
			}, "expired")
			return
		case errors.Is(err, service.ErrNotFound):
			h.finish(ctx, conn, qrsdk.WatchEvent{Type: qrsdk.EventClosed, Error: qrsdk.ErrorCodeNotFound}, "closed")
			return
		case err != nil:
			if ctx.Err() == nil {
				log.Error("qr watch lookup failed", slog.Any("err", err))
				_ = conn.Close(websocket.StatusInternalError, "server error")
			}
			return
		}

		ev := statusEvent(status)
		if sameEvent(ev, last) {
			continue
		}
		if err := writeEvent(ctx, conn, ev); err != nil {
			log.Debug("qr watch write failed", "close_status", websocket.CloseStatus(err), "err", err)
			return
		}
		last = ev
	}

	_ = conn.Close(websocket.StatusNormalClosure, "authenticated")
}

func (h *QRWatchHandler) finish(ctx context.Context, conn *websocket.Conn, ev qrsdk.WatchEvent, reason string) {
	if err := writeEvent(ctx, conn, ev); err != nil {
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, reason)
}

func statusEvent(s service.Status) qrsdk.WatchEvent {
	return qrsdk.WatchEvent{
		Type:          qrsdk.EventStatus,
		Authenticated: s.Authenticated,
		State:         string(s.State),
		ExpiresAt:     s.ExpiresAt,
	}
}

func sameEvent(a, b qrsdk.WatchEvent) bool {
	return a.Type == b.Type &&
		a.Authenticated == b.Authenticated &&
		a.State == b.State &&
		a.ExpiresAt.Equal(b.ExpiresAt)
}

func writeEvent(parent context.Context, conn *websocket.Conn, ev qrsdk.WatchEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(parent, watchWriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, b)
}
