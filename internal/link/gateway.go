package link

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// MessageSubscribe asks the gateway to connect to a device and enable notifications.
	MessageSubscribe = "subscribe"

	// MessageUnsubscribe asks the gateway to stop notifications and disconnect.
	MessageUnsubscribe = "unsubscribe"

	// MessageStatus reports a change of the device connection.
	MessageStatus = "status"

	// StatusDisconnected is reported when the device connection is lost.
	StatusDisconnected = "disconnected"
)

const (
	handshakeTimeout = 10 * time.Second
	closeTimeout     = 2 * time.Second
)

// Message is a control message exchanged with the gateway as JSON text. Frames
// are delivered as binary messages.
type Message struct {
	Type           string `json:"type"`
	Address        string `json:"address,omitempty"`
	Characteristic string `json:"characteristic,omitempty"`
	Status         string `json:"status,omitempty"`
	Error          string `json:"error,omitempty"`
}

// WithGatewayLogger sets the logger for the gateway
func WithGatewayLogger(logger *slog.Logger) func(g *Gateway) {
	return func(g *Gateway) {
		g.logger = logger.With(
			slog.String("gateway", g.url),
			slog.String("address", g.address),
		)
	}
}

// WithHeader sets HTTP headers sent with the websocket handshake.
func WithHeader(header http.Header) func(g *Gateway) {
	return func(g *Gateway) {
		g.header = header
	}
}

// Gateway receives frames from a BLE gateway over a websocket.
type Gateway struct {
	url            string
	address        string
	characteristic string
	header         http.Header

	isReceiving atomic.Bool
	dialer      *websocket.Dialer
	logger      *slog.Logger
}

// NewGateway creates a new Gateway instance with a discard logger.
func NewGateway(url, address, characteristic string, options ...func(g *Gateway)) *Gateway {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	if characteristic == "" {
		characteristic = DefaultCharacteristic
	}

	g := Gateway{
		url:            url,
		address:        address,
		characteristic: characteristic,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		logger: logger,
	}

	for _, option := range options {
		option(&g)
	}

	return &g
}

// Receive subscribes to the device notifications and delivers frames until ctx
// is cancelled or the gateway reports the device disconnected.
func (g *Gateway) Receive(ctx context.Context, handle FrameHandler) error {
	if !g.isReceiving.CompareAndSwap(false, true) {
		return fmt.Errorf("gateway is already running")
	}
	defer g.isReceiving.Store(false)

	conn, _, err := g.dialer.DialContext(ctx, g.url, g.header)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	if err = conn.WriteJSON(g.message(MessageSubscribe)); err != nil {
		return fmt.Errorf("failed to send subscribe: %w", err)
	}

	g.logger.Info("receiving frames...")

	done := make(chan error, 1)
	go func() {
		done <- g.readMessages(conn, handle)
	}()

	select {
	case err = <-done:
		g.logger.Error("frames reception stopped", slog.Any("error", err))
		return fmt.Errorf("%w: %w", ErrTransportDisconnected, err)

	case <-ctx.Done():
	}

	// the reader goroutine never writes, this is the only writer
	if err = conn.WriteJSON(g.message(MessageUnsubscribe)); err != nil {
		g.logger.Warn("failed to send unsubscribe", slog.Any("error", err))
	}

	closeMessage := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err = conn.WriteControl(websocket.CloseMessage, closeMessage, time.Now().Add(closeTimeout)); err != nil {
		g.logger.Warn("failed to send close", slog.Any("error", err))
	}

	// wait for the close handshake to complete
	select {
	case <-done:
	case <-time.After(closeTimeout):
	}

	g.logger.Info("frames reception stopped")

	return nil
}

// IsReceiving returns true if the gateway connection is open
func (g *Gateway) IsReceiving() bool {
	return g.isReceiving.Load()
}

func (g *Gateway) message(kind string) Message {
	return Message{
		Type:           kind,
		Address:        g.address,
		Characteristic: g.characteristic,
	}
}

// readMessages delivers binary messages as frames and handles status messages.
// It returns when the connection fails or the device is disconnected.
func (g *Gateway) readMessages(conn *websocket.Conn, handle FrameHandler) error {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		switch messageType {
		case websocket.BinaryMessage:
			handle(data)

		case websocket.TextMessage:
			var msg Message
			if err = json.Unmarshal(data, &msg); err != nil {
				g.logger.Warn("failed to parse message", slog.Any("error", err))
				continue
			}

			if msg.Type != MessageStatus {
				g.logger.Debug("unexpected message", slog.String("type", msg.Type))
				continue
			}

			g.logger.Info("device status", slog.String("status", msg.Status))

			if msg.Status == StatusDisconnected {
				if msg.Error != "" {
					return errors.New(msg.Error)
				}
				return errors.New("device disconnected")
			}
		}
	}
}
