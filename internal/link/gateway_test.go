package link

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// gatewayServer emulates a BLE gateway: it waits for the subscribe message,
// sends frames and reports what the client sent back.
func gatewayServer(t *testing.T, frames [][]byte, disconnect bool) (*httptest.Server, <-chan Message) {
	t.Helper()

	received := make(chan Message, 10)
	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		var subscribe Message
		if err = conn.ReadJSON(&subscribe); err != nil {
			t.Errorf("Failed to read subscribe: %v", err)
			return
		}
		received <- subscribe

		_ = conn.WriteJSON(Message{Type: MessageStatus, Status: "connected"})
		for _, frame := range frames {
			if err = conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return
			}
		}

		if disconnect {
			_ = conn.WriteJSON(Message{Type: MessageStatus, Status: StatusDisconnected, Error: "link lost"})
		}

		for {
			var msg Message
			if err = conn.ReadJSON(&msg); err != nil {
				close(received)
				return
			}
			received <- msg
		}
	}))
	t.Cleanup(server.Close)

	return server, received
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestGateway_Disconnect(t *testing.T) {
	frames := [][]byte{{0x01}, {0x02, 0x03}}
	server, received := gatewayServer(t, frames, true)

	recorder := &frameRecorder{}
	g := NewGateway(wsURL(server), "AA:BB:CC:DD:EE:FF", "")

	err := g.Receive(context.Background(), recorder.handle)
	if !errors.Is(err, ErrTransportDisconnected) {
		t.Fatalf("Expected ErrTransportDisconnected, got %v", err)
	}
	if !strings.Contains(err.Error(), "link lost") {
		t.Errorf("Expected gateway error in %q", err.Error())
	}

	subscribe := <-received
	if subscribe.Type != MessageSubscribe {
		t.Errorf("Expected %s, got %s", MessageSubscribe, subscribe.Type)
	}
	if subscribe.Address != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("Expected device address, got %q", subscribe.Address)
	}
	if subscribe.Characteristic != DefaultCharacteristic {
		t.Errorf("Expected characteristic %s, got %s", DefaultCharacteristic, subscribe.Characteristic)
	}

	got := recorder.snapshot()
	if len(got) != len(frames) {
		t.Fatalf("Expected %d frames, got %d", len(frames), len(got))
	}
	for i := range frames {
		if !bytes.Equal(got[i], frames[i]) {
			t.Errorf("Frame %d: expected %x, got %x", i, frames[i], got[i])
		}
	}
}

func TestGateway_Stop(t *testing.T) {
	server, received := gatewayServer(t, [][]byte{{0x01}}, false)

	ctx, cancel := context.WithCancel(context.Background())
	firstFrame := make(chan struct{})

	g := NewGateway(wsURL(server), "AA:BB:CC:DD:EE:FF", "custom")

	done := make(chan error, 1)
	go func() {
		done <- g.Receive(ctx, func([]byte) {
			select {
			case <-firstFrame:
			default:
				close(firstFrame)
			}
		})
	}()

	select {
	case <-firstFrame:
	case <-time.After(5 * time.Second):
		t.Fatal("No frame received")
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Expected nil error on stop, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Gateway did not stop")
	}

	var messages []Message
	for msg := range received {
		messages = append(messages, msg)
	}

	if len(messages) != 2 {
		t.Fatalf("Expected subscribe and unsubscribe, got %d messages", len(messages))
	}
	if messages[0].Characteristic != "custom" {
		t.Errorf("Expected characteristic custom, got %s", messages[0].Characteristic)
	}
	if messages[1].Type != MessageUnsubscribe {
		t.Errorf("Expected %s, got %s", MessageUnsubscribe, messages[1].Type)
	}
}

func TestGateway_DialFailure(t *testing.T) {
	g := NewGateway("ws://127.0.0.1:1", "", "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := g.Receive(ctx, func([]byte) {}); err == nil {
		t.Fatal("Expected dial error")
	}
	if g.IsReceiving() {
		t.Error("Expected gateway to be stopped after dial failure")
	}
}
