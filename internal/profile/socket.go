package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// SocketMetricName is the name socket handshakes are recorded under.
const SocketMetricName = "WS " + SocketPath

// socketReplyTimeout bounds the wait for the auth reply.
const socketReplyTimeout = 10 * time.Second

// SocketDialer opens websocket connections. *websocket.Dialer implements it.
type SocketDialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

func defaultDialer() SocketDialer {
	return websocket.DefaultDialer
}

type socketAuth struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type socketReply struct {
	Type string `json:"type"`
}

// Socket opens the chat websocket, authenticates with the held token and
// waits for the server's verdict. The exchange counts as a success only if
// the server answers auth_ok.
func (u *ChatUser) Socket(ctx context.Context) error {
	start := time.Now()
	bytes, err := u.socketHandshake(ctx)
	u.client.Record(SocketMetricName, time.Since(start), err == nil, bytes)
	return err
}

func (u *ChatUser) socketHandshake(ctx context.Context) (int64, error) {
	target, err := socketURL(u.client.BaseURL())
	if err != nil {
		return 0, err
	}

	conn, _, err := u.dialer.DialContext(ctx, target, nil)
	if err != nil {
		return 0, fmt.Errorf("dial %s: %w", target, err)
	}
	defer conn.Close()

	token, _ := u.Token()
	if err := conn.WriteJSON(socketAuth{Type: "auth", Token: token}); err != nil {
		return 0, fmt.Errorf("send auth: %w", err)
	}

	deadline := time.Now().Add(socketReplyTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return 0, err
	}

	_, payload, err := conn.ReadMessage()
	if err != nil {
		return 0, fmt.Errorf("read auth reply: %w", err)
	}

	var reply socketReply
	if err := json.Unmarshal(payload, &reply); err != nil {
		return int64(len(payload)), fmt.Errorf("decode auth reply: %w", err)
	}
	if reply.Type != "auth_ok" {
		return int64(len(payload)), fmt.Errorf("socket auth: server replied %q", reply.Type)
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))

	return int64(len(payload)), nil
}

// socketURL turns the API base URL into the websocket endpoint URL.
func socketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	u.Path = strings.TrimRight(u.Path, "/") + SocketPath
	u.RawQuery = ""
	return u.String(), nil
}
