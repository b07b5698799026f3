package integration

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"chatrelay/internal/app"
	"chatrelay/internal/config"
	"chatrelay/pkg/types"
)

const readTimeout = 2 * time.Second

// startRelay serves a full application on an ephemeral port and returns its base URL
func startRelay(t *testing.T, mutate func(*config.Config)) string {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.HTTP.ShutdownTimeout = 2 * time.Second
	if mutate != nil {
		mutate(cfg)
	}

	application, err := app.NewApplication(cfg)
	if err != nil {
		t.Fatalf("NewApplication: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- application.Serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("Serve returned %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("relay did not shut down")
		}
	})
	return "http://" + ln.Addr().String()
}

type client struct {
	t    *testing.T
	conn *websocket.Conn
}

func dial(t *testing.T, baseURL string) *client {
	t.Helper()
	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &client{t: t, conn: conn}
}

// join identifies the client and returns its snapshot
func join(t *testing.T, baseURL, name string) (*client, types.ConnectedPayload) {
	t.Helper()
	c := dial(t, baseURL)
	c.send(types.CommandJoin, name)
	var snapshot types.ConnectedPayload
	c.expect(types.EventConnected, &snapshot)
	return c, snapshot
}

func (c *client) send(commandType string, payload interface{}) {
	c.t.Helper()
	env, err := types.NewEnvelope(commandType, payload)
	if err != nil {
		c.t.Fatalf("NewEnvelope: %v", err)
	}
	if err := c.conn.WriteJSON(env); err != nil {
		c.t.Fatalf("write %s: %v", commandType, err)
	}
}

func (c *client) next() (types.Envelope, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		return types.Envelope{}, err
	}
	var env types.Envelope
	err := c.conn.ReadJSON(&env)
	return env, err
}

// expect skips events until one of eventType arrives and decodes its payload into v
func (c *client) expect(eventType string, v interface{}) {
	c.t.Helper()
	for {
		env, err := c.next()
		if err != nil {
			c.t.Fatalf("waiting for %s: %v", eventType, err)
		}
		if env.Type != eventType {
			continue
		}
		if v != nil {
			if err := json.Unmarshal(env.Payload, v); err != nil {
				c.t.Fatalf("decode %s: %v", eventType, err)
			}
		}
		return
	}
}

// getJSON polls url until check accepts the decoded body
func getJSON(t *testing.T, url string, v interface{}, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(readTimeout)
	for {
		resp, err := http.Get(url)
		if err != nil {
			t.Fatalf("GET %s: %v", url, err)
		}
		err = json.NewDecoder(resp.Body).Decode(v)
		_ = resp.Body.Close()
		if err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
		if check() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("GET %s never reached the expected state: %+v", url, v)
		}
		time.Sleep(20 * time.Millisecond)
	}
}
