package snapcast

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"
)

// fakeServer accepts one connection and replies to Server.GetStatus
// with a canned status, echoing the request id.
func fakeServer(t *testing.T, ready chan<- string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ready <- ln.Addr().String()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		reader := bufio.NewReader(conn)
		for {
			line, err := reader.ReadBytes('\n')
			if err != nil {
				return
			}
			var req rpcRequest
			if err := json.Unmarshal(line, &req); err != nil {
				continue
			}
			if req.Method == "Server.GetStatus" {
				resp := map[string]any{
					"id": req.ID,
					"result": map[string]any{
						"server": map[string]any{
							"groups": []map[string]any{
								{"id": "g1", "stream_id": "/kitchen", "clients": []map[string]any{{"id": "sc-1"}}},
							},
						},
					},
				}
				data, _ := json.Marshal(resp)
				conn.Write(append(data, '\n'))
			}
		}
	}()
}

func TestClientGetServerStatus(t *testing.T) {
	ready := make(chan string, 1)
	fakeServer(t, ready)
	addr := <-ready

	c := New(addr, WithBackoff(BackoffConfig{Base: 10 * time.Millisecond, Factor: 2, JitterFrac: 0, Cap: time.Second}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go c.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for !c.IsConnected() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !c.IsConnected() {
		t.Fatal("client never connected")
	}

	groups, err := c.GetServerStatus(context.Background())
	if err != nil {
		t.Fatalf("GetServerStatus failed: %v", err)
	}
	if len(groups) != 1 || groups[0].ID != "g1" || groups[0].Stream != "/kitchen" {
		t.Errorf("unexpected groups: %+v", groups)
	}
}

func TestCallFailsFastWhenDisconnected(t *testing.T) {
	c := New("127.0.0.1:1") // nothing listening
	err := c.call(context.Background(), "Server.GetStatus", nil, nil)
	if err == nil {
		t.Fatal("expected Unavailable error when disconnected")
	}
	if err.Kind.HTTPStatus() != 503 {
		t.Errorf("expected HTTP 503 for Unavailable, got %d", err.Kind.HTTPStatus())
	}
}

func TestApplyJitterWithinBounds(t *testing.T) {
	base := 10 * time.Second
	for i := 0; i < 50; i++ {
		got := applyJitter(base, 0.25)
		if got < 7*time.Second || got > 13*time.Second {
			t.Errorf("jittered delay %v out of expected ±25%% bounds", got)
		}
	}
}
