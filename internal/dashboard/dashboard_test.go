package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/mschirtzinger/logsync/internal/orchestrator"
)

func startServer(t *testing.T) *Server {
	t.Helper()
	server := NewServer(&Config{
		Port:   0,
		Host:   "127.0.0.1",
		Logger: log.New(io.Discard, "", 0),
	})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { server.Stop() })
	return server
}

func dial(t *testing.T, ctx context.Context, server *Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(&Config{Port: 0, Host: "127.0.0.1", Logger: log.New(io.Discard, "", 0)})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	if server.GetAddr() == "" {
		t.Fatal("Server address is empty")
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestHello(t *testing.T) {
	server := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, server)
	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeHello {
		t.Errorf("Expected %s, got %s", MessageTypeHello, msg.Type)
	}
	if len(msg.Data) != 0 {
		t.Errorf("Expected empty hello before any run, got %s", msg.Data)
	}
	if count := server.ClientCount(); count != 1 {
		t.Errorf("Expected 1 client, got %d", count)
	}
}

func TestHello_UnencodableSummaryIsSkipped(t *testing.T) {
	server := startServer(t)
	server.setHello(json.RawMessage("{not json"))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, server)
	waitForClients(t, server, 1)
	server.Broadcast(Message{Type: MessageTypeRunStarted, Data: json.RawMessage(`{"run_id":"r"}`)})

	// The client stays connected and the next frame is the broadcast.
	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeRunStarted {
		t.Errorf("Expected %s after a skipped hello, got %s", MessageTypeRunStarted, msg.Type)
	}
}

func TestClientDisconnectIsRemoved(t *testing.T) {
	server := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, server)
	readMessage(t, ctx, conn) // hello
	conn.Close(websocket.StatusNormalClosure, "bye")

	waitForClients(t, server, 0)
	server.Broadcast(Message{Type: MessageTypeRunStarted})
}

func waitForClients(t *testing.T, server *Server, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for server.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d clients, got %d", want, server.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandlerBroadcastsRunEvents(t *testing.T) {
	server := startServer(t)
	handler := NewHandler(server, log.New(io.Discard, "", 0))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, server)
	readMessage(t, ctx, conn) // hello

	start := time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)
	alice := orchestrator.UserReport{User: "alice", StartedAt: start, FinishedAt: start.Add(time.Second), Created: 3, Failed: 1}
	bob := orchestrator.UserReport{User: "bob", StartedAt: start, Err: errors.New("not found")}

	handler.RunStarted("run-1", 2)
	handler.UserSynced("run-1", alice)
	handler.RunComplete(orchestrator.Summary{RunID: "run-1", StartedAt: start, FinishedAt: start.Add(2 * time.Second), Users: []orchestrator.UserReport{alice, bob}})

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeRunStarted {
		t.Fatalf("Expected %s, got %s", MessageTypeRunStarted, msg.Type)
	}
	var started RunStartedData
	if err := json.Unmarshal(msg.Data, &started); err != nil || started.Users != 2 {
		t.Errorf("run_started data = %+v (%v)", started, err)
	}

	msg = readMessage(t, ctx, conn)
	var synced UserSyncedData
	if err := json.Unmarshal(msg.Data, &synced); err != nil {
		t.Fatal(err)
	}
	if msg.Type != MessageTypeUserSynced || synced.User != "alice" || synced.Created != 3 || synced.Duration != time.Second {
		t.Errorf("user_synced = %s %+v", msg.Type, synced)
	}

	msg = readMessage(t, ctx, conn)
	var done RunCompleteData
	if err := json.Unmarshal(msg.Data, &done); err != nil {
		t.Fatal(err)
	}
	if msg.Type != MessageTypeRunComplete || done.FailedUsers != 1 || done.FailedOps != 1 || len(done.Users) != 2 {
		t.Errorf("run_complete = %s %+v", msg.Type, done)
	}
	if done.Users[1].Error != "not found" {
		t.Errorf("bob error = %q", done.Users[1].Error)
	}

	// Late clients get the last summary.
	late := dial(t, ctx, server)
	hello := readMessage(t, ctx, late)
	var last RunCompleteData
	if err := json.Unmarshal(hello.Data, &last); err != nil || last.RunID != "run-1" {
		t.Errorf("hello = %s (%v)", hello.Data, err)
	}
}

func TestHealth(t *testing.T) {
	server := startServer(t)

	resp, err := http.Get("http://" + server.GetAddr() + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Status  string `json:"status"`
		Clients int    `json:"clients"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || body.Clients != 0 {
		t.Errorf("health = %+v", body)
	}
}
