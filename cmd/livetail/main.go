package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Priya8975/minutes-live-sync/internal/auth"
	"github.com/gorilla/websocket"
)

var eventCount atomic.Int64

type liveEvent struct {
	Topic     string         `json:"topic"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
	Remote    bool           `json:"remote"`
}

// livetail connects to the server's WebSocket like a browser tab would and
// prints every live event it receives. With EMIT set it announces one change
// on that topic first.
func main() {
	server := "ws://localhost:8080/ws"
	if s := os.Getenv("LIVE_URL"); s != "" {
		server = s
	}

	u, err := url.Parse(server)
	if err != nil {
		log.Fatalf("invalid LIVE_URL: %v", err)
	}
	if token := accessToken(); token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("dial %s: %v", server, err)
	}
	defer conn.Close()

	log.Printf("Tailing live events from %s", server)

	if topic := os.Getenv("EMIT"); topic != "" {
		frame := map[string]any{"topic": topic, "payload": map[string]any{"source": "livetail"}}
		if err := conn.WriteJSON(frame); err != nil {
			log.Fatalf("emit %s: %v", topic, err)
		}
		log.Printf("  emitted %s", topic)
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Printf("connection closed after %d events: %v", eventCount.Load(), err)
			return
		}

		var ev liveEvent
		if err := json.Unmarshal(message, &ev); err != nil {
			log.Printf("unreadable frame: %s", truncate(string(message), 64))
			continue
		}
		logEvent(ev, eventCount.Add(1))
	}
}

// accessToken returns TOKEN, or mints one from JWT_SECRET so a dev can tail
// an authenticated server without a login round trip.
func accessToken() string {
	if token := os.Getenv("TOKEN"); token != "" {
		return token
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return ""
	}

	role := auth.RoleDPO
	if r := os.Getenv("LIVETAIL_ROLE"); r != "" {
		role = r
	}
	token, err := auth.NewJWTManager(secret, time.Hour).GenerateAccessToken("livetail", role, os.Getenv("LIVETAIL_DEPARTMENT"))
	if err != nil {
		log.Fatalf("minting token: %v", err)
	}
	return token
}

func logEvent(ev liveEvent, count int64) {
	source := "local"
	if ev.Remote {
		source = "remote"
	}
	payload, _ := json.Marshal(ev.Payload)
	fmt.Printf("[#%d] %s %s (%s) payload=%s\n",
		count,
		ev.Timestamp.Format(time.RFC3339),
		strings.TrimPrefix(ev.Topic, "minutes-tracker:"),
		source,
		truncate(string(payload), 120),
	)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
