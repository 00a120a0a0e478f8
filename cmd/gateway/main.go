package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/peerprep/matching-service/internal/matching"
	"github.com/peerprep/matching-service/internal/messaging"
	"github.com/peerprep/matching-service/internal/protocol"
	"github.com/peerprep/matching-service/internal/session"
	"github.com/peerprep/matching-service/internal/ws"
)

func main() {
	config := ws.DefaultServerConfig()

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		config.ListenAddr = addr
	}
	if v := os.Getenv("READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.ReadTimeout = d
		}
	}
	if v := os.Getenv("WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.WriteTimeout = d
		}
	}

	// --- NATS ---
	natsConfig := messaging.DefaultNATSConfig()
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		natsConfig.URL = natsURL
	}
	natsConfig.Name = "gateway"
	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	// --- Redis session store (presence) ---
	redisAddr := "localhost:6379"
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		redisAddr = v
	}
	serverName, _ := os.Hostname()
	if v := os.Getenv("SERVER_NAME"); v != "" {
		serverName = v
	}
	if serverName == "" {
		serverName = "gateway-1"
	}

	sessionStore, err := session.NewStore(redisAddr, serverName)
	if err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}

	log.Printf("Gateway starting")
	log.Printf("  listen_addr: %s", config.ListenAddr)
	log.Printf("  nats_url:    %s", natsConfig.URL)
	log.Printf("  redis_addr:  %s", redisAddr)
	log.Printf("  server_name: %s", serverName)

	var server *ws.Server

	// userNames maps logged-in user IDs to display names for match requests.
	var userNames sync.Map

	sendError := func(conn *ws.Connection, code, message string) {
		data, err := protocol.NewServerMessage(protocol.TypeError, protocol.ErrorMsg{
			Code:    code,
			Message: message,
		})
		if err != nil {
			return
		}
		if err := server.Send(conn, data); err != nil {
			log.Printf("[gateway] send error to conn=%s failed: %v", conn.ID, err)
		}
	}

	// relay forwards a matcher outcome event to the user's socket under the
	// given protocol type. The event payload is passed through untouched.
	relay := func(userID, msgType string) func(data []byte) {
		return func(data []byte) {
			out, err := protocol.NewServerMessage(msgType, json.RawMessage(data))
			if err != nil {
				log.Printf("[gateway] build %s for %s: %v", msgType, userID, err)
				return
			}
			if err := server.SendToUser(userID, out); err != nil {
				log.Printf("[gateway] relay %s to %s: %v", msgType, userID, err)
			}
		}
	}

	handleLogin := func(conn *ws.Connection, msg protocol.LoginMsg) {
		if msg.UserID == "" {
			sendError(conn, "bad_login", "login requires a userId")
			return
		}

		if prev := server.Connections().Bind(conn.ID, msg.UserID); prev != nil {
			log.Printf("[gateway] user %s reconnected, closing previous conn=%s", msg.UserID, prev.ID)
			server.RemoveConnection(prev)
		}
		userNames.Store(msg.UserID, msg.UserName)

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := sessionStore.Create(ctx, msg.UserID); err != nil {
			log.Printf("[gateway] create session for %s: %v", msg.UserID, err)
		}

		// Per-user outcome subscriptions, relayed straight to the socket.
		if err := natsClient.SubscribeMatchFound(msg.UserID, relay(msg.UserID, protocol.TypeMatchFound)); err != nil {
			log.Printf("[gateway] subscribe matchFound for %s: %v", msg.UserID, err)
		}
		if err := natsClient.SubscribeNoMatch(msg.UserID, relay(msg.UserID, protocol.TypeNoMatchFound)); err != nil {
			log.Printf("[gateway] subscribe noMatchFound for %s: %v", msg.UserID, err)
		}
		if err := natsClient.SubscribeCancelled(msg.UserID, relay(msg.UserID, protocol.TypeCancelled)); err != nil {
			log.Printf("[gateway] subscribe cancelled for %s: %v", msg.UserID, err)
		}
		if err := natsClient.SubscribeMatchError(msg.UserID, relay(msg.UserID, protocol.TypeError)); err != nil {
			log.Printf("[gateway] subscribe error for %s: %v", msg.UserID, err)
		}

		resp, _ := protocol.NewServerMessage(protocol.TypeLoggedIn, protocol.LoggedInMsg{UserID: msg.UserID})
		if err := server.Send(conn, resp); err != nil {
			log.Printf("[gateway] send loggedIn to %s: %v", msg.UserID, err)
		}
		log.Printf("[gateway] user %s logged in on conn=%s", msg.UserID, conn.ID)
	}

	handleRequestMatch := func(conn *ws.Connection, msg protocol.RequestMatchMsg) {
		userID := conn.UserID()
		if userID == "" {
			sendError(conn, "not_logged_in", "User not found or not logged in.")
			return
		}

		userName := ""
		if v, ok := userNames.Load(userID); ok {
			userName = v.(string)
		}

		req := matching.MatchRequest{
			UserID:     userID,
			UserName:   userName,
			Difficulty: msg.Difficulty,
			Language:   msg.Language,
			Categories: msg.Categories,
		}
		if err := req.Validate(); err != nil {
			sendError(conn, "bad_request", err.Error())
			return
		}

		data, err := json.Marshal(req)
		if err != nil {
			sendError(conn, "internal", "failed to encode match request")
			return
		}
		if err := natsClient.PublishMatchRequest(data); err != nil {
			log.Printf("[gateway] publish match request for %s: %v", userID, err)
			sendError(conn, "internal", "failed to submit match request")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := sessionStore.UpdateStatus(ctx, userID, session.StatusMatching); err != nil {
			log.Printf("[gateway] mark %s matching: %v", userID, err)
		}

		log.Printf("[gateway] user %s requested a match (difficulty=%s categories=%v)",
			userID, msg.Difficulty, msg.Categories)
	}

	handleCancel := func(conn *ws.Connection) {
		userID := conn.UserID()
		if userID == "" {
			sendError(conn, "not_logged_in", "User not found or not logged in.")
			return
		}

		data, _ := json.Marshal(matching.CancelRequest{UserID: userID})
		if err := natsClient.PublishMatchCancel(data); err != nil {
			log.Printf("[gateway] publish cancel for %s: %v", userID, err)
			sendError(conn, "internal", "failed to submit cancellation")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := sessionStore.UpdateStatus(ctx, userID, session.StatusIdle); err != nil {
			log.Printf("[gateway] mark %s idle: %v", userID, err)
		}

		log.Printf("[gateway] user %s cancelled their match request", userID)
	}

	onMessage := func(conn *ws.Connection, data []byte) {
		msgType, msg, err := protocol.ParseClientMessage(data)
		if err != nil {
			log.Printf("[gateway] parse error conn=%s: %v", conn.ID, err)
			sendError(conn, "parse_error", "invalid message format")
			return
		}

		switch msgType {
		case protocol.TypePing:
			resp, _ := protocol.NewServerMessage(protocol.TypePong, protocol.PongMsg{})
			_ = server.Send(conn, resp)
		case protocol.TypeLogin:
			handleLogin(conn, msg.(protocol.LoginMsg))
		case protocol.TypeRequestMatch:
			handleRequestMatch(conn, msg.(protocol.RequestMatchMsg))
		case protocol.TypeCancel:
			handleCancel(conn)
		default:
			sendError(conn, "unsupported_type", "unsupported message type")
		}
	}

	server = ws.NewServer(config, onMessage)

	server.SetOnDisconnect(func(conn *ws.Connection) {
		userID := conn.UserID()
		if userID == "" {
			return
		}
		natsClient.UnsubscribeUser(userID)
		userNames.Delete(userID)

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := sessionStore.Delete(ctx, userID); err != nil {
			log.Printf("[gateway] delete session for %s: %v", userID, err)
		}
		log.Printf("[gateway] user %s disconnected", userID)
	})

	// Run the server; shut down on SIGINT/SIGTERM.
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("received signal %v, shutting down...", sig)
	case err := <-errCh:
		if err != nil {
			log.Printf("server error: %v", err)
		}
	}

	server.Shutdown()
	natsClient.Close()
	sessionStore.Close()
}
