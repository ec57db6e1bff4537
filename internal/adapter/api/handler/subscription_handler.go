package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"letschat/internal/domain/entity"
	"letschat/internal/infrastructure/firebase"
	ws "letschat/internal/infrastructure/websocket"
	"letschat/internal/usecase"
	"letschat/pkg/errors"
	"letschat/pkg/response"
)

// Topics a client may subscribe to over the socket.
const (
	TopicParamConversationCreated = "conversation_created"
	TopicParamConversationUpdated = "conversation_updated"
	TopicParamConversationDeleted = "conversation_deleted"
	TopicParamMessageSent         = "message_sent"
)

// Frame types exchanged with the client.
const (
	FrameTypeSubscribe   = "subscribe"
	FrameTypeUnsubscribe = "unsubscribe"
	FrameTypePing        = "ping"
	FrameTypePong        = "pong"
	FrameTypeEvent       = "event"
	FrameTypeError       = "error"
)

type wsFrame struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

type wsEventFrame struct {
	Type      string      `json:"type"`
	Topic     string      `json:"topic,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp string      `json:"timestamp,omitempty"`
}

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Restrict this in production
	},
}

// SubscriptionHandler upgrades authenticated connections and bridges live
// event streams onto them. The handshake fails outright for unauthenticated
// callers; they never get a silent empty stream.
type SubscriptionHandler struct {
	manager       *ws.Manager
	subscriptions *usecase.SubscriptionUseCase
	firebaseAuth  *firebase.FirebaseAuthClient
}

func NewSubscriptionHandler(
	manager *ws.Manager,
	subscriptions *usecase.SubscriptionUseCase,
	firebaseAuth *firebase.FirebaseAuthClient,
) *SubscriptionHandler {
	return &SubscriptionHandler{
		manager:       manager,
		subscriptions: subscriptions,
		firebaseAuth:  firebaseAuth,
	}
}

func (h *SubscriptionHandler) HandleWebSocket(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return response.Error(c, errors.Unauthorized("Authentication required", nil))
	}

	userID, err := h.firebaseAuth.VerifyToken(c.Request().Context(), token)
	if err != nil {
		return response.Error(c, errors.Unauthorized("Invalid or expired token", err))
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return response.Error(c, errors.Internal("Failed to upgrade connection", err))
	}

	client := ws.NewClient(userID, conn)
	select {
	case h.manager.Register <- client:
	case <-h.manager.Done():
		conn.Close()
		return nil
	}
	go client.WritePump()

	h.readLoop(c.Request().Context(), client)
	return nil
}

// readLoop owns the connection: it processes subscribe/unsubscribe frames and
// tears every active stream down when the socket goes away.
func (h *SubscriptionHandler) readLoop(parent context.Context, client *ws.Client) {
	ctx, cancel := context.WithCancel(parent)

	var mu sync.Mutex
	cancels := make(map[string]func())

	defer func() {
		cancel()
		mu.Lock()
		for _, cancelStream := range cancels {
			cancelStream()
		}
		mu.Unlock()
		select {
		case h.manager.Unregister <- client:
		case <-h.manager.Done():
		}
	}()

	for {
		_, raw, err := client.Conn.ReadMessage()
		if err != nil {
			if gorillaws.IsUnexpectedCloseError(err, gorillaws.CloseGoingAway, gorillaws.CloseNormalClosure) {
				log.Printf("WebSocket read error for %s: %v", client.UserID, err)
			}
			return
		}

		var frame wsFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			h.sendError(client, "Invalid frame format")
			continue
		}

		switch frame.Type {
		case FrameTypePing:
			h.send(client, &wsEventFrame{Type: FrameTypePong})

		case FrameTypeSubscribe:
			mu.Lock()
			_, active := cancels[frame.Topic]
			mu.Unlock()
			if active {
				h.sendError(client, "Already subscribed to "+frame.Topic)
				continue
			}

			cancelStream, err := h.subscribe(ctx, client, frame.Topic)
			if err != nil {
				h.sendError(client, "Unknown topic "+frame.Topic)
				continue
			}
			mu.Lock()
			cancels[frame.Topic] = cancelStream
			mu.Unlock()

		case FrameTypeUnsubscribe:
			mu.Lock()
			if cancelStream, ok := cancels[frame.Topic]; ok {
				cancelStream()
				delete(cancels, frame.Topic)
			}
			mu.Unlock()

		default:
			h.sendError(client, "Unknown frame type "+frame.Type)
		}
	}
}

func (h *SubscriptionHandler) subscribe(ctx context.Context, client *ws.Client, topic string) (func(), error) {
	switch topic {
	case TopicParamConversationCreated, TopicParamConversationUpdated, TopicParamConversationDeleted:
		var stream <-chan *entity.ConversationPopulated
		var cancelStream func()
		var err error
		switch topic {
		case TopicParamConversationCreated:
			stream, cancelStream, err = h.subscriptions.ConversationCreated(ctx, client.UserID)
		case TopicParamConversationUpdated:
			stream, cancelStream, err = h.subscriptions.ConversationUpdated(ctx, client.UserID)
		case TopicParamConversationDeleted:
			stream, cancelStream, err = h.subscriptions.ConversationDeleted(ctx, client.UserID)
		}
		if err != nil {
			return nil, err
		}
		go h.forward(client, topic, conversationStream(stream))
		return cancelStream, nil

	case TopicParamMessageSent:
		stream, cancelStream, err := h.subscriptions.MessageSent(ctx, client.UserID)
		if err != nil {
			return nil, err
		}
		go h.forward(client, topic, messageStream(stream))
		return cancelStream, nil

	default:
		return nil, errors.BadRequest("Unknown topic", nil)
	}
}

func conversationStream(in <-chan *entity.ConversationPopulated) <-chan interface{} {
	out := make(chan interface{})
	go func() {
		defer close(out)
		for conversation := range in {
			out <- conversation
		}
	}()
	return out
}

func messageStream(in <-chan *entity.MessagePopulated) <-chan interface{} {
	out := make(chan interface{})
	go func() {
		defer close(out)
		for message := range in {
			out <- message
		}
	}()
	return out
}

func (h *SubscriptionHandler) forward(client *ws.Client, topic string, stream <-chan interface{}) {
	for payload := range stream {
		h.send(client, &wsEventFrame{
			Type:  FrameTypeEvent,
			Topic: topic,
			Data:  payload,
		})
	}
}

func (h *SubscriptionHandler) send(client *ws.Client, frame *wsEventFrame) {
	frame.Timestamp = time.Now().UTC().Format(time.RFC3339)
	raw, err := json.Marshal(frame)
	if err != nil {
		log.Printf("WebSocket: Failed to marshal frame for %s: %v", client.UserID, err)
		return
	}
	client.Queue(raw)
}

func (h *SubscriptionHandler) sendError(client *ws.Client, message string) {
	h.send(client, &wsEventFrame{
		Type: FrameTypeError,
		Data: map[string]string{"message": message},
	})
}
