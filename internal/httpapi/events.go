package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"forge/internal/events"
	"forge/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

var topicNames = map[string]events.Topic{
	"queue":       events.TopicQueue,
	"generations": events.TopicGenerations,
	"models":      events.TopicModels,
	"downloads":   events.TopicDownloads,
}

// events upgrades the connection to a websocket, reads one
// {"subscribe": [...]} frame to select topics, then streams one JSON
// event per websocket text message until the client disconnects.
func (h *handlers) events(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	var sub types.SubscribeFrame
	if err := conn.ReadJSON(&sub); err != nil {
		return
	}

	var topics []events.Topic
	for _, name := range sub.Subscribe {
		if t, ok := topicNames[name]; ok {
			topics = append(topics, t)
		}
	}
	if len(topics) == 0 {
		for _, t := range topicNames {
			topics = append(topics, t)
		}
	}

	subscription := h.deps.Bus.Subscribe(topics...)
	defer subscription.Unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-ping.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case evt, ok := <-subscription.Events:
			if !ok {
				return
			}
			frame := types.Event{
				Topic:     string(evt.Topic),
				Type:      evt.Type,
				Timestamp: evt.At,
				Payload:   evt.Payload,
			}
			data, err := json.Marshal(frame)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}
