package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"solbot/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// websocket streams trade, alert and copy-trade events to the client as they
// happen.
func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	merged := make(chan envelope, 256)
	for _, topic := range []events.Event{
		events.EventTradeExecuted,
		events.EventTradeFailed,
		events.EventAlertFired,
		events.EventCopyTrade,
	} {
		stream, unsub := s.Bus.Subscribe(topic, 64)
		defer unsub()
		go func(topic events.Event, stream <-chan any) {
			for msg := range stream {
				select {
				case merged <- envelope{Topic: string(topic), Payload: msg}:
				default:
					// Slow client, drop rather than block the fan-in.
				}
			}
		}(topic, stream)
	}

	for msg := range merged {
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("ws write error: %v", err)
			return
		}
	}
}

type envelope struct {
	Topic   string `json:"topic"`
	Payload any    `json:"payload"`
}
