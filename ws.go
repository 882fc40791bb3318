package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/mintbay/nft-trade/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleEventStream pushes every marketplace event to the connected
// indexer as JSON, in publish order. Slow consumers are dropped rather
// than allowed to stall the bus; they re-sync from the event log file.
func handleEventStream() gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logrus.Errorf("unable to upgrade websocket connection: %v", err)
			return
		}
		defer conn.Close()

		logrus.Infof("event stream subscriber connected: %s", conn.RemoteAddr())

		send := make(chan events.Event, 64)
		handler := func(ev events.Event) {
			select {
			case send <- ev:
			default:
			}
		}
		if err := bus.Subscribe(events.Topic, handler); err != nil {
			logrus.Errorf("unable to subscribe to the event bus: %v", err)
			return
		}
		defer bus.Unsubscribe(events.Topic, handler)

		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-closed:
				logrus.Infof("event stream subscriber disconnected: %s", conn.RemoteAddr())
				return
			case ev := <-send:
				if err := conn.WriteJSON(ev); err != nil {
					logrus.Warnf("unable to push event to subscriber: %v", err)
					return
				}
			}
		}
	}
}
