package main

import (
	"encoding/json"
	"errors"
	"expvar"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var (
	// MessageSendInterval determines how often we'll send batches of updates
	MessageSendInterval = 1000 * time.Millisecond

	activeConnections = expvar.NewInt("active_connections")
)

// ErrInvalidMessage is returned if the json message can't be parsed
var ErrInvalidMessage = errors.New("Invalid message format")

// WSRouter holds what a WS handler needs to work
type WSRouter struct {
	idx *PointIndex
	whw *WebhookWriter
}

// NewWSRouter returns a new WSRouter
func NewWSRouter(idx *PointIndex, whw *WebhookWriter) *WSRouter {
	return &WSRouter{idx: idx, whw: whw}
}

func (wsh *WSRouter) handle(upgrader websocket.Upgrader) func(http.ResponseWriter, *http.Request) {

	// handle a new websocket Connection
	// if the token is sent and is valid, we'll proceed
	// this function runs in its own goroutine. If it ever ends, the connection is dropped
	return func(res http.ResponseWriter, req *http.Request) {
		activeConnections.Add(1)
		defer activeConnections.Add(-1)

		conn, err := upgrader.Upgrade(res, req, nil)
		if err != nil {
			log.Warn("upgrade error: ", err)
			return
		}
		defer conn.Close()

		t := req.Header.Get("X-GEEO-TOKEN")
		if t == "" {
			t = req.URL.Query().Get("token")
		}

		token, err := parseJWTToken(t)
		if err != nil {
			conn.WriteJSON(JSONError{"Can't parse token, or token invalid", err.Error()})
			log.Warn("Can't parse token, or token invalid: ", err.Error())
			return
		}

		capabilities := token.Capabilities
		identity := "client"

		wsConn := newWSConn(conn)
		var view *View
		if capabilities.Consume {
			view = wsh.idx.addView(token.ViewID, wsConn)
			identity = "view:" + token.ViewID
		}
		log.Debug("login: ", identity)
		wsConn.Name = identity

		defer func() {
			if err := recover(); err != nil {
				log.Error(err)
			}
			log.Debug("logout: ", identity)
			if view != nil {
				wsh.idx.removeView(view)
			}
			wsConn.close()
		}()

		// we'll use a single JSONCommand for this socket to limit allocations
		// command.clear() must be called before parsing a new command
		command := JSONCommand{}

		for {
			_, jsonString, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return
				}
				if errors.Is(err, websocket.ErrReadLimit) {
					// the connection is already closed with CloseMessageTooBig
					log.Warnf("%s: message larger than %d bytes", identity, maxMessageSize)
					return
				}
				log.Warn(identity, ": ", err.Error())
				return
			}

			command.clear()
			if err := json.Unmarshal(jsonString, &command); err != nil {
				wsConn.writeImmediateJSON(JSONError{ErrInvalidMessage.Error() + " (" + string(jsonString) + ")", err.Error()})
				log.Warn(identity, ": invalid JSON command")
				continue
			}

			if err := command.check(); err != nil {
				wsConn.writeImmediateJSON(JSONError{"Invalid Command (" + string(jsonString) + ")", err.Error()})
				log.Warn(identity, ": invalid command")
				continue
			}

			log.Debug(identity, ": ", string(jsonString))

			if points := command.points(); points != nil {
				if capabilities.Insert {
					wsh.handleInsert(wsConn, identity, points)
				} else {
					wsConn.writeImmediateJSON(JSONError{Error: ErrCantInsert.Error()})
				}
			}

			if command.Query != nil {
				if capabilities.Query {
					wsh.handleQuery(wsConn, command.Query)
				} else {
					wsConn.writeImmediateJSON(JSONError{Error: ErrCantQuery.Error()})
				}
			}

			if command.ViewPosition != nil {
				if !capabilities.Consume {
					wsConn.writeImmediateJSON(JSONError{Error: ErrCantConsume.Error()})
					continue
				}
				viewSize := command.ViewPosition.Size()
				if viewSize[0] > capabilities.MaxView[0] || viewSize[1] > capabilities.MaxView[1] {
					wsConn.writeImmediateJSON(JSONError{Error: "View size error: it can't be larger than what your JWT Token allows"})
					log.Warn(identity, ": View size error")
				} else {
					// copy, command is reused for the next message
					pos := *command.ViewPosition
					wsh.handleViewMove(view, &pos)
				}
			}
		}
	}
}
