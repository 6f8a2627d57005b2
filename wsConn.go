package main

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single write to a slow client
	writeWait = 10 * time.Second
	// maxMessageSize is the largest command accepted, an insertBatch of a few thousand points
	maxMessageSize = 512 * 1024
)

// wsConn serializes writes on a websocket. Change messages for a view are
// queued and sent as one JSON array MessageSendInterval after the first of
// them; answers to commands skip the queue.
type wsConn struct {
	sync.Mutex
	conn    *websocket.Conn
	pending []JSONChangeMessage
	timer   *time.Timer // armed while pending isn't empty

	Name    string
	closing bool
}

func newWSConn(conn *websocket.Conn) *wsConn {
	conn.SetReadLimit(maxMessageSize)
	return &wsConn{conn: conn, Name: "error: uninitialized"}
}

// writeJSON queues msg for the next batch
func (ws *wsConn) writeJSON(msg JSONChangeMessage) {
	ws.Lock()
	defer ws.Unlock()
	if ws.closing {
		return
	}
	if len(ws.pending) == 0 {
		ws.timer = time.AfterFunc(MessageSendInterval, ws.Flush)
	}
	ws.pending = append(ws.pending, msg)
}

// writeImmediateJSON sends msg now
func (ws *wsConn) writeImmediateJSON(msg interface{}) {
	ws.Lock()
	defer ws.Unlock()
	ws.send(msg)
}

// send expects the lock to be held
func (ws *wsConn) send(msg interface{}) {
	if ws.closing {
		return
	}
	ws.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.conn.WriteJSON(msg); err != nil {
		log.Errorf("%s: write error %s", ws.Name, err.Error())
	}
}

// close drops the queued messages, nothing is sent afterwards
func (ws *wsConn) close() {
	ws.Lock()
	defer ws.Unlock()
	log.Debug("WS closing ", ws.Name)
	if ws.timer != nil {
		ws.timer.Stop()
	}
	ws.closing = true
	ws.pending = nil
}

// Flush sends the queued messages as a single array
func (ws *wsConn) Flush() {
	ws.Lock()
	defer ws.Unlock()
	if len(ws.pending) == 0 {
		return
	}
	log.Debugf("WS flush %s, %d messages", ws.Name, len(ws.pending))
	ws.send(ws.pending)
	ws.pending = nil
	ws.timer = nil
}
