package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"geeo.io/QuadServer/quad"
)

// HookMessage is the format of messages sent to hooks
type HookMessage struct {
	// Source is the connection or route that inserted the points
	Source string `json:"source"`
	// Points are the points accepted by the tree
	Points []quad.Point[float64] `json:"points"`
}

// WebhookWriter regularly sends inserted points to a webhook with a POST http request
type WebhookWriter struct {
	sync.Mutex
	baseurl     string
	bearerToken string
	quit        chan struct{}
	headers     map[string]string
	messages    []HookMessage
	client      *http.Client
}

// NewWebhookWriter creates and returns a new WebhookWriter
// it starts a goroutine to send messages every MessageSendInterval ms.
func NewWebhookWriter(url string, headers map[string]string, bearerToken string) *WebhookWriter {
	whw := &WebhookWriter{
		baseurl:     url,
		headers:     headers,
		bearerToken: bearerToken,
		quit:        make(chan struct{}),
		client:      &http.Client{Transport: &http.Transport{DisableKeepAlives: true}, Timeout: 10 * time.Second},
	}

	go func() {
		ticker := time.NewTicker(MessageSendInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if b := whw.takeBatch(); b != nil {
					go whw.post(b)
				}
			case <-whw.quit:
				return
			}
		}
	}()

	return whw
}

func (whw *WebhookWriter) Write(message HookMessage) {
	whw.Lock()
	defer whw.Unlock()

	whw.messages = append(whw.messages, message)
	log.Debug("Adding one message to WHW: ", message.Source)
}

// Close stops the ticker goroutine, pending messages are dropped
func (whw *WebhookWriter) Close() {
	close(whw.quit)
}

// takeBatch empties the queue and returns it as JSON, nil when there's nothing to send
func (whw *WebhookWriter) takeBatch() []byte {
	whw.Lock()
	defer whw.Unlock()
	if len(whw.messages) == 0 {
		return nil
	}

	b, err := json.Marshal(whw.messages)
	whw.messages = nil
	if err != nil {
		log.Error(err)
		return nil
	}
	return b
}

func (whw *WebhookWriter) post(b []byte) error {
	log.Debug("Sending WHW messages")
	req, err := http.NewRequest(http.MethodPost, whw.baseurl, bytes.NewReader(b))
	if err != nil {
		log.Error("Webhook request error: ", err)
		return err
	}

	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Authorization", "Bearer "+whw.bearerToken)
	req.Header.Set("User-Agent", "QuadServer webhook handler")

	for h, v := range whw.headers {
		req.Header.Add(h, v)
	}

	resp, err := whw.client.Do(req)
	if err != nil {
		log.Warn("Webhook POST error: ", err)
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	log.Debugf("Webhook replied with status code %d", resp.StatusCode)
	return nil
}
