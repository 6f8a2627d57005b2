package main

import (
	"net/http"
	"strconv"
	"time"
)

const devTokenTTL = 24 * time.Hour

// DevHelperGetToken sends a valid JWT token in dev mode
// /api/dev/token
func DevHelperGetToken(w http.ResponseWriter, req *http.Request) {

	viewID := req.URL.Query().Get("viewId")

	caps := JWTTokenCaps{
		Insert:  true,
		Query:   true,
		Consume: true,
		MaxView: [2]float64{360, 180},
		HTTP:    true,
	}

	tokenString, err := newJWTToken(viewID, caps, devTokenTTL)
	if err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	w.Header().Set("Content-type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(tokenString)))

	w.Write([]byte(tokenString))
	log.Debugf("New JWT development token (view: %s): %s", viewID, tokenString)
}
