package main

import (
	"net/http"
	"time"

	"github.com/luxfi/mdfeed/internal/wsbbo"
)

// newMux wires the single additive HTTP surface this binary exposes
// beyond the wire feed itself: the BBO WebSocket upgrade endpoint.
func newMux(ws *wsbbo.Server) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/bbo", ws.Handler)
	return mux
}

// newHTTPServer applies cmd/luxd's own WebSocket server timeout
// defaults: 15s read/write, 60s idle.
func newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
