package httpserver

import (
	"net/http"
	"time"
)

// New builds the engine's HTTP server. Write timeout is generous because
// batch evaluation calls can take a while; slow-loris protection comes from
// the header timeout.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
}
