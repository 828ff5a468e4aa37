package callback

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

// DefaultPort is the default port for the local callback server.
const DefaultPort = 8080

// DefaultWaitTimeout is how long to wait for the authorization redirect.
const DefaultWaitTimeout = 10 * time.Minute

const successPage = `<!DOCTYPE html>
<html><head><title>Authorization complete</title></head>
<body><h1>Authorization complete</h1>
<p>You can close this window and return to the terminal.</p></body></html>`

const errorPage = `<!DOCTYPE html>
<html><head><title>Authorization failed</title></head>
<body><h1>Authorization failed</h1>
<p>%s</p></body></html>`

// Result carries the query parameters of the authorization redirect.
type Result struct {
	// Code is the authorization code, empty on error.
	Code string

	// State is the correlation token from the original request.
	State string

	// Error is the error code if the authorization server denied the request.
	Error string

	// ErrorDescription is the optional human-readable description.
	ErrorDescription string
}

// IsError reports whether the redirect carried a denial.
func (r *Result) IsError() bool {
	return r.Error != ""
}

// Server is a temporary loopback HTTP server that captures a single
// authorization redirect, then shuts down.
type Server struct {
	port     int
	server   *http.Server
	listener net.Listener
	resultCh chan *Result
	errorCh  chan error
	once     sync.Once
	baseURL  string
}

// NewServer creates a callback server on the given port. Port 0 picks a
// random free port.
func NewServer(port int) *Server {
	return &Server{
		port:     port,
		resultCh: make(chan *Result, 1),
		errorCh:  make(chan error, 1),
	}
}

// Start begins listening and returns the redirect URI to put into the
// authorization request. The server stops when the context is cancelled.
func (s *Server) Start(ctx context.Context) (string, error) {
	addr := fmt.Sprintf("127.0.0.1:%d", s.port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to start callback server on %s: %w", addr, err)
	}

	s.listener = listener
	s.port = listener.Addr().(*net.TCPAddr).Port
	s.baseURL = fmt.Sprintf("http://localhost:%d", s.port)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", s.handleCallback)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			select {
			case s.errorCh <- err:
			default:
			}
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return s.RedirectURI(), nil
}

// Wait blocks until the redirect arrives, the server fails, or the context
// is done.
func (s *Server) Wait(ctx context.Context) (*Result, error) {
	select {
	case result := <-s.resultCh:
		return result, nil
	case err := <-s.errorCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RedirectURI returns the redirect URI served by this callback server.
func (s *Server) RedirectURI() string {
	return s.baseURL + "/callback"
}

// Port returns the bound port.
func (s *Server) Port() int {
	return s.port
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	var handled bool
	s.once.Do(func() {
		handled = true
		s.processCallback(w, r)
	})

	if !handled {
		http.Error(w, "Callback already processed", http.StatusBadRequest)
	}
}

// processCallback runs exactly once via sync.Once.
func (s *Server) processCallback(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	query := r.URL.Query()
	result := &Result{
		Code:             query.Get("code"),
		State:            query.Get("state"),
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
	}

	if result.IsError() {
		desc := result.ErrorDescription
		if desc == "" {
			desc = result.Error
		}
		fmt.Fprintf(w, errorPage, desc)
	} else {
		fmt.Fprint(w, successPage)
	}

	select {
	case s.resultCh <- result:
	default:
	}

	// Let the response reach the browser before tearing down.
	go func() {
		time.Sleep(1 * time.Second)
		s.Stop()
	}()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
}
