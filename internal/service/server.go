package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type Server struct {
	httpServer *http.Server
	certFile   string
	keyFile    string
	logger     *zap.Logger
}

// NewServer creates the HTTP server. TLS is used when both certFile and
// keyFile are set.
func NewServer(addr string, handler http.Handler, certFile, keyFile string, logger *zap.Logger) *Server {
	s := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return &Server{httpServer: s, certFile: certFile, keyFile: keyFile, logger: logger}
}

// Start serves until Stop is called. A clean shutdown returns nil.
func (s *Server) Start() error {
	tls := s.certFile != "" && s.keyFile != ""
	s.logger.Info("Starting telemetry-hub HTTP server",
		zap.String("addr", s.httpServer.Addr),
		zap.Bool("tls", tls),
	)

	var err error
	if tls {
		err = s.httpServer.ListenAndServeTLS(s.certFile, s.keyFile)
	} else {
		err = s.httpServer.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping telemetry-hub HTTP server")
	return s.httpServer.Shutdown(ctx)
}
