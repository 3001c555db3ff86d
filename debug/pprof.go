package debug

import (
	"context"
	"net"
	"net/http"
	_ "net/http/pprof"
	"time"

	"github.com/go-errors/errors"
	"github.com/marcodamonte/concurrency/signal-deadlock/logging"
	"github.com/sirupsen/logrus"
)

// Server exposes net/http/pprof, so that a hung process can be inspected at
// /debug/pprof/goroutine?debug=2 before it is killed.
type Server struct {
	srv *http.Server
	ln  net.Listener
	log *logrus.Entry
}

// Serve starts the pprof server on addr. Use port 0 to pick a free port.
func Serve(addr string, log *logrus.Entry) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.WrapPrefix(err, "debug listener", 0)
	}

	s := &Server{
		srv: &http.Server{Handler: http.DefaultServeMux, ReadHeaderTimeout: 5 * time.Second},
		ln:  ln,
		log: logging.OrDiscard(log),
	}

	go func() {
		s.log.Infof("pprof at http://%s/debug/pprof/", s.Addr())
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Warn("pprof server stopped")
		}
	}()

	return s, nil
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Close stops the server.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
