//go:build !unix

package handoff

import (
	"context"
	"os"
)

// Server is unavailable on this platform; CreateServer always fails so
// callers take the global surface id path.
type Server struct{}

func NewServer() *Server { return &Server{} }

func (s *Server) CreateServer() (string, error) { return "", ErrUnsupported }

func (s *Server) Name() string { return "" }

func (s *Server) SendPort(*os.File, Grant) error { return ErrUnsupported }

func (s *Server) DestroyServer() {}

func Receive(context.Context, string) (*os.File, Grant, error) {
	return nil, Grant{}, ErrUnsupported
}
