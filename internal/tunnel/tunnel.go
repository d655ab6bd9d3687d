// Package tunnel exposes the local server on a public ngrok endpoint so the Spotify redirect URI can
// be a stable https URL.
package tunnel

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/shelves/internal/shared"
	"golang.ngrok.com/ngrok/v2"
)

// Endpoint is a live forwarder.
type Endpoint interface {
	URL() string
	Close() error
	Done() <-chan struct{}
}

// Dialer opens an endpoint forwarding to upstream.
type Dialer func(ctx context.Context, upstream string) (Endpoint, error)

// Service owns one tunnel. A nil *Service is a disabled tunnel and every method is a no-op.
type Service struct {
	dial     Dialer
	logger   *log.Logger
	endpoint Endpoint
}

// NewService returns nil when the tunnel is disabled.
func NewService(cfg shared.TunnelConfig, logger *log.Logger) (*Service, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.AuthToken == "" {
		return nil, fmt.Errorf("%w: ngrok authtoken not set, use NGROK_AUTHTOKEN or [tunnel] authtoken", shared.ErrMissingCredentials)
	}

	agent, err := ngrok.NewAgent(ngrok.WithAuthtoken(cfg.AuthToken))
	if err != nil {
		return nil, fmt.Errorf("failed to create ngrok agent: %w", err)
	}

	dial := func(ctx context.Context, upstream string) (Endpoint, error) {
		var opts []ngrok.EndpointOption
		if cfg.Domain != "" {
			opts = append(opts, ngrok.WithURL(cfg.Domain))
		}
		fwd, err := agent.Forward(ctx, ngrok.WithUpstream(upstream), opts...)
		if err != nil {
			return nil, err
		}
		return forwarder{fwd}, nil
	}
	return NewServiceWithDialer(dial, logger), nil
}

// NewServiceWithDialer builds a service around a custom dialer.
func NewServiceWithDialer(dial Dialer, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Service{dial: dial, logger: logger}
}

type forwarder struct {
	ngrok.EndpointForwarder
}

func (f forwarder) URL() string {
	return f.EndpointForwarder.URL().String()
}

// Start forwards the public endpoint to upstream (host:port) and returns the public URL.
func (s *Service) Start(ctx context.Context, upstream string) (string, error) {
	if s == nil {
		return "", nil
	}
	if s.endpoint != nil {
		return s.endpoint.URL(), nil
	}

	endpoint, err := s.dial(ctx, upstream)
	if err != nil {
		return "", fmt.Errorf("%w: failed to open tunnel: %v", shared.ErrServiceUnavailable, err)
	}
	s.endpoint = endpoint
	s.logger.Info("tunnel active", "url", endpoint.URL(), "upstream", upstream)
	return endpoint.URL(), nil
}

// PublicURL returns the tunnel URL, or "" when not started.
func (s *Service) PublicURL() string {
	if s == nil || s.endpoint == nil {
		return ""
	}
	return s.endpoint.URL()
}

// CallbackURL is the OAuth redirect URI served through the tunnel.
func (s *Service) CallbackURL() string {
	base := s.PublicURL()
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/api/spotify/callback"
}

// Done is closed when the tunnel drops. A disabled tunnel never closes.
func (s *Service) Done() <-chan struct{} {
	if s == nil || s.endpoint == nil {
		return nil
	}
	return s.endpoint.Done()
}

// Stop closes the tunnel.
func (s *Service) Stop() error {
	if s == nil || s.endpoint == nil {
		return nil
	}
	s.logger.Info("stopping tunnel")
	err := s.endpoint.Close()
	s.endpoint = nil
	return err
}
