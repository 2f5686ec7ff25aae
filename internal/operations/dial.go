// Copyright 2025 Joseph Cumines

package operations

import (
	"fmt"

	"golang.org/x/oauth2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/credentials/oauth"

	"github.com/joeycumines/lro-client/internal/config"
)

// DialOptions returns the grpc dial options for cfg: insecure by default, or
// TLS (optionally from a CA cert file) with an optional bearer token sent as
// per-RPC credentials.
func DialOptions(cfg *config.Config) ([]grpc.DialOption, error) {
	var opts []grpc.DialOption

	if cfg.ServerTLS {
		creds := credentials.NewTLS(nil)
		if cfg.ServerCertFile != "" {
			var err error
			creds, err = credentials.NewClientTLSFromFile(cfg.ServerCertFile, "")
			if err != nil {
				return nil, fmt.Errorf("failed to load TLS cert: %w", err)
			}
		}
		opts = append(opts, grpc.WithTransportCredentials(creds))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	if cfg.Token != "" {
		if !cfg.ServerTLS {
			return nil, fmt.Errorf("bearer token requires TLS")
		}
		opts = append(opts, grpc.WithPerRPCCredentials(oauth.TokenSource{
			TokenSource: oauth2.StaticTokenSource(&oauth2.Token{
				AccessToken: cfg.Token,
				TokenType:   "Bearer",
			}),
		}))
	}

	return opts, nil
}

// Dial creates the client connection described by cfg. Connecting is lazy.
func Dial(cfg *config.Config, extra ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts, err := DialOptions(cfg)
	if err != nil {
		return nil, err
	}
	conn, err := grpc.NewClient(cfg.ServerAddr, append(opts, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return conn, nil
}
