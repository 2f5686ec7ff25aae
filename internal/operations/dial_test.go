// Copyright 2025 Joseph Cumines

package operations_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/lro-client/internal/config"
	"github.com/joeycumines/lro-client/internal/operations"
)

func TestDialOptions(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		want    int
		wantErr bool
	}{
		{name: "insecure", mutate: func(*config.Config) {}, want: 1},
		{name: "tls", mutate: func(c *config.Config) { c.ServerTLS = true }, want: 1},
		{name: "tls with token", mutate: func(c *config.Config) {
			c.ServerTLS = true
			c.Token = "secret"
		}, want: 2},
		{name: "token without tls", mutate: func(c *config.Config) { c.Token = "secret" }, wantErr: true},
		{name: "missing cert file", mutate: func(c *config.Config) {
			c.ServerTLS = true
			c.ServerCertFile = filepath.Join(t.TempDir(), "missing.pem")
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			opts, err := operations.DialOptions(cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, opts, tt.want)
		})
	}
}

func TestNewClient_ConnectsLazily(t *testing.T) {
	cfg := config.Default()
	cfg.ServerAddr = "localhost:1"

	client, err := operations.NewClient(cfg)
	require.NoError(t, err)
	require.NoError(t, client.Close())
}

func TestNewClient_InvalidRetryCodes(t *testing.T) {
	cfg := config.Default()
	cfg.Retry.Codes = []string{"NotACode"}

	_, err := operations.NewClient(cfg)
	require.Error(t, err)
}

func TestNewClient_NilConfig(t *testing.T) {
	client, err := operations.NewClient(nil)
	require.Error(t, err)
	assert.Nil(t, client)
}
