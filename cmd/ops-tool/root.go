// Copyright 2025 Joseph Cumines

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/joeycumines/lro-client/internal/config"
	"github.com/joeycumines/lro-client/internal/operations"
)

// clientFactory builds the operations client once the configuration is
// known. Tests replace it to inject an in-process server.
type clientFactory func(cfg *config.Config, logger *zap.Logger) (*operations.Client, error)

func dialClient(cfg *config.Config, logger *zap.Logger) (*operations.Client, error) {
	return operations.NewClient(cfg, operations.WithLogger(logger))
}

//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type app struct {
	out       io.Writer
	newClient clientFactory
	cfg       *config.Config
	logger    *zap.Logger
	client    *operations.Client

	serverAddr string
	debug      bool
}

func newApp(out io.Writer) *app {
	return &app{out: out, newClient: dialClient}
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "ops-tool",
		Short: "Inspect and manage long-running operations",
		Long: `ops-tool calls the google.longrunning.Operations service.

Configuration is read from LRO_CONFIG_FILE and LRO_* environment variables;
flags override both.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.teardown()
		},
	}
	root.PersistentFlags().StringVar(&a.serverAddr, "server", "", "server address (overrides LRO_SERVER_ADDR)")
	root.PersistentFlags().BoolVarP(&a.debug, "debug", "d", false, "enable debug logging")

	root.AddCommand(
		newListCommand(a),
		newNameCommand(a, "get", "Get the latest state of an operation", a.get),
		newNameCommand(a, "delete", "Delete an operation record", a.delete),
		newNameCommand(a, "cancel", "Request cancellation of an operation", a.cancel),
		newWaitCommand(a),
		newMethodsCommand(a),
	)
	return root
}

// setup loads configuration and creates the client. Commands annotated as
// offline skip it.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if cmd.Annotations["offline"] == "true" {
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if a.serverAddr != "" {
		cfg.ServerAddr = a.serverAddr
	}
	if a.debug {
		cfg.Debug = true
	}
	a.cfg = cfg

	if a.logger, err = config.NewLogger(cfg); err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	if a.client, err = a.newClient(cfg, a.logger); err != nil {
		return fmt.Errorf("failed to create operations client: %w", err)
	}
	return nil
}

func (a *app) teardown() error {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	if a.client == nil {
		return nil
	}
	return a.client.Close()
}

var printOptions = protojson.MarshalOptions{Multiline: true, Indent: "  "}

func (a *app) print(m proto.Message) error {
	b, err := printOptions.Marshal(m)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.out, string(b))
	return err
}
