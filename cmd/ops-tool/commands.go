// Copyright 2025 Joseph Cumines

package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/joeycumines/lro-client/internal/dispatch"
)

func newListCommand(a *app) *cobra.Command {
	var (
		name      string
		filter    string
		pageToken string
		pageSize  int32
		all       bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fields := dispatch.Fields{"name": name}
			if filter != "" {
				fields["filter"] = filter
			}
			if pageToken != "" {
				fields["page_token"] = pageToken
			}
			if pageSize > 0 {
				fields["page_size"] = pageSize
			}

			it, err := a.client.ListOperations(cmd.Context(), fields)
			if err != nil {
				return err
			}
			if !all {
				for _, op := range it.Response().GetOperations() {
					if err := a.print(op); err != nil {
						return err
					}
				}
				if token := it.Response().GetNextPageToken(); token != "" {
					_, err = fmt.Fprintf(a.out, "next_page_token: %s\n", token)
				}
				return err
			}
			for op, err := range it.All() {
				if err != nil {
					return err
				}
				if err := a.print(op); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "operations", "collection to list")
	cmd.Flags().StringVar(&filter, "filter", "", "server-side filter")
	cmd.Flags().StringVar(&pageToken, "page-token", "", "continue from a previous page")
	cmd.Flags().Int32Var(&pageSize, "page-size", 0, "maximum operations per page")
	cmd.Flags().BoolVar(&all, "all", false, "follow next_page_token until exhausted")
	return cmd
}

func newNameCommand(a *app, use, short string, run func(ctx context.Context, name string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " NAME",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0])
		},
	}
}

func (a *app) get(ctx context.Context, name string) error {
	op, err := a.client.GetOperation(ctx, dispatch.Fields{"name": name})
	if err != nil {
		return err
	}
	return a.print(op.Proto())
}

func (a *app) delete(ctx context.Context, name string) error {
	if _, err := a.client.DeleteOperation(ctx, dispatch.Fields{"name": name}); err != nil {
		return err
	}
	return a.acknowledge("deleted", name)
}

func (a *app) cancel(ctx context.Context, name string) error {
	if _, err := a.client.CancelOperation(ctx, dispatch.Fields{"name": name}); err != nil {
		return err
	}
	return a.acknowledge("cancellation requested", name)
}

func (a *app) acknowledge(action, name string) error {
	_, err := fmt.Fprintf(a.out, "%s: %s\n", action, name)
	return err
}

func newWaitCommand(a *app) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "wait NAME",
		Short: "Poll an operation until it is done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			op, err := a.client.WaitOperation(ctx, args[0])
			if err != nil {
				return err
			}
			if err := a.print(op.Proto()); err != nil {
				return err
			}
			return op.Result(nil)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up after this long (0 waits indefinitely)")
	return cmd
}

func newMethodsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "methods",
		Short:       "Describe the supported methods",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"offline": "true"},
		RunE: func(*cobra.Command, []string) error {
			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "METHOD\tRPC\tHTTP\tFIELDS")
			for _, m := range dispatch.Methods() {
				fields := make([]string, 0, len(m.Fields))
				for _, f := range m.Fields {
					fields = append(fields, string(f))
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.Name, m.FullName, m.HTTPBinding(), strings.Join(fields, ","))
			}
			return w.Flush()
		},
	}
}
