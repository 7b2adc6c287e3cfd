package main

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"beacon/internal/client"
	"beacon/internal/discovery"
)

func newRootCommand() *cobra.Command {
	var hostFlag string

	cmd := &cobra.Command{
		Use:           "beacon",
		Short:         "Beacon daemon client",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVar(&hostFlag, "host", "", "daemon host:port (overrides BEACON_HOST and discovery)")

	cmd.AddCommand(newLocateCommand())
	cmd.AddCommand(newListCommand(&hostFlag))
	cmd.AddCommand(newCatCommand(&hostFlag))
	cmd.AddCommand(newStatusCommand(&hostFlag))
	cmd.AddCommand(newWatchCommand(&hostFlag))

	return cmd
}

// connect resolves the daemon address from the flag, the environment, or
// discovery, in that order.
func connect(ctx context.Context, hostFlag string) (*client.Client, error) {
	if hostFlag != "" {
		return client.Dial(hostFlag)
	}
	return client.Connect(ctx)
}

func newLocateCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "locate",
		Short: "Find a beacon daemon on the local network",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			reply, err := discovery.Locate(ctx, discovery.LocateOptions{})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), net.JoinHostPort(reply.Host, strconv.Itoa(reply.Port)))
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "how long to wait for a reply")
	return cmd
}

func newCatCommand(hostFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cat <path>",
		Short: "Print one configuration document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connect(cmd.Context(), *hostFlag)
			if err != nil {
				return err
			}
			defer c.Close()

			content, _, err := c.Read(args[0])
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(content)
			return err
		},
	}
}

func newWatchCommand(hostFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [prefix]",
		Short: "Stream change events for a configuration subtree",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}

			c, err := connect(cmd.Context(), *hostFlag)
			if err != nil {
				return err
			}
			defer c.Close()

			events, cancel, err := c.Watch(prefix)
			if err != nil {
				return err
			}
			defer cancel()

			out := cmd.OutOrStdout()
			for {
				select {
				case <-cmd.Context().Done():
					return nil
				case ev, ok := <-events:
					if !ok {
						return nil
					}
					fmt.Fprintf(out, "%s\t%s\tv%d\n", ev.Kind, ev.Path, ev.Version)
				}
			}
		},
	}
}
