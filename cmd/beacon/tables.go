package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func renderTable(headers []string, rows [][]string) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(row))
		for i, cell := range row {
			r[i] = cell
		}
		tw.AppendRow(r)
	}
	return tw.Render()
}

func newListCommand(hostFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:     "ls [prefix]",
		Aliases: []string{"list"},
		Short:   "List configuration documents",
		Args:    cobra.MaximumNArgs(1),
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

			nodes, err := c.List(prefix)
			if err != nil {
				return err
			}
			rows := make([][]string, len(nodes))
			for i, node := range nodes {
				rows[i] = []string{node.Path, strconv.FormatInt(node.Version, 10)}
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"path", "version"}, rows))
			return nil
		},
	}
}

func newStatusCommand(hostFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show supervised services and connected clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connect(cmd.Context(), *hostFlag)
			if err != nil {
				return err
			}
			defer c.Close()

			status, err := c.Status()
			if err != nil {
				return err
			}

			rows := make([][]string, len(status.Services))
			for i, svc := range status.Services {
				ports := make([]string, len(svc.Ports))
				for j, port := range svc.Ports {
					ports[j] = strconv.Itoa(port)
				}
				required := ""
				if svc.Required {
					required = "yes"
				}
				rows[i] = []string{svc.Name, svc.State, required, strings.Join(ports, ","), svc.Error}
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"service", "state", "required", "ports", "error"}, rows))

			if len(status.Clients) > 0 {
				fmt.Fprintf(out, "clients: %s\n", strings.Join(status.Clients, ", "))
			}
			return nil
		},
	}
}
