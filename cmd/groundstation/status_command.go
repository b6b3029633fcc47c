package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"groundstation/internal/ipc"
	"groundstation/internal/preflight"
)

type offlineStatus struct {
	Running bool   `json:"running"`
	Detail  string `json:"detail"`
	Error   string `json:"error"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, buffer, and worker status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			client, err := ctx.dialClient()
			if err != nil {
				probe := preflight.ProbeDaemon(ctx.configValue())
				if jsonOut {
					return writeJSON(cmd, offlineStatus{Running: probe.Running, Detail: probe.Detail(), Error: err.Error()})
				}
				printSection(stdout, "Daemon", colorize)
				kind := statusWarn
				if probe.Running {
					kind = statusError
				}
				fmt.Fprintln(stdout, renderStatusLine("Daemon", kind, probe.Detail(), colorize))
				fmt.Fprintln(stdout, renderStatusLine("Socket", kind, err.Error(), colorize))
				return nil
			}
			defer client.Close()

			resp, err := client.Status()
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, resp)
			}
			renderStatus(stdout, resp, colorize)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of formatted text")
	return cmd
}

func renderStatus(out io.Writer, resp *ipc.StatusResponse, colorize bool) {
	printSection(out, "Daemon", colorize)
	if resp.Running {
		fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, fmt.Sprintf("running (pid %d, up %s)", resp.PID, formatUptime(resp.Started)), colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, "workers stopped", colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Session", statusInfo, resp.Session, colorize))
	fmt.Fprintln(out, renderStatusLine("Device", statusInfo, resp.Device, colorize))
	if resp.Hotplug {
		fmt.Fprintln(out, renderStatusLine("Hotplug", statusOK, "netlink monitoring active", colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Hotplug", statusInfo, "inactive", colorize))
	}
	if resp.DBPath != "" {
		fmt.Fprintln(out, renderStatusLine("Database", statusInfo, resp.DBPath, colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Database", statusInfo, "persistence disabled", colorize))
	}
	fmt.Fprintln(out)

	printSection(out, "Buffer", colorize)
	fmt.Fprintln(out, renderStatusLine("Columns", statusInfo, strings.Join(resp.Columns, ", "), colorize))
	fmt.Fprintln(out, renderStatusLine("Fill", statusInfo, fmt.Sprintf("%d/%d rows", resp.Size, resp.Capacity), colorize))
	fmt.Fprintln(out, renderStatusLine("Rows pushed", statusInfo, strconv.FormatUint(resp.Pushed, 10), colorize))
	fmt.Fprintln(out)

	printSection(out, "Workers", colorize)
	if len(resp.Workers) == 0 {
		fmt.Fprintln(out, "No workers registered")
	} else {
		fmt.Fprint(out, renderTable(
			[]string{"name", "mode", "state", "iterations", "faults", "last error"},
			workerRows(resp.Workers),
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
		))
	}

	if len(resp.Health) > 0 {
		fmt.Fprintln(out)
		printSection(out, "Health", colorize)
		for _, h := range resp.Health {
			detail := h.Detail
			if detail == "" {
				detail = "ready"
			}
			fmt.Fprintln(out, renderStatusLine(h.Name, passFail(h.Ready), detail, colorize))
		}
	}
}

func workerRows(workers []ipc.WorkerStatus) [][]string {
	rows := make([][]string, 0, len(workers))
	for _, w := range workers {
		lastErr := w.LastError
		if lastErr == "" {
			lastErr = "-"
		}
		rows = append(rows, []string{
			w.Name,
			w.Mode,
			titleCaser.String(w.State),
			strconv.FormatUint(w.Iterations, 10),
			strconv.FormatUint(w.Faults, 10),
			lastErr,
		})
	}
	return rows
}
