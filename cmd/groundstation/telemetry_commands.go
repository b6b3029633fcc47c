package main

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"groundstation/internal/ipc"
)

func newLatestCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Show the newest telemetry row",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Latest()
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if !resp.Available {
					fmt.Fprintln(out, "No telemetry received yet")
					return nil
				}
				rows := make([][]string, 0, len(resp.Columns))
				for i, name := range resp.Columns {
					value := "-"
					if i < len(resp.Row) {
						value = formatValue(resp.Row[i])
					}
					rows = append(rows, []string{name, value})
				}
				fmt.Fprintf(out, "Row %d\n", resp.Seq)
				fmt.Fprint(out, renderTable([]string{"column", "value"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newSnapshotCommand(ctx *commandContext) *cobra.Command {
	var (
		jsonOut bool
		tail    int
	)
	cmd := &cobra.Command{
		Use:   "snapshot <column>",
		Short: "Show one column's retained values, oldest first",
		Long:  "Show one column's retained values, oldest first. The column may be given by name or by zero-based index.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := snapshotRequest(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Snapshot(req)
				if err != nil {
					return err
				}
				start := 0
				if tail > 0 && len(resp.Values) > tail {
					start = len(resp.Values) - tail
				}
				resp.Values = resp.Values[start:]
				if jsonOut {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if len(resp.Values) == 0 {
					fmt.Fprintf(out, "Column %s has no values yet\n", resp.Column)
					return nil
				}
				rows := make([][]string, 0, len(resp.Values))
				for i, v := range resp.Values {
					rows = append(rows, []string{strconv.Itoa(start + i), formatValue(v)})
				}
				fmt.Fprint(out, renderTable([]string{"#", resp.Column}, rows, []columnAlignment{alignRight, alignRight}))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of a table")
	cmd.Flags().IntVarP(&tail, "tail", "n", 0, "Only show the newest N values")
	return cmd
}

// snapshotRequest treats a non-negative integer as a column index and
// anything else as a column name.
func snapshotRequest(arg string) (ipc.SnapshotRequest, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return ipc.SnapshotRequest{}, errors.New("column is required")
	}
	if index, err := strconv.Atoi(arg); err == nil {
		if index < 0 {
			return ipc.SnapshotRequest{}, fmt.Errorf("invalid column index %d", index)
		}
		return ipc.SnapshotRequest{Index: index}, nil
	}
	return ipc.SnapshotRequest{Name: arg}, nil
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var (
		jsonOut  bool
		session  string
		limit    int
		sessions bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show persisted samples or recorded sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				out := cmd.OutOrStdout()
				if sessions {
					resp, err := client.Sessions(ipc.SessionsRequest{Limit: limit})
					if err != nil {
						return err
					}
					if jsonOut {
						return writeJSON(cmd, resp)
					}
					if !resp.Enabled {
						fmt.Fprintln(out, "Persistence is disabled")
						return nil
					}
					if len(resp.Sessions) == 0 {
						fmt.Fprintln(out, "No sessions recorded")
						return nil
					}
					fmt.Fprint(out, renderTable(
						[]string{"session", "measurement", "samples", "first", "last"},
						sessionRows(resp.Sessions),
						[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
					))
					return nil
				}

				resp, err := client.History(ipc.HistoryRequest{Session: session, Limit: limit})
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp)
				}
				if !resp.Enabled {
					fmt.Fprintln(out, "Persistence is disabled")
					return nil
				}
				if len(resp.Samples) == 0 {
					fmt.Fprintln(out, "No samples recorded")
					return nil
				}
				headers, rows := sampleTable(resp.Samples)
				aligns := make([]columnAlignment, len(headers))
				for i := 2; i < len(aligns); i++ {
					aligns[i] = alignRight
				}
				fmt.Fprintf(out, "Showing %d of %d samples\n", len(resp.Samples), resp.Total)
				fmt.Fprint(out, renderTable(headers, rows, aligns))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of a table")
	cmd.Flags().StringVar(&session, "session", "", "Only show samples from this session")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum rows to show")
	cmd.Flags().BoolVar(&sessions, "sessions", false, "List recorded sessions instead of samples")
	return cmd
}

func sessionRows(sessions []ipc.SessionSummary) [][]string {
	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, []string{
			s.Session,
			s.Measurement,
			strconv.FormatInt(s.Samples, 10),
			formatTime(s.First),
			formatTime(s.Last),
		})
	}
	return rows
}

// sampleTable lays out samples with one column per field name, sorted.
func sampleTable(samples []ipc.Sample) ([]string, [][]string) {
	seen := make(map[string]struct{})
	var fields []string
	for _, s := range samples {
		for name := range s.Fields {
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				fields = append(fields, name)
			}
		}
	}
	sort.Strings(fields)

	headers := append([]string{"recorded", "session", "seq"}, fields...)
	rows := make([][]string, 0, len(samples))
	for _, s := range samples {
		row := []string{formatTime(s.RecordedAt), s.Session, strconv.FormatUint(s.Seq, 10)}
		for _, name := range fields {
			value := "-"
			if v, ok := s.Fields[name]; ok {
				value = formatValue(v)
			}
			row = append(row, value)
		}
		rows = append(rows, row)
	}
	return headers, rows
}
