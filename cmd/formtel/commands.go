package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"formtel/pkg/ingest"
	"formtel/pkg/logstore"
	"formtel/pkg/model"
	"formtel/pkg/uplink"
)

const drainTimeout = 30 * time.Second

func newLogCommand(rf *rootFlags) *cobra.Command {
	var (
		level     string
		exception string
		props     []string
	)
	cmd := &cobra.Command{
		Use:   "log MESSAGE",
		Short: "Record a log entry; warnings and errors are reported to the collector",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lvl, err := model.ParseLevel(level)
			if err != nil {
				return err
			}
			properties, err := parseProps(props)
			if err != nil {
				return err
			}
			var exc error
			if exception != "" {
				exc = errors.New(exception)
			}

			return withApp(cmd, rf, appOptions{}, func(ctx context.Context, a *app) error {
				a.logger.Log(lvl, args[0], exc, properties)
				if err := a.logger.Flush(ctx); err != nil {
					return err
				}
				if !lvl.Qualifies() {
					return nil
				}
				return drainAll(ctx, cmd, a)
			})
		},
	}
	cmd.Flags().StringVarP(&level, "level", "l", "Information", "Debug, Information, Warning or Error")
	cmd.Flags().StringVar(&exception, "exception", "", "exception text to attach")
	cmd.Flags().StringArrayVarP(&props, "prop", "p", nil, "property as key=value (repeatable)")
	return cmd
}

func newLogsCommand(rf *rootFlags) *cobra.Command {
	var (
		maxCount int
		where    []string
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "List stored log entries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			matches, err := parseMatches(where)
			if err != nil {
				return err
			}
			return withApp(cmd, rf, appOptions{}, func(ctx context.Context, a *app) error {
				records, err := logstore.Select(a.store.Records(ctx, 0), matches...)
				if err != nil {
					return err
				}
				if maxCount > 0 && len(records) > maxCount {
					records = records[:maxCount]
				}
				out := cmd.OutOrStdout()
				for _, rec := range records {
					fmt.Fprintf(out, "%s %-11s %s", rec.Timestamp.Format(time.RFC3339), rec.Level, rec.Message)
					if rec.Exception != "" {
						fmt.Fprintf(out, " (%s)", rec.Exception)
					}
					fmt.Fprintln(out)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&maxCount, "max", "n", 0, "show at most N entries")
	cmd.Flags().StringArrayVarP(&where, "where", "w", nil, "filter: field=value, field~substring or field=~regex (repeatable)")
	return cmd
}

func newExportCommand(rf *rootFlags) *cobra.Command {
	var (
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the stored log as JSON or text",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rf, appOptions{}, func(ctx context.Context, a *app) error {
				var body string
				switch format {
				case "json":
					js, err := a.logger.ExportJSON(ctx)
					if err != nil {
						return err
					}
					body = js + "\n"
				case "text", "txt":
					body = a.logger.ExportText(ctx)
				default:
					return fmt.Errorf("unknown format %q (want json or text)", format)
				}

				if output == "" || output == "-" {
					_, err := fmt.Fprint(cmd.OutOrStdout(), body)
					return err
				}
				return os.WriteFile(output, []byte(body), 0o644)
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "json or text")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func newDownloadCommand(rf *rootFlags) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Save the text export as logs_<timestamp>.txt",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rf, appOptions{downloadDir: dir}, func(ctx context.Context, a *app) error {
				name, err := a.logger.DownloadText(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), name)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "target directory")
	return cmd
}

func newClearCommand(rf *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all stored log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rf, appOptions{}, func(ctx context.Context, a *app) error {
				a.logger.Clear(ctx)
				return nil
			})
		},
	}
}

func newReportCommand(rf *rootFlags) *cobra.Command {
	var where []string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Send stored warnings and errors to the collector as one batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			matches, err := parseMatches(where)
			if err != nil {
				return err
			}
			return withApp(cmd, rf, appOptions{}, func(ctx context.Context, a *app) error {
				records, err := logstore.Select(a.store.Records(ctx, 0), matches...)
				if err != nil {
					return err
				}
				if !a.pipe.SubmitBatch(records) {
					fmt.Fprintln(cmd.OutOrStdout(), "nothing to report")
					return nil
				}
				return drainAll(ctx, cmd, a)
			})
		},
	}
	cmd.Flags().StringArrayVarP(&where, "where", "w", nil, "filter stored entries before reporting (repeatable)")
	return cmd
}

func newAgentCommand(rf *rootFlags) *cobra.Command {
	var tcpAddr, udpAddr string
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Accept JSON log records over TCP/UDP and report errors until stopped",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rf, appOptions{}, func(ctx context.Context, a *app) error {
				if tcpAddr == "" {
					tcpAddr = a.cfg.Ingest.TCPAddr
				}
				if udpAddr == "" {
					udpAddr = a.cfg.Ingest.UDPAddr
				}

				a.pipe.Start(ctx)
				a.diag.Info("Agent: running", "tcp", tcpAddr, "udp", udpAddr)

				g, gctx := errgroup.WithContext(ctx)
				if tcpAddr != "" {
					tcp := ingest.NewTCPIngestor(tcpAddr, a.logger, a.diag)
					g.Go(func() error { return tcp.Start(gctx) })
				}
				if udpAddr != "" {
					udp := ingest.NewUDPIngestor(udpAddr, a.logger, a.diag)
					g.Go(func() error { return udp.Start(gctx) })
				}
				err := g.Wait()

				st := a.pipe.Stats()
				a.diag.Info("Agent: stopped", "sent", st.Sent, "failures", st.Failures, "pending", st.Pending)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&tcpAddr, "tcp", "", "TCP listen address (default from config)")
	cmd.Flags().StringVar(&udpAddr, "udp", "", "UDP listen address (default from config)")
	return cmd
}

// drainAll runs drain cycles until the queue is empty or a send fails. A
// short-lived command has no later cycle to retry in, so failures are
// reported to the user.
func drainAll(ctx context.Context, cmd *cobra.Command, a *app) error {
	ctx, cancel := context.WithTimeout(ctx, drainTimeout)
	defer cancel()

	for a.pipe.Pending() > 0 {
		if _, err := a.pipe.DrainOnce(ctx); err != nil {
			if errors.Is(err, uplink.ErrNotConfigured) {
				fmt.Fprintln(cmd.ErrOrStderr(), "collector not configured; entry kept in the local store only")
				return nil
			}
			return fmt.Errorf("report errors: %w", err)
		}
	}
	st := a.pipe.Stats()
	fmt.Fprintf(cmd.OutOrStdout(), "reported %d record(s)\n", st.Sent)
	return nil
}

func parseProps(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	props := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid property %q (want key=value)", p)
		}
		props[k] = v
	}
	return props, nil
}

func parseMatches(exprs []string) ([]logstore.Match, error) {
	matches := make([]logstore.Match, 0, len(exprs))
	for _, e := range exprs {
		m, err := logstore.ParseMatch(e)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, nil
}
