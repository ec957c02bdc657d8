package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ent0n29/tensai/internal/admin"
	"github.com/ent0n29/tensai/internal/app"
	"github.com/ent0n29/tensai/internal/db"
)

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			h, err := db.Open(ctx, c.cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer h.Close()
			applied, err := h.Migrate(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(applied) == 0 {
				fmt.Fprintf(out, "%s: schema is up to date\n", h.Driver)
				return nil
			}
			for _, v := range applied {
				fmt.Fprintf(out, "%s: applied %05d\n", h.Driver, v)
			}
			return nil
		},
	}
}

func (c *cli) leadsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "leads",
		Short: "Inspect captured leads",
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List persisted leads",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(res *app.BuildResult) error {
				entries, err := res.Admin.ListLeads(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					return writeJSON(out, entries)
				}
				if len(entries) == 0 {
					fmt.Fprintln(out, "No leads found.")
					return nil
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "SEGMENT\tNAME\tPHONE\tEMAIL\tUPDATED")
				for _, e := range entries {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.SegmentID, e.Record.Name, e.Record.Phone, e.Record.Email, formatTime(e.UpdatedAt))
				}
				return tw.Flush()
			})
		},
	}
	list.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	cmd.AddCommand(list)
	return cmd
}

func (c *cli) sessionsCmd() *cobra.Command {
	var (
		asJSON bool
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect chat sessions",
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(res *app.BuildResult) error {
				sessions, err := res.Admin.ListSessions(cmd.Context(), limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					return writeJSON(out, sessions)
				}
				if len(sessions) == 0 {
					fmt.Fprintln(out, "No sessions found.")
					return nil
				}
				now := time.Now()
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tPHONE\tEXPIRES\tVALID")
				for _, s := range sessions {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", s.ID, s.Profile.Name, s.Profile.Phone, formatTime(s.ExpiresAt), s.Valid(now))
				}
				return tw.Flush()
			})
		},
	}
	list.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	list.Flags().IntVar(&limit, "limit", 50, "maximum sessions to list")
	cmd.AddCommand(list)
	return cmd
}

func (c *cli) purgeCmd() *cobra.Command {
	var sessionID, name string
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete a session and its turn log by id or by name",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (sessionID == "") == (name == "") {
				return errors.New("exactly one of --session or --name is required")
			}
			return c.withApp(cmd.Context(), func(res *app.BuildResult) error {
				result, err := purge(cmd.Context(), res.Admin, sessionID, name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d session(s) and %d turn(s)\n", result.Sessions, result.Turns)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id to purge")
	cmd.Flags().StringVar(&name, "name", "", "purge every session whose name matches exactly")
	return cmd
}

func purge(ctx context.Context, svc *admin.Service, sessionID, name string) (admin.PurgeResult, error) {
	if sessionID != "" {
		return svc.PurgeSession(ctx, sessionID)
	}
	return svc.PurgeByName(ctx, name)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
