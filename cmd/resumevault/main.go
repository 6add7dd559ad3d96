package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/ResumeVault/internal/app"
	"github.com/dharsanguruparan/ResumeVault/internal/config"
	"github.com/dharsanguruparan/ResumeVault/internal/database"
	"github.com/dharsanguruparan/ResumeVault/internal/logger"
	"github.com/dharsanguruparan/ResumeVault/internal/scheduler"
	"github.com/dharsanguruparan/ResumeVault/internal/search"
	"github.com/dharsanguruparan/ResumeVault/internal/tier"
)

var configPath string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "resumevault: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "resumevault",
		Short:        "ResumeVault operations CLI",
		Long:         `Run schema migrations, batch reanalysis, searches and tier lookups against a ResumeVault deployment.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default resumevault.yaml if present)")
	cmd.AddCommand(
		newMigrateCmd(),
		newReanalyzeCmd(),
		newSearchCmd(),
		newTierCmd(),
	)
	return cmd
}

// openApp loads config and builds the components for one command.
func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	l, err := logger.New(cfg.Log.JSON, cfg.Log.Debug)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return app.New(ctx, cfg, l)
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the Postgres schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return fmt.Errorf("database.url is required")
			}
			pool, err := database.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := database.EnsureSchema(ctx, pool); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func newReanalyzeCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "reanalyze [id...]",
		Short: "Reprocess documents in paced batches and print a report",
		Args: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) > 0) {
				return fmt.Errorf("pass document ids or --all, not both")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if all {
				if ids, err = a.Store.ListActiveIDs(ctx); err != nil {
					return err
				}
			}
			sched, err := a.Scheduler(ctx)
			if err != nil {
				return err
			}
			report := sched.BatchReanalyze(ctx, ids)
			if err := writeJSON(cmd.OutOrStdout(), summarize(report)); err != nil {
				return err
			}
			return report.Err
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "reanalyze every non-deleted document")
	return cmd
}

type outcomeRow struct {
	ID      int64  `json:"id"`
	Status  string `json:"status"`
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

type reportView struct {
	Total     int          `json:"total"`
	Batches   int          `json:"batches"`
	Qualified int          `json:"qualified"`
	Rejected  int          `json:"rejected"`
	Failed    int          `json:"failed"`
	Skipped   int          `json:"skipped"`
	Outcomes  []outcomeRow `json:"outcomes"`
}

func summarize(r scheduler.BatchReport) reportView {
	view := reportView{
		Total:     r.Total,
		Batches:   r.Batches,
		Qualified: r.Qualified,
		Rejected:  r.Rejected,
		Failed:    r.Failed,
		Skipped:   r.Skipped,
		Outcomes:  make([]outcomeRow, 0, len(r.Outcomes)),
	}
	for _, o := range r.Outcomes {
		row := outcomeRow{ID: o.ID, Status: o.Status.String(), Skipped: o.Skipped}
		if o.Err != nil {
			row.Error = o.Err.Error()
		}
		view.Outcomes = append(view.Outcomes, row)
	}
	return view
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid document id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func newSearchCmd() *cobra.Command {
	var c search.Criteria
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Query documents and print the page as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			page, err := a.Search.Query(ctx, c)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), page)
		},
	}
	f := cmd.Flags()
	f.StringVar(&c.Status, "status", "", "status codes, e.g. 2,3")
	f.StringVar(&c.Name, "name", "", "name contains")
	f.StringVar(&c.Email, "email", "", "email contains")
	f.StringVar(&c.Phone, "phone", "", "phone contains")
	f.StringVar(&c.Institution, "institution", "", "institution name or alias")
	f.StringVar(&c.Tier, "tier", "", "institution tier label")
	f.StringVar(&c.Degree, "degree", "", "degree contains")
	f.StringVar(&c.Major, "major", "", "major contains")
	f.StringVar(&c.Skill, "skill", "", "required skills, comma separated")
	f.StringVar(&c.DateFrom, "from", "", "created on or after (YYYY-MM-DD)")
	f.StringVar(&c.DateTo, "to", "", "created on or before (YYYY-MM-DD)")
	f.IntVar(&c.Offset, "offset", 0, "results to skip")
	f.IntVar(&c.Limit, "limit", search.DefaultLimit, "page size")
	f.BoolVar(&c.IncludeDeleted, "include-deleted", false, "include soft-deleted documents")
	return cmd
}

func newTierCmd() *cobra.Command {
	var tablesFile string
	cmd := &cobra.Command{
		Use:   "tier <institution...>",
		Short: "Resolve institution names to tiers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver := tier.Default()
			if tablesFile != "" {
				tables, err := tier.LoadTables(tablesFile)
				if err != nil {
					return err
				}
				resolver = tier.NewResolver(tables)
			}
			type row struct {
				Query     string   `json:"query"`
				Canonical string   `json:"canonical"`
				Tier      string   `json:"tier"`
				Expands   []string `json:"expands"`
			}
			rows := make([]row, 0, len(args))
			for _, name := range args {
				rows = append(rows, row{
					Query:     name,
					Canonical: resolver.Canonical(name),
					Tier:      string(resolver.Resolve(name)),
					Expands:   resolver.Expand(name),
				})
			}
			return writeJSON(cmd.OutOrStdout(), rows)
		},
	}
	cmd.Flags().StringVar(&tablesFile, "tables", "", "YAML file overriding the built-in tier tables")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
