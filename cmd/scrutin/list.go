package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scrutin/scrutin/internal/archive"
	"github.com/scrutin/scrutin/internal/dashboard"
	"github.com/scrutin/scrutin/internal/events"
	"github.com/scrutin/scrutin/internal/ingestion"
	"github.com/scrutin/scrutin/internal/lock"
	"github.com/scrutin/scrutin/internal/platform"
	"github.com/scrutin/scrutin/internal/store"
	"github.com/scrutin/scrutin/pkg/config"
	"github.com/scrutin/scrutin/pkg/publication"
	"github.com/scrutin/scrutin/pkg/surface"
	"github.com/scrutin/scrutin/pkg/view"
)

func newListCmd() *cobra.Command {
	var opts listOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List entities with their publication status",
		Long: `Lists circonscriptions, departments or communes with totals, leader and
readiness. Reads the database given by --database-url (or DATABASE_URL),
or imports the --rows file into memory when no database is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.entityType, "type", "circonscription", "Entity type: circonscription, department or commune")
	cmd.Flags().StringVar(&opts.rowsPath, "rows", "", "JSON file of unit rows to list without a database")
	cmd.Flags().StringVar(&opts.databaseURL, "database-url", "", "Postgres connection string")
	cmd.Flags().StringVar(&opts.status, "status", "all", "Filter: all, ready, NOT_PUBLISHED, PUBLISHED or CANCELLED")
	cmd.Flags().StringVar(&opts.search, "search", "", "Match entity or subordinate unit code and label")
	cmd.Flags().IntVar(&opts.page, "page", 1, "Page number")
	cmd.Flags().IntVar(&opts.pageSize, "page-size", 0, "Page size (default: dashboard.page_size)")
	cmd.Flags().StringVar(&opts.outputFmt, "output", "text", "Output format: text or json")

	return cmd
}

type listOpts struct {
	entityType  string
	rowsPath    string
	databaseURL string
	status      string
	search      string
	page        int
	pageSize    int
	outputFmt   string
}

func runList(ctx context.Context, w io.Writer, opts listOpts) error {
	if ctx == nil {
		ctx = context.Background()
	}
	typ := publication.EntityType(opts.entityType)
	h, _, ok := typ.Placement()
	if !ok {
		return fmt.Errorf("unknown entity type %q", opts.entityType)
	}
	status, ok := view.ParseStatusFilter(opts.status)
	if !ok {
		return fmt.Errorf("unknown status filter %q", opts.status)
	}
	if opts.outputFmt != "text" && opts.outputFmt != "json" {
		return fmt.Errorf("unknown output format %q", opts.outputFmt)
	}

	cfg := loadConfig()
	logger := zap.NewNop()

	var st store.Store
	if dsn := firstNonEmpty(opts.databaseURL, os.Getenv("DATABASE_URL")); dsn != "" {
		db, err := platform.Open(ctx, dsn)
		if err != nil {
			return err
		}
		defer db.Close()
		st = store.NewPostgres(db)
	} else {
		if opts.rowsPath == "" {
			return fmt.Errorf("either --database-url or --rows is required")
		}
		rows, err := readRows(opts.rowsPath)
		if err != nil {
			return err
		}
		mem := store.NewMemory()
		res, err := ingestion.NewService(mem, mem, cfg.Ingestion, logger).ImportBatch(ctx, h.Name, rows)
		if err != nil {
			return err
		}
		for _, rej := range res.Rejected {
			fmt.Fprintf(os.Stderr, "  Rejected: %v\n", rej)
		}
		st = mem
	}

	arch := archive.New(archive.NewLocal(config.ArchiveDir()), cfg.Archive.CacheSize)
	dash := dashboard.NewService(st, lock.NewLocal(), arch, events.Nop{}, cfg.Dashboard, logger)

	page, err := dash.List(ctx, typ, view.Filter{Status: status, Search: opts.search}, opts.page, opts.pageSize)
	if err != nil {
		return err
	}

	if opts.outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(page)
	}

	reports := make([]*surface.Report, len(page.Items))
	for i, e := range page.Items {
		rec := e.Record
		reports[i] = surface.NewReport(e.Node, &rec, nil)
	}
	surface.RenderTable(w, reports)
	fmt.Fprintf(w, "\nPage %d/%d, %d %s(s)\n", page.Page, max(page.TotalPages, 1), page.Total, typ)
	return nil
}
