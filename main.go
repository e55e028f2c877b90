package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"auction-importer/api"
	"auction-importer/config"
	"auction-importer/models"
	"auction-importer/scraper"
	"auction-importer/services"
	"auction-importer/storage"
	"auction-importer/utils"
)

func main() {
	cfg := config.Load()
	logger := utils.NewLevelLogger(utils.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := &cobra.Command{
		Use:           "auction-importer",
		Short:         "Import, scrape and serve car-auction listings",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		importCmd(cfg, logger),
		scrapeCmd(cfg, logger),
		listCmd(cfg, logger),
		statsCmd(cfg, logger),
		serveCmd(cfg, logger),
		functionCmd(cfg, logger),
	)
	exitOnError(logger, root.ExecuteContext(ctx))
}

func importCmd(cfg *config.Config, logger *utils.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json>",
		Short: "Replace the catalog with the cars in a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.importer.ImportFile(cmd.Context(), args[0])
			if err != nil {
				return describe(err)
			}
			printReport(report)
			return printStats(cmd.Context(), a)
		},
	}
}

func scrapeCmd(cfg *config.Config, logger *utils.Logger) *cobra.Command {
	var (
		doImport   bool
		noFallback bool
		importMock bool
		debug      bool
		timeout    time.Duration
		wait       string
	)
	cmd := &cobra.Command{
		Use:   "scrape <source>",
		Short: "Run the remote scrape function for a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			if noFallback {
				cfg.Scraper.MockFallback = false
			}
			if importMock {
				cfg.Scraper.ImportMock = true
			}
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := a.scrapes.Run(cmd.Context(), args[0], scraper.Options{
				Timeout:            timeout,
				UseRandomUserAgent: cfg.Scraper.RandomUserAgent,
				WaitForSelector:    wait,
				Debug:              debug,
			}, doImport)
			fmt.Println(out.Result.String())
			if debug && out.Result.HTML != "" {
				fmt.Println(out.Result.HTML)
			}
			if err != nil {
				return describe(err)
			}
			if out.Report != nil {
				printReport(out.Report)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&doImport, "import", false, "import the scraped cars, replacing the catalog")
	cmd.Flags().BoolVar(&noFallback, "no-fallback", false, "fail instead of substituting mock data")
	cmd.Flags().BoolVar(&importMock, "import-mock", false, "allow fallback mock cars to replace the catalog")
	cmd.Flags().BoolVar(&debug, "debug", false, "ask the function to return the page HTML")
	cmd.Flags().DurationVar(&timeout, "timeout", cfg.Scraper.Timeout, "scrape timeout")
	cmd.Flags().StringVar(&wait, "wait", "", "CSS selector the browser waits for")
	return cmd
}

func listCmd(cfg *config.Config, logger *utils.Logger) *cobra.Command {
	var q storage.ListQuery
	var sortBy, order string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored auctions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			q.SortBy = sortBy
			q.Desc = strings.EqualFold(order, "desc")
			res, err := a.store.List(cmd.Context(), q.Normalized())
			if err != nil {
				return err
			}
			for _, c := range res.Items {
				fmt.Printf("  %-6d %-40s %-14s %5d  € %10.2f  %s\n",
					c.ID, truncate(c.Title, 40), truncate(c.Make, 14), c.Year, c.StartPrice, c.EndDate.Format("2006-01-02 15:04"))
			}
			fmt.Printf("\n  page %d, %d of %d auctions\n", res.Page, len(res.Items), res.Total)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&q.Make, "make", "", "filter by make")
	f.StringVar(&q.Model, "model", "", "filter by model")
	f.StringVar(&q.Fuel, "fuel", "", "filter by fuel type")
	f.StringVar(&q.Transmission, "transmission", "", "filter by transmission")
	f.StringVar(&q.Location, "location", "", "filter by location")
	f.StringVar(&q.Status, "status", "", "filter by status")
	f.StringVarP(&q.Search, "search", "q", "", "search titles")
	f.Float64Var(&q.MinPrice, "min-price", 0, "minimum start price")
	f.Float64Var(&q.MaxPrice, "max-price", 0, "maximum start price")
	f.IntVar(&q.MinYear, "min-year", 0, "minimum year")
	f.IntVar(&q.MaxYear, "max-year", 0, "maximum year")
	f.StringVar(&sortBy, "sort", "", "end_date, start_price, year or created_at")
	f.StringVar(&order, "order", "asc", "asc or desc")
	f.IntVar(&q.Page, "page", 1, "page number")
	f.IntVar(&q.PageSize, "page-size", storage.DefaultPageSize, "rows per page")
	return cmd
}

func statsCmd(cfg *config.Config, logger *utils.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print catalog statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()
			return printStats(cmd.Context(), a)
		},
	}
}

func serveCmd(cfg *config.Config, logger *utils.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the admin HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := api.NewServer(logger, api.Deps{
				Catalog:       a.store,
				Importer:      a.importer,
				Scrapes:       a.scrapes,
				Insights:      a.insights,
				Sessions:      a.sessions,
				Auth:          newHostedAuth(cfg, logger),
				Metrics:       a.metrics,
				CORSOrigin:    cfg.CORSOrigin,
				ServiceName:   cfg.OTelServiceName,
				SecureCookies: cfg.SecureCookies,
			})
			return listen(cmd.Context(), logger, "api", cfg.HTTPAddr, srv.Handler())
		},
	}
}

func functionCmd(cfg *config.Config, logger *utils.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "function",
		Short: "Run the scrape function server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fn, err := newFunctionServer(cfg, logger)
			if err != nil {
				return err
			}
			h := api.Chain(fn.Handler(), api.Recover(logger), api.OTel(cfg.OTelServiceName+"-function"), api.Logger(logger))
			return listen(cmd.Context(), logger, "function", cfg.Function.Addr, h)
		},
	}
}

// listen serves h until ctx is cancelled, then shuts down gracefully.
func listen(ctx context.Context, logger *utils.Logger, name, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 150 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("[main] %s server listening on %s", name, addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("[main] shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

func printStats(ctx context.Context, a *app) error {
	cars, err := a.store.FetchAll(ctx)
	if err != nil {
		return fmt.Errorf("fetch auctions for stats: %w", err)
	}
	a.insights.Print(os.Stdout, a.insights.Generate(cars))
	return nil
}

func printReport(r *models.ImportReport) {
	fmt.Printf("\n  Import %s from %s\n", r.RunID, r.Source)
	fmt.Printf("  received %d | skipped %d | duplicates %d | inserted %d | prices rescaled %d | %v\n",
		r.Received, r.Skipped, r.Duplicates, r.Inserted, r.PriceScaled, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
}

// describe prefixes an import failure with its toast title.
func describe(err error) error {
	var ie *services.ImportError
	if errors.As(err, &ie) {
		return fmt.Errorf("%s: %w", ie.Title(), err)
	}
	return err
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
