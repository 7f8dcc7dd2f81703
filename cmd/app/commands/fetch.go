package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"FMPull/internal/di"
	"FMPull/internal/domain/models"
	"FMPull/internal/usecase"
	"FMPull/pkg/logger"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download series for a set of symbols",
	Long: `Fetch submits one job per requested series and symbol (or per indicator for
composite series), collects every outcome and prints the dataset summary as
JSON. Symbols missing a mandatory series are dropped from the result.

Example:
  fmpull fetch --symbols AAPL,MSFT --series Income,"Key metrics"
  fmpull fetch --symbols AAPL --start none --period annually
  fmpull fetch --screener 100 --strategy queue_async
  fmpull fetch --index dj --prices-only`,
	RunE: runFetch,
}

var (
	fetchSymbols    []string
	fetchSeries     []string
	fetchStart      string
	fetchEnd        string
	fetchPeriod     string
	fetchPricesOnly bool
	fetchStrategy   string
	fetchPick       symbolPick
)

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringSliceVar(&fetchSymbols, "symbols", nil, "ticker symbols")
	fetchCmd.Flags().StringSliceVar(&fetchSeries, "series", nil, "series names (default selection when empty)")
	fetchCmd.Flags().StringVar(&fetchStart, "start", "", `start date YYYY-MM-DD, or "none" to send no lower bound (FMP keeps five years of prices then)`)
	fetchCmd.Flags().StringVar(&fetchEnd, "end", "", "end date YYYY-MM-DD (default today)")
	fetchCmd.Flags().StringVar(&fetchPeriod, "period", "", "auto|quarterly|annually (default fetch.period)")
	fetchCmd.Flags().BoolVar(&fetchPricesOnly, "prices-only", false, "fetch daily prices only")
	fetchCmd.Flags().StringVar(&fetchStrategy, "strategy", "", "override fetch.strategy (direct|queue_blocking|queue_async)")
	fetchPick.bind(fetchCmd, "screener")
}

func runFetch(cmd *cobra.Command, _ []string) error {
	if err := fetchPick.validate(); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if fetchStrategy != "" {
		cfg.Fetch.Strategy = fetchStrategy
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("validate config: %w", err)
		}
	}

	rt, cleanup, err := di.InitializeRuntime(cfg)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	req := usecase.FetchRequest{
		Symbols:    fetchSymbols,
		Series:     fetchSeries,
		Start:      fetchStart,
		End:        fetchEnd,
		Period:     fetchPeriod,
		PricesOnly: fetchPricesOnly,
	}
	if req.Period == "" {
		req.Period = cfg.Fetch.Period
	}
	if len(req.Symbols) == 0 && !fetchPick.empty() {
		var source string
		if req.Symbols, source, err = fetchPick.pick(ctx, rt.Symbols); err != nil {
			return err
		}
		rt.Logger.Info("symbols picked", logger.String("source", source), logger.Int("count", len(req.Symbols)))
	}

	rt.Logger.Info("fetch started",
		logger.String("strategy", rt.Strategy.Name()),
		logger.Int("symbols", len(req.Symbols)),
		logger.Strings("series", req.Series))

	ds, err := rt.Pipeline.Run(ctx, req)
	if ds == nil {
		return err
	}
	if err != nil {
		rt.Logger.Error("dataset publish failed", logger.Error(err))
	}
	return printJSON(cmd, models.NewFetchHTTPResponse(ds), err)
}

// printJSON writes v and passes through a trailing error so the exit code
// still reflects a failed publish.
func printJSON(cmd *cobra.Command, v any, trailing error) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return errors.Join(fmt.Errorf("encode output: %w", err), trailing)
	}
	return trailing
}
