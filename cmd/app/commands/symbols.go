package commands

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"FMPull/internal/di"
	"FMPull/internal/service/fmp"
	"FMPull/internal/usecase"
	"FMPull/pkg/logger"
)

var symbolsCmd = &cobra.Command{
	Use:   "symbols",
	Short: "List tickers from an index, the stock screener or a random draw",
	Long: `Symbols prints tickers without fetching any series. Exactly one source is used.

Example:
  fmpull symbols --index sp500
  fmpull symbols --limit 50 --filter sector=Technology,exchange=nasdaq
  fmpull symbols --random 10 --seed 45
  fmpull symbols --per-sector`,
	RunE: runSymbols,
}

var (
	symbolsPick        symbolPick
	symbolsPerSector   bool
	symbolsWithMembers bool
	symbolsWorkers     int
	symbolsJSON        bool
)

func init() {
	rootCmd.AddCommand(symbolsCmd)

	symbolsPick.bind(symbolsCmd, "limit")
	symbolsCmd.Flags().BoolVar(&symbolsPerSector, "per-sector", false, "count screener symbols per sector")
	symbolsCmd.Flags().BoolVar(&symbolsWithMembers, "with-symbols", false, "with --per-sector, list the members too")
	symbolsCmd.Flags().IntVar(&symbolsWorkers, "workers", 4, "concurrent screener queries for --per-sector")
	symbolsCmd.Flags().BoolVar(&symbolsJSON, "json", false, "print JSON")
}

// symbolPick is how a command chooses tickers when none are named.
type symbolPick struct {
	index   string
	filters map[string]string
	limit   int
	random  int
	seed    uint64
}

func (p *symbolPick) bind(cmd *cobra.Command, limitFlag string) {
	cmd.Flags().StringVar(&p.index, "index", "", "market index or exchange: "+strings.Join(fmp.MarketIndices(), "|"))
	cmd.Flags().IntVar(&p.limit, limitFlag, 0, "take this many symbols from the stock screener")
	cmd.Flags().StringToStringVar(&p.filters, "filter", nil, "screener filters, e.g. sector=Energy,marketCapMoreThan=1000000000")
	cmd.Flags().IntVar(&p.random, "random", 0, "draw this many random symbols with financial statements")
	cmd.Flags().Uint64Var(&p.seed, "seed", 0, "seed for --random (0 draws differently every run)")
}

func (p symbolPick) empty() bool { return p.index == "" && p.limit == 0 && p.random == 0 }

// validate rejects flag combinations before anything is wired.
func (p symbolPick) validate() error {
	sources := 0
	for _, set := range []bool{p.index != "", p.limit > 0, p.random > 0} {
		if set {
			sources++
		}
	}
	if sources > 1 {
		return errors.New("choose only one of --index, the screener limit and --random")
	}
	if p.index != "" && !slices.Contains(fmp.MarketIndices(), strings.ToLower(p.index)) {
		return fmt.Errorf("%w: %q", fmp.ErrUnknownIndex, p.index)
	}
	if len(p.filters) > 0 {
		if p.limit <= 0 {
			return errors.New("--filter needs a screener limit")
		}
		return fmp.ScreenerQuery{Limit: p.limit, Filters: p.filters}.Validate()
	}
	return nil
}

func (p symbolPick) pick(ctx context.Context, src *usecase.SymbolSource) ([]string, string, error) {
	switch {
	case p.index != "":
		symbols, err := src.Index(ctx, p.index)
		return symbols, "index", err
	case p.random > 0:
		var rng *rand.Rand
		if p.seed != 0 {
			rng = rand.New(rand.NewPCG(p.seed, p.seed))
		}
		symbols, err := src.Random(ctx, p.random, rng)
		return symbols, "random", err
	default:
		symbols, err := src.Screen(ctx, fmp.ScreenerQuery{Limit: p.limit, Filters: p.filters})
		return symbols, "screener", err
	}
}

func runSymbols(cmd *cobra.Command, _ []string) error {
	if err := symbolsPick.validate(); err != nil {
		return err
	}
	if symbolsPerSector == !symbolsPick.empty() {
		return errors.New("choose one of --index, --limit, --random and --per-sector")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rt, cleanup, err := di.InitializeRuntime(cfg)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if symbolsPerSector {
		sectors, err := rt.Symbols.PerSector(ctx, symbolsWorkers, symbolsWithMembers)
		if err != nil {
			return err
		}
		if symbolsJSON {
			return printJSON(cmd, sectors, nil)
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SECTOR\tSYMBOLS")
		for _, s := range sectors {
			fmt.Fprintf(w, "%s\t%d\n", s.Sector, s.Count)
		}
		return w.Flush()
	}

	symbols, source, err := symbolsPick.pick(ctx, rt.Symbols)
	if err != nil {
		return err
	}
	rt.Logger.Info("symbols listed", logger.String("source", source), logger.Int("count", len(symbols)))
	if symbolsJSON {
		return printJSON(cmd, symbols, nil)
	}
	for _, s := range symbols {
		fmt.Fprintln(cmd.OutOrStdout(), s)
	}
	return nil
}
