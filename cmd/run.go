package cmd

import (
	"fmt"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/michaelpento.lv/flasharb/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version is set at build time with -ldflags "-X github.com/michaelpento.lv/flasharb/cmd.Version=..."
var Version = "dev"

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll every configured pair until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		app, err := newApp(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer app.Close()

		go func() {
			<-ctx.Done()
			log.Info("Shutting down gracefully...")
		}()

		return app.bot.Run(ctx)
	},
}

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single polling cycle and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		app, err := newApp(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer app.Close()

		report, err := app.bot.RunCycle(cmd.Context())
		if err != nil {
			return err
		}

		for _, r := range report.Ready {
			log.Info("Candidate",
				zap.String("pair", r.Pair),
				zap.String("buy", r.Candidate.Opportunity.Buy.Venue),
				zap.String("sell", r.Candidate.Opportunity.Sell.Venue),
				zap.String("amount", r.Params.Amount.String()),
				zap.Stringer("premium", r.Premium),
				zap.String("min_profit", r.Params.MinProfit.String()),
				zap.String("net_usd", r.Candidate.Analysis.NetProfitAfterGas.StringFixed(2)))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "block %d: %d quotes, %d candidates, %d viable, %d ready\n",
			report.Block, report.Quotes, report.Candidates, report.Viable, len(report.Ready))

		if app.journal == nil {
			return nil
		}
		counts, err := app.journal.CountByVerdict(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "journal:", formatCounts(counts))
		return nil
	},
}

var journalLimit int

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "List the most recently evaluated candidates",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if cfg.Journal.Path == "" {
			return fmt.Errorf("journal.path is not configured")
		}

		journal, err := storage.OpenJournal(cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer journal.Close()

		entries, err := journal.Recent(cmd.Context(), journalLimit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, e := range entries {
			fmt.Fprintln(out, formatEntry(e))
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "flasharb", Version)
	},
}

func init() {
	journalCmd.Flags().IntVar(&journalLimit, "limit", 20, "number of entries to show")
	rootCmd.AddCommand(runCmd, onceCmd, journalCmd, versionCmd)
}

// formatCounts renders verdict counts in a stable order
func formatCounts(counts map[string]int) string {
	verdicts := make([]string, 0, len(counts))
	for v := range counts {
		verdicts = append(verdicts, v)
	}
	sort.Strings(verdicts)

	parts := make([]string, len(verdicts))
	for i, v := range verdicts {
		parts[i] = fmt.Sprintf("%s=%d", v, counts[v])
	}
	return strings.Join(parts, " ")
}

func formatEntry(e storage.Entry) string {
	minProfit := "-"
	if e.MinProfit != nil {
		minProfit = e.MinProfit.String()
	}
	return fmt.Sprintf("%s %s/%d -> %s/%d gross=%s%% amount=%s net_usd=%s min_profit=%s %s",
		e.RecordedAt.UTC().Format("2006-01-02T15:04:05Z"),
		e.BuyVenue, e.BuyFee, e.SellVenue, e.SellFee,
		e.GrossPercent.StringFixed(4), e.BorrowAmount, e.NetUSD.StringFixed(2), minProfit, e.Verdict)
}
