package cmd

import (
	"context"

	"github.com/michaelpento.lv/flasharb/config"
	"github.com/michaelpento.lv/flasharb/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile string
	envFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "flasharb",
	Short: "A flashloan arbitrage bot for concentrated-liquidity DEXes",
	Long: `flasharb polls Uniswap V3 style pools for price divergences between venues,
sizes and costs each opportunity and builds the flashloan-funded two-leg
arbitrage call for the on-chain executor.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		utils.InitLogger(debug)
		if err := config.LoadEnv(envFile); err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		utils.CleanupLogger()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file, YAML or JSON (default: built-in mainnet setup)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with FLASHARB_* overrides")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	log := utils.GetLogger()
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, log, err
	}
	return cfg, log, nil
}
