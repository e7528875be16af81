package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matsen/firstrecord/internal/app"
)

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Show free-tier LLM quota status",
	Long: `Show free-tier LLM quota status.

Quota state lives in memory, so a CLI invocation only sees its own usage;
use the server's /api/quota for the long-running count.`,
	Args: cobra.NoArgs,
	Run:  runQuota,
}

var quotaResetCmd = &cobra.Command{
	Use:   "reset [provider]",
	Short: "Reset a provider's quota counter (not available in production)",
	Args:  cobra.MaximumNArgs(1),
	Run:   runQuotaReset,
}

func init() {
	quotaCmd.AddCommand(quotaResetCmd)
	rootCmd.AddCommand(quotaCmd)
}

func runQuota(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	reg, err := app.Quotas(cfg)
	if err != nil {
		exitWithErr(err)
	}
	statuses := reg.Statuses()
	emit(statuses, func() {
		if len(statuses) == 0 {
			fmt.Println("No metered providers configured")
			return
		}
		for _, st := range statuses {
			fmt.Print(formatQuotaHuman(st))
		}
	})
}

func runQuotaReset(cmd *cobra.Command, args []string) {
	provider := "gemini"
	if len(args) == 1 {
		provider = args[0]
	}
	cfg := loadConfig()
	reg, err := app.Quotas(cfg)
	if err != nil {
		exitWithErr(err)
	}
	st, err := reg.Reset(provider)
	if err != nil {
		exitWithErr(err)
	}
	emit(st, func() { fmt.Print(formatQuotaHuman(st)) })
}
