package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/matsen/firstrecord/internal/analysis"
	"github.com/matsen/firstrecord/internal/llm"
)

var (
	analyzeProvider         string
	analyzeModel            string
	analyzeSpecies          string
	analyzeSynonyms         []string
	analyzeForceExtract     bool
	analyzeFallbackProvider string
	analyzeFallbackModel    string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <pdf-id>",
	Short: "Extract a stored PDF and judge whether it records the species from Korea",
	Long: `Run extraction and LLM judgment for one stored PDF.

Free-tier models count against the daily quota; once it is exhausted the
command fails with exit code 5 without calling the provider.

Examples:
  firstrec analyze 1714564800000_Kim_2004 --species "Fistularia petimba"
  firstrec analyze 1714564800000_Kim_2004 --species "Fistularia petimba" --provider ollama --force-extract`,
	Args: cobra.ExactArgs(1),
	Run:  runAnalyze,
}

var analyzeAllCmd = &cobra.Command{
	Use:   "analyze-all",
	Short: "Analyze every pending PDF, one at a time",
	Long: `Analyze every pending PDF sequentially. A failure on one document does not
stop the batch. When the primary model's free-tier quota runs out, the rest
go to --fallback-provider if given (it must not be metered) and are
otherwise left pending. Interrupting skips the documents not yet started.`,
	Args: cobra.NoArgs,
	Run:  runAnalyzeAll,
}

func addAnalysisFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&analyzeProvider, "provider", "", "LLM provider: gemini, ollama, or claude (default from config)")
	cmd.Flags().StringVar(&analyzeModel, "model", "", "Model name (default from config or provider)")
	cmd.Flags().StringVar(&analyzeSpecies, "species", "", "Accepted species name (required)")
	cmd.Flags().StringSliceVar(&analyzeSynonyms, "synonym", nil, "Synonym to mention in the prompt (repeatable)")
	cmd.Flags().BoolVar(&analyzeForceExtract, "force-extract", false, "Re-run extraction even if a result is stored")
	cmd.MarkFlagRequired("species")
}

func init() {
	addAnalysisFlags(analyzeCmd)
	addAnalysisFlags(analyzeAllCmd)
	analyzeAllCmd.Flags().StringVar(&analyzeFallbackProvider, "fallback-provider", "", "Unmetered provider to use once the quota is exhausted")
	analyzeAllCmd.Flags().StringVar(&analyzeFallbackModel, "fallback-model", "", "Model for the fallback provider")
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(analyzeAllCmd)
}

// analysisRequest builds the request from flags, filling provider and model
// from configuration when unset.
func analysisRequest(defaultProvider llm.ProviderID, defaultModel string) analysis.Request {
	req := analysis.Request{
		Provider:     llm.ProviderID(analyzeProvider),
		Model:        analyzeModel,
		Species:      analyzeSpecies,
		Synonyms:     analyzeSynonyms,
		ForceExtract: analyzeForceExtract,
	}
	if req.Provider == "" {
		req.Provider = defaultProvider
		if req.Model == "" {
			req.Model = defaultModel
		}
	}
	return req
}

func runAnalyze(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	a := mustApp(ctx)
	defer a.Close()

	req := analysisRequest(a.Config.LLM.Provider, a.Config.LLM.Model)
	rec, err := a.Analysis.TriggerAnalysis(ctx, args[0], req)
	if err != nil {
		a.Close()
		exitWithErr(err)
	}
	emit(rec, func() { printRecordHuman(rec) })
}

func runAnalyzeAll(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a := mustApp(ctx)
	defer a.Close()

	summary, err := a.Analysis.AnalyzeAll(ctx, analysis.BatchRequest{
		Request:          analysisRequest(a.Config.LLM.Provider, a.Config.LLM.Model),
		FallbackProvider: llm.ProviderID(analyzeFallbackProvider),
		FallbackModel:    analyzeFallbackModel,
	})
	if err != nil {
		a.Close()
		exitWithErr(err)
	}
	emit(summary, func() { printBatchHuman(summary) })
}
