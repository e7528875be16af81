package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matsen/firstrecord/internal/app"
	"github.com/matsen/firstrecord/internal/literature"
)

var (
	collectSynonyms []string
	collectYear     string
	collectStrategy string
	collectLimit    int
	collectSources  []string
	collectResolve  bool
)

var collectCmd = &cobra.Command{
	Use:   "collect <species>",
	Short: "Search every relevant source for a species",
	Long: `Search literature, patent, and report sources for a species and its
synonyms, then merge, deduplicate, and rank the results.

Examples:
  firstrec collect "Fistularia petimba" --synonym "Fistularia serrata"
  firstrec collect "Fistularia petimba" --strategy korea --limit 20
  firstrec collect "Fistularia petimba" --resolve-synonyms --year 1800:1950 --human`,
	Args: cobra.ExactArgs(1),
	Run:  runCollect,
}

func init() {
	collectCmd.Flags().StringSliceVar(&collectSynonyms, "synonym", nil, "Synonym to search as well (repeatable)")
	collectCmd.Flags().StringVar(&collectYear, "year", "", "Publication year range (e.g., 1800:1950)")
	collectCmd.Flags().StringVar(&collectStrategy, "strategy", string(literature.StrategyBoth), "Search strategy: historical, korea, or both")
	collectCmd.Flags().IntVar(&collectLimit, "limit", 50, "Maximum number of results (1-100)")
	collectCmd.Flags().StringSliceVar(&collectSources, "source", nil, "Restrict to these sources (repeatable)")
	collectCmd.Flags().BoolVar(&collectResolve, "resolve-synonyms", false, "Add synonyms from WoRMS before searching")
	rootCmd.AddCommand(collectCmd)
}

func runCollect(cmd *cobra.Command, args []string) {
	from, to, err := parseYearRange(collectYear)
	if err != nil {
		exitWithError(ExitValidation, "%v", err)
	}
	var sources []literature.SourceID
	for _, s := range collectSources {
		sources = append(sources, literature.SourceID(s))
	}

	ctx := context.Background()
	a := mustApp(ctx)
	defer a.Close()

	res, err := a.Collect(ctx, app.CollectRequest{
		Query: literature.Query{
			PrimaryName:    args[0],
			SynonymNames:   collectSynonyms,
			YearFrom:       from,
			YearTo:         to,
			Strategy:       literature.Strategy(collectStrategy),
			MaxResults:     collectLimit,
			EnabledSources: sources,
		},
		ResolveSynonyms: collectResolve,
	})
	if err != nil {
		a.Close()
		exitWithErr(err)
	}

	emit(res, func() {
		if len(res.Items) == 0 {
			fmt.Println("No literature found")
			return
		}
		printCollectionHuman(res)
	})
}
