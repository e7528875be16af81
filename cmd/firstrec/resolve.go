package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <species>",
	Short: "Resolve a scientific name and its synonyms in WoRMS",
	Args:  cobra.ExactArgs(1),
	Run:   runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	a := mustApp(ctx)
	defer a.Close()

	res, err := a.Resolver.Resolve(ctx, args[0])
	if err != nil {
		a.Close()
		exitWithErr(err)
	}

	emit(res, func() {
		if !res.Success {
			outputHuman("%s: not resolved (%s)\n", res.InputName, res.Error)
			return
		}
		outputHuman("%s %s [AphiaID %d]\n", res.AcceptedName, res.Authority, res.RegistryID)
		if len(res.Synonyms) > 0 {
			outputHuman("synonyms: %s\n", strings.Join(res.Synonyms, "; "))
		}
	})
}
