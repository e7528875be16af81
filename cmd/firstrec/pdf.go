package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matsen/firstrecord/internal/document"
	"github.com/matsen/firstrecord/internal/intake"
)

var fetchName string

var uploadCmd = &cobra.Command{
	Use:   "upload <file.pdf>",
	Short: "Store a local PDF for analysis",
	Long: `Validate a local PDF (extension, size, signature), copy it under the
storage root with a sanitized name, and create a pending analysis record.`,
	Args: cobra.ExactArgs(1),
	Run:  runUpload,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Download a remote PDF for analysis",
	Long: `Download a PDF (typically a collected item's pdfUrl) and store it exactly
like an upload.

Examples:
  firstrec fetch https://www.biodiversitylibrary.org/itempdf/12345 --name "Bloch 1787"`,
	Args: cobra.ExactArgs(1),
	Run:  runFetch,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored PDFs with their analysis status",
	Args:  cobra.NoArgs,
	Run:   runList,
}

func init() {
	fetchCmd.Flags().StringVar(&fetchName, "name", "", "File name to store under (default from URL)")
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(listCmd)
}

func printAssetHuman(asset *document.Asset) {
	outputHuman("Stored %s (%d bytes)\n", asset.ID, asset.SizeBytes)
	outputHuman("  original: %s\n", asset.OriginalFileName)
}

func runUpload(cmd *cobra.Command, args []string) {
	f, err := os.Open(args[0])
	if err != nil {
		exitWithError(ExitValidation, "opening %s: %v", args[0], err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		exitWithError(ExitError, "reading %s: %v", args[0], err)
	}

	ctx := context.Background()
	a := mustApp(ctx)
	defer a.Close()

	asset, err := a.Upload(ctx, intake.Upload{
		FileName: filepath.Base(args[0]),
		Size:     info.Size(),
		Body:     f,
	})
	if err != nil {
		a.Close()
		exitWithErr(err)
	}
	emit(asset, func() { printAssetHuman(asset) })
}

func runFetch(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	a := mustApp(ctx)
	defer a.Close()

	asset, err := a.Fetch(ctx, args[0], fetchName)
	if err != nil {
		a.Close()
		exitWithErr(err)
	}
	emit(asset, func() { printAssetHuman(asset) })
}

func runList(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	a := mustApp(ctx)
	defer a.Close()

	assets, err := a.Store.ListAssets(ctx)
	if err != nil {
		a.Close()
		exitWithErr(err)
	}
	emit(assets, func() {
		if len(assets) == 0 {
			fmt.Println("No PDFs stored")
			return
		}
		for _, as := range assets {
			outputHuman("%-10s %s  %s\n", as.Status, as.ID, truncateString(as.OriginalFileName, ItemTitleMaxLen))
		}
	})
}
