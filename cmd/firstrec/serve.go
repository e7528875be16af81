package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/matsen/firstrecord/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API. Quota state is held for the server's lifetime.

Routes:
  POST /api/literature/collect        GET /api/literature/collections/:id
  GET  /api/taxa/resolve?name=        POST /api/pdfs (multipart "file")
  POST /api/pdfs/fetch                GET  /api/pdfs
  POST /api/pdfs/:id/analyze          GET  /api/pdfs/:id/analysis
  POST /api/analysis/batch            GET  /api/quota
  POST /api/quota/reset?provider=     GET  /healthz, /metrics`,
	Args: cobra.NoArgs,
	Run:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config server.addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := mustApp(ctx)
	defer a.Close()

	addr := serveAddr
	if addr == "" {
		addr = a.Config.Server.Addr
	}
	if err := server.New(a).Run(ctx, addr); err != nil {
		a.Close()
		exitWithError(ExitError, "server: %v", err)
	}
}
