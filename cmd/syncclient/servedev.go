package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teamspace-collab/sync-client/internal/devserver"
)

var serveAddr string

var serveDevCmd = &cobra.Command{
	Use:   "serve-dev",
	Short: "Run the loopback workspace server",
	Long: `serve-dev hosts a development workspace server on localhost so clients
can be exercised without the real backend. Not for production use.`,
	Run: runServeDev,
}

func init() {
	serveDevCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	rootCmd.AddCommand(serveDevCmd)
}

func runServeDev(cmd *cobra.Command, args []string) {
	srv := devserver.New()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		srv.Close()
		os.Exit(0)
	}()

	fmt.Printf("Dev workspace server listening on %s\n", serveAddr)
	if err := http.ListenAndServe(serveAddr, srv.Router()); err != nil {
		fatal("server failed", err)
	}
}
