package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/loomchat/loom/internal/server"
	"github.com/spf13/cobra"
)

var (
	servePort int
	serveHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the loom web UI",
	Long:  `Start a web server serving the chat UI, session history, and an SSE event stream.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "port to listen on")
	serveCmd.Flags().StringVar(&serveHost, "host", "localhost", "host to bind to")
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	if rt.cfg.Server.Port != 0 && !cmd.Flags().Changed("port") {
		servePort = rt.cfg.Server.Port
	}
	if rt.cfg.Server.Host != "" && !cmd.Flags().Changed("host") {
		serveHost = rt.cfg.Server.Host
	}

	srv := server.New(rt.cfg, rt.mem, rt.prov, rt.ollama, rt.images, rt.bus, rt.metrics, rt.logger)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	addr := fmt.Sprintf("%s:%d", serveHost, servePort)
	return srv.Start(ctx, addr)
}
