package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/chatload/internal/logging"
	"github.com/wesleyorama2/chatload/internal/mockserver"
)

func newMockCmd() *cobra.Command {
	var (
		listen    string
		secret    string
		logLevel  string
		logFormat string
	)

	cmd := &cobra.Command{
		Use:   "mock",
		Short: "Serve an in-memory chat API to run against",
		Long: `Serve the chat API endpoints chatload exercises (health, register, login,
messages and the websocket auth handshake) from memory.

  chatload mock --listen :8080
  chatload run --host http://localhost:8080 --users 10 --run-time 30s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.NewWithWriter(cmd.ErrOrStderr(), logLevel, logFormat)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := mockserver.New(mockserver.Options{
				Secret: []byte(secret),
				Logger: logger,
			})
			return mockserver.ListenAndServe(ctx, listen, srv, logger)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&listen, "listen", "l", ":8080", "Address to listen on")
	flags.StringVar(&secret, "secret", "", "HMAC secret for issued tokens (empty uses a built-in secret)")
	flags.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	flags.StringVar(&logFormat, "log-format", "console", "Log format: console or json")

	return cmd
}
