package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/saker-ai/speech-uplink/pkg/runtime"
)

const shutdownTimeout = 5 * time.Second

// NewRootCmd builds the speech-uplink command. Without a subcommand it serves.
func NewRootCmd(version string) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "speech-uplink",
		Short:         "Capture audio over websocket, chunk it and forward it to a speech service",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to conf.yaml (default: search upward from the working directory)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the capture service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	root.AddCommand(serve)
	root.AddCommand(ReplayCmd())
	return root
}

func runServe(ctx context.Context, configPath string) error {
	server, err := runtime.New(configPath)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return <-errCh
}
