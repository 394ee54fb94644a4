package cmd

import (
	"context"
	"os/signal"
	"syscall"

	errors "github.com/Laisky/errors/v2"
	gcmd "github.com/Laisky/go-utils/v6/cmd"
	"github.com/Laisky/zap"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Laisky/laisky-mcp-gateway/library/config"
	"github.com/Laisky/laisky-mcp-gateway/library/log"
)

var apiCMD = &cobra.Command{
	Use:   "api",
	Short: "api",
	Long:  `serve the MCP tools over streamable HTTP`,
	Args:  gcmd.NoExtraArgs,
	PreRun: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		if err := initialize(ctx, cmd); err != nil {
			log.Logger.Panic("init", zap.Error(err))
		}
		if err := validateStartupConfig(); err != nil {
			log.Logger.Panic("validate startup configuration", zap.Error(err))
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		if err := runAPI(context.Background()); err != nil {
			log.Logger.Panic("run api", zap.Error(err))
		}
	},
}

// runAPI serves HTTP and runs the probe until SIGINT or SIGTERM.
func runAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	settings := config.Load()
	a, err := buildApp(ctx, settings, sharedRecipientResolver())
	if err != nil {
		return errors.Wrap(err, "build app")
	}
	defer func() {
		if err := a.closer(); err != nil {
			log.Logger.Warn("close resources", zap.Error(err))
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.web.Run(gctx, settings.Listen)
	})
	g.Go(func() error {
		return a.probe.Run(gctx)
	})

	return g.Wait()
}

func init() {
	rootCMD.AddCommand(apiCMD)
}
