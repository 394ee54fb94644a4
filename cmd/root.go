// Package cmd command line
package cmd

import (
	"context"
	"fmt"

	errors "github.com/Laisky/errors/v2"
	gconfig "github.com/Laisky/go-config/v2"
	gcmd "github.com/Laisky/go-utils/v6/cmd"
	glog "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/spf13/cobra"

	"github.com/Laisky/laisky-mcp-gateway/library/config"
	"github.com/Laisky/laisky-mcp-gateway/library/log"
)

// Version is stamped at build time with -ldflags.
var Version = "1.0.0"

var rootCMD = &cobra.Command{
	Use:   "laisky-mcp-gateway",
	Short: "laisky-mcp-gateway",
	Long:  `MCP tool gateway: Brasília clock and Telegram notifications over streamable HTTP`,
	Args:  gcmd.NoExtraArgs,
}

// initialize loads flags, dotenv, the config file and environment overrides,
// then adjusts the logger.
func initialize(ctx context.Context, cmd *cobra.Command) error {
	if err := gconfig.Shared.BindPFlags(cmd.Flags()); err != nil {
		return errors.Wrap(err, "bind pflags")
	}

	setupSettings(ctx)
	setupLogger(ctx)

	return nil
}

func setupSettings(ctx context.Context) {
	// mode
	if gconfig.Shared.GetBool("debug") {
		fmt.Println("run in debug mode")
		gconfig.Shared.Set("log-level", "debug")
	} else { // prod mode
		fmt.Println("run in prod mode")
	}

	// .env first, so the file and real environment can both see it
	config.LoadDotEnv(gconfig.Shared.GetStringSlice("env-file")...)

	cfgPath := gconfig.Shared.GetString("config")
	config.LoadFromFile(cfgPath)
	config.ApplyEnv()
}

func setupLogger(ctx context.Context) {
	lvl := gconfig.Shared.GetString("log-level")
	if err := log.Logger.ChangeLevel(glog.Level(lvl)); err != nil {
		log.Logger.Panic("change log level", zap.Error(err), zap.String("level", lvl))
	}
}

func init() {
	rootCMD.PersistentFlags().Bool("debug", false, "run in debug mode")
	rootCMD.PersistentFlags().String("listen", "localhost:3000", "like `localhost:3000`, overridden by PORT")
	rootCMD.PersistentFlags().StringP("config", "c", "", "optional config file path")
	rootCMD.PersistentFlags().StringSlice("env-file", []string{".env"}, "dotenv files to load")
	rootCMD.PersistentFlags().String("log-level", "info", "`debug/info/error`")
}

// Execute execute root command
func Execute() {
	if err := rootCMD.Execute(); err != nil {
		glog.Shared.Panic("start", zap.Error(err))
	}
}
