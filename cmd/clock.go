package cmd

import (
	"context"
	"fmt"
	"time"

	gcmd "github.com/Laisky/go-utils/v6/cmd"
	"github.com/Laisky/zap"
	"github.com/spf13/cobra"

	"github.com/Laisky/laisky-mcp-gateway/internal/mcp/tools"
	"github.com/Laisky/laisky-mcp-gateway/library/extenso"
	"github.com/Laisky/laisky-mcp-gateway/library/log"
)

var clockCMD = &cobra.Command{
	Use:   "clock",
	Short: "print the current Brasília time",
	Long:  `print the plaintext preview served on GET /`,
	Args:  gcmd.NoExtraArgs,
	PreRun: func(cmd *cobra.Command, args []string) {
		if err := initialize(context.Background(), cmd); err != nil {
			log.Logger.Panic("init", zap.Error(err))
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		long, _ := cmd.Flags().GetBool("long")
		text, err := clockPreview(time.Now(), long)
		if err != nil {
			log.Logger.Panic("render clock", zap.Error(err))
		}
		fmt.Fprintln(cmd.OutOrStdout(), text)
	},
}

// clockPreview renders now; long appends the spelled-out date.
func clockPreview(now time.Time, long bool) (string, error) {
	c, err := tools.NewBrasiliaClock(func() time.Time { return now })
	if err != nil {
		return "", err
	}
	out, err := c.Now()
	if err != nil {
		return "", err
	}
	if !long {
		return out.Preview(), nil
	}

	loc, err := time.LoadLocation(tools.BrasiliaTimeZone)
	if err != nil {
		return "", err
	}
	local := now.In(loc)
	return fmt.Sprintf("%s\nData: %02d/%02d/%d (%s).",
		out.Preview(), local.Day(), int(local.Month()), local.Year(), extenso.Year(local.Year())), nil
}

func init() {
	clockCMD.Flags().Bool("long", false, "also print the date with the year spelled out")
	rootCMD.AddCommand(clockCMD)
}
