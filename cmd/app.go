package cmd

import (
	"context"
	"os"

	errors "github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Laisky/laisky-mcp-gateway/internal/mcp"
	"github.com/Laisky/laisky-mcp-gateway/internal/mcp/auth"
	"github.com/Laisky/laisky-mcp-gateway/internal/mcp/calllog"
	"github.com/Laisky/laisky-mcp-gateway/internal/mcp/registry"
	"github.com/Laisky/laisky-mcp-gateway/internal/mcp/tools"
	"github.com/Laisky/laisky-mcp-gateway/internal/probe"
	"github.com/Laisky/laisky-mcp-gateway/internal/web"
	"github.com/Laisky/laisky-mcp-gateway/library/config"
	"github.com/Laisky/laisky-mcp-gateway/library/db/redis"
	"github.com/Laisky/laisky-mcp-gateway/library/log"
	"github.com/Laisky/laisky-mcp-gateway/library/telegram"
)

const instructions = "Use hora_atual_brasilia for the current time in Brasília and " +
	"send_telegram_message or send_message_to_<name> to notify people on Telegram. " +
	"Every tool requires the id_integracao argument."

// app holds the long-running components of the api command.
type app struct {
	web    *web.Server
	probe  *probe.Service
	closer func() error
}

// buildApp wires every component from settings. resolve binds recipient
// names to chat ids at call time.
func buildApp(ctx context.Context, settings config.Settings, resolve tools.RecipientResolver) (*app, error) {
	logger := log.Logger

	mode, err := auth.ParseMode(settings.Auth.Mode)
	if err != nil {
		return nil, errors.Wrap(err, "parse auth mode")
	}
	resourceMetadataURL := ""
	if settings.PublicURL != "" {
		resourceMetadataURL = settings.PublicURL + web.ResourceMetadataPath
	}
	gate, err := auth.NewGate(ctx, auth.GateConfig{
		Mode:        mode,
		BearerToken: settings.Auth.BearerToken,
		JWT: auth.JWTConfig{
			IssuerURL:           settings.Auth.IssuerURL,
			Audience:            settings.Auth.Audience,
			JWKSURL:             settings.Auth.JWKSURL,
			ResourceMetadataURL: resourceMetadataURL,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "new transport gate")
	}

	validator, err := auth.NewTokenValidator(settings.APIToken)
	if err != nil {
		return nil, errors.Wrap(err, "new token validator")
	}

	tg, err := telegram.NewClient(settings.Telegram.Token,
		telegram.WithAPI(settings.Telegram.API),
		telegram.WithLogger(logger.Named("telegram")))
	if err != nil {
		return nil, errors.Wrap(err, "new telegram client")
	}

	recorders := []calllog.Recorder{calllog.NewLogRecorder(logger.Named("calllog"), nil)}
	var lister calllog.Lister
	closer := func() error { return nil }
	if settings.CallLog.RedisAddr != "" {
		db, err := redis.NewDB(ctx, &goredis.Options{
			Addr: settings.CallLog.RedisAddr,
			DB:   settings.CallLog.RedisDB,
		})
		if err != nil {
			return nil, errors.Wrap(err, "connect call log redis")
		}
		rr, err := calllog.NewRedisRecorder(db, settings.CallLog.RedisKey,
			settings.CallLog.MaxEntries, logger.Named("calllog_redis"), nil)
		if err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, "new redis call log")
		}
		recorders = append(recorders, rr)
		lister = rr
		closer = db.Close
		logger.Info("call log redis sink enabled",
			zap.String("addr", settings.CallLog.RedisAddr),
			zap.String("key", settings.CallLog.RedisKey))
	}

	clock, err := tools.NewBrasiliaClock(nil)
	if err != nil {
		return nil, errors.Wrap(err, "new clock")
	}
	toolset, err := buildTools(clock, validator, tg, settings.Telegram.Recipients, resolve)
	if err != nil {
		return nil, err
	}

	reg := registry.New(
		registry.WithLogger(logger.Named("registry")),
		registry.WithRecorder(calllog.NewMultiRecorder(recorders...)),
		registry.WithCredentialField(tools.CredentialField),
	)
	if err := tools.RegisterAll(reg, toolset...); err != nil {
		return nil, errors.Wrap(err, "register tools")
	}

	mcpServer, err := mcp.NewServer(reg, logger,
		mcp.WithVersion(Version),
		mcp.WithInstructions(instructions))
	if err != nil {
		return nil, errors.Wrap(err, "new mcp server")
	}

	preview := func() (string, error) {
		out, err := clock.Now()
		if err != nil {
			return "", err
		}
		return out.Preview(), nil
	}

	probeSvc, err := probe.NewService(probe.Config{
		Interval: settings.Probe.Interval,
		URL:      settings.Probe.URL,
	}, preview, logger.Named("probe"))
	if err != nil {
		return nil, errors.Wrap(err, "new probe")
	}

	webSrv, err := web.NewServer(web.Config{
		MCP:            mcpServer.Handler(),
		Gate:           gate,
		Preview:        preview,
		CallLog:        calllog.NewHTTPHandler(lister, logger.Named("calllog_http")),
		Probe:          probeSvc,
		PublicURL:      settings.PublicURL,
		Issuer:         settings.Auth.IssuerURL,
		AllowedOrigins: settings.AllowedOrigins,
		Logger:         logger.Named("web"),
	})
	if err != nil {
		return nil, errors.Wrap(err, "new web server")
	}

	return &app{web: webSrv, probe: probeSvc, closer: closer}, nil
}

// buildTools constructs the clock, the generic sender and one tool per recipient.
func buildTools(clock *tools.BrasiliaClock,
	validator tools.CredentialValidator,
	sender tools.MessageSender,
	recipients []string,
	resolve tools.RecipientResolver,
) ([]tools.Tool, error) {
	logger := log.Logger.Named("tools")

	clockTool, err := tools.NewClockTool(clock, validator)
	if err != nil {
		return nil, errors.Wrap(err, "new clock tool")
	}
	sendTool, err := tools.NewSendTelegramMessageTool(sender, validator, logger)
	if err != nil {
		return nil, errors.Wrap(err, "new send telegram tool")
	}

	all := []tools.Tool{clockTool, sendTool}
	for _, name := range recipients {
		rt, err := tools.NewRecipientTool(name, resolve, sender, validator, logger)
		if err != nil {
			return nil, errors.Wrapf(err, "new recipient tool %q", name)
		}
		all = append(all, rt)
	}

	return all, nil
}

// sharedRecipientResolver reads recipient bindings from config then CHAT_ID_* env.
func sharedRecipientResolver() tools.RecipientResolver {
	return config.RecipientResolver(config.SharedGetter, os.LookupEnv)
}
