// Package telegram sends outbound messages through the Telegram Bot API.
package telegram

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	errors "github.com/Laisky/errors/v2"
	gutils "github.com/Laisky/go-utils/v6"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	tb "gopkg.in/telebot.v3"

	"github.com/Laisky/laisky-mcp-gateway/library"
	"github.com/Laisky/laisky-mcp-gateway/library/log"
)

const defaultTimeout = 15 * time.Second

// chatRecipient addresses a chat by its raw id, which may be numeric
// or an @channel username.
type chatRecipient string

// Recipient implements tb.Recipient.
func (c chatRecipient) Recipient() string {
	return string(c)
}

// Option customizes a Client.
type Option func(*options)

type options struct {
	api        string
	httpClient *http.Client
	logger     logSDK.Logger
}

// WithAPI overrides the Bot API base url.
func WithAPI(api string) Option {
	return func(o *options) {
		o.api = strings.TrimSpace(api)
	}
}

// WithHTTPClient sets the HTTP client used to reach the Bot API.
func WithHTTPClient(cli *http.Client) Option {
	return func(o *options) {
		o.httpClient = cli
	}
}

// WithLogger sets the client logger.
func WithLogger(logger logSDK.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Client is a send-only Telegram bot.
type Client struct {
	bot    *tb.Bot
	token  string
	logger logSDK.Logger
}

// NewClient builds a bot for token. No request is made until the first send.
func NewClient(token string, opts ...Option) (*Client, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("telegram bot token is required")
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = log.Logger.Named("telegram")
	}
	if o.httpClient == nil {
		cli, err := gutils.NewHTTPClient(gutils.WithHTTPClientTimeout(defaultTimeout))
		if err != nil {
			return nil, errors.Wrap(err, "new telegram http client")
		}
		o.httpClient = cli
	}

	bot, err := tb.NewBot(tb.Settings{
		Token:   token,
		URL:     o.api,
		Client:  o.httpClient,
		Offline: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "new telegram bot")
	}

	o.logger.Info("telegram client ready",
		zap.String("token", library.MaskSecret(token)),
		zap.String("api", bot.URL))
	return &Client{bot: bot, token: token, logger: o.logger}, nil
}

// SendMessage posts text to chatID. Errors carry the Bot API description
// but never the request url, which embeds the bot token.
//
// telebot sends with its own background context, so a cancelled ctx
// returns early while the request runs out on the client timeout.
func (c *Client) SendMessage(ctx context.Context, chatID, text string) error {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return errors.New("chat id is required")
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "send telegram message")
	}

	type sendResult struct {
		msg *tb.Message
		err error
	}
	done := make(chan sendResult, 1)
	go func() {
		msg, err := c.bot.Send(chatRecipient(chatID), text, &tb.SendOptions{
			DisableWebPagePreview: true,
		})
		done <- sendResult{msg: msg, err: err}
	}()

	var res sendResult
	select {
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "send telegram message to chat %s", chatID)
	case res = <-done:
	}
	if res.err != nil {
		return errors.Wrapf(c.scrub(res.err), "send telegram message to chat %s", chatID)
	}

	c.logger.Debug("telegram message delivered",
		zap.String("chat_id", chatID),
		zap.Int("message_id", res.msg.ID))
	return nil
}

// scrub drops the request url from transport errors and masks any
// remaining occurrence of the bot token.
func (c *Client) scrub(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		err = errors.Errorf("telebot: %s bot api: %s", uerr.Op, uerr.Err)
	}
	if msg := err.Error(); strings.Contains(msg, c.token) {
		return errors.New(strings.ReplaceAll(msg, c.token, library.MaskSecret(c.token)))
	}
	return err
}
