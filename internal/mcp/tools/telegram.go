package tools

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Laisky/laisky-mcp-gateway/internal/mcp/toolerr"
)

const (
	// SendTelegramToolName is the registered name of the generic messaging tool.
	SendTelegramToolName = "send_telegram_message"
	// RecipientToolPrefix prefixes the per-recipient messaging tools.
	RecipientToolPrefix = "send_message_to_"
	// SentMessage is returned after a successful delivery.
	SentMessage = "mensagem enviada com sucesso"
)

var recipientNameRe = regexp.MustCompile(`^[a-z0-9_]+$`)

// SendOutput is the structured result of the messaging tools.
type SendOutput struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	ChatID  string `json:"chat_id"`
}

// deliver posts text to chatID and builds the tool result.
func deliver(ctx context.Context, sender MessageSender, logger logSDK.Logger, tool, chatID, text string) (*mcp.CallToolResult, error) {
	if err := sender.SendMessage(ctx, chatID, text); err != nil {
		logger.Error("send message failed",
			zap.String("tool", tool),
			zap.String("chat_id", chatID),
			zap.Error(err))
		if _, typed := toolerr.AsError(err); typed {
			return nil, err
		}
		return nil, toolerr.Wrap(err, toolerr.CodeUpstream, "telegram api rejected the message")
	}

	logger.Info("message sent", zap.String("tool", tool), zap.String("chat_id", chatID))
	return &mcp.CallToolResult{
		Content:           []mcp.Content{mcp.NewTextContent(SentMessage)},
		StructuredContent: SendOutput{Success: true, Message: SentMessage, ChatID: chatID},
	}, nil
}

func messageArgument() mcp.ToolOption {
	return mcp.WithString(
		"message",
		mcp.Required(),
		mcp.MinLength(1),
		mcp.Description("Text of the message."),
	)
}

// SendTelegramMessageTool implements the send_telegram_message MCP tool.
type SendTelegramMessageTool struct {
	sender    MessageSender
	validator CredentialValidator
	logger    logSDK.Logger
}

// NewSendTelegramMessageTool constructs a SendTelegramMessageTool with the provided dependencies.
func NewSendTelegramMessageTool(sender MessageSender, validator CredentialValidator, logger logSDK.Logger) (*SendTelegramMessageTool, error) {
	if sender == nil {
		return nil, errors.New("message sender is required")
	}
	if validator == nil {
		return nil, errors.New("credential validator is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	return &SendTelegramMessageTool{sender: sender, validator: validator, logger: logger}, nil
}

// Definition returns the MCP metadata describing the tool.
func (t *SendTelegramMessageTool) Definition() mcp.Tool {
	return mcp.NewTool(
		SendTelegramToolName,
		mcp.WithTitleAnnotation("Enviar mensagem para o Telegram"),
		mcp.WithDescription("Envia uma mensagem para um chat específico no Telegram."),
		credentialArgument(),
		mcp.WithString(
			"chat_id",
			mcp.Required(),
			mcp.MinLength(1),
			mcp.Description("Destination Telegram chat id."),
		),
		messageArgument(),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(true),
	)
}

// OutputSchema describes SendOutput.
func (t *SendTelegramMessageTool) OutputSchema() *jsonschema.Schema {
	return mustOutputSchema[SendOutput]()
}

// Handle validates the credential and forwards the message.
func (t *SendTelegramMessageTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := authorize(t.validator, req); err != nil {
		return nil, err
	}

	chatID := strings.TrimSpace(req.GetString("chat_id", ""))
	message := req.GetString("message", "")
	if chatID == "" {
		return nil, toolerr.InvalidInput("chat_id cannot be empty", "chat_id")
	}
	if strings.TrimSpace(message) == "" {
		return nil, toolerr.InvalidInput("message cannot be empty", "message")
	}

	return deliver(ctx, t.sender, t.logger, SendTelegramToolName, chatID, message)
}

// RecipientTool implements a send_message_to_<name> tool whose destination
// is resolved from configuration on every call.
type RecipientTool struct {
	name      string
	resolve   RecipientResolver
	sender    MessageSender
	validator CredentialValidator
	logger    logSDK.Logger
}

// NewRecipientTool constructs a RecipientTool for the named recipient.
func NewRecipientTool(name string, resolve RecipientResolver, sender MessageSender, validator CredentialValidator, logger logSDK.Logger) (*RecipientTool, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if !recipientNameRe.MatchString(name) {
		return nil, errors.Errorf("invalid recipient name %q", name)
	}
	if resolve == nil {
		return nil, errors.New("recipient resolver is required")
	}
	if sender == nil {
		return nil, errors.New("message sender is required")
	}
	if validator == nil {
		return nil, errors.New("credential validator is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	return &RecipientTool{
		name:      name,
		resolve:   resolve,
		sender:    sender,
		validator: validator,
		logger:    logger,
	}, nil
}

// ToolName returns send_message_to_<name>.
func (t *RecipientTool) ToolName() string {
	return RecipientToolPrefix + t.name
}

// Definition returns the MCP metadata describing the tool.
func (t *RecipientTool) Definition() mcp.Tool {
	display := strings.ToUpper(t.name[:1]) + t.name[1:]
	return mcp.NewTool(
		t.ToolName(),
		mcp.WithTitleAnnotation(fmt.Sprintf("Enviar mensagem para %s", display)),
		mcp.WithDescription(fmt.Sprintf("Envia uma mensagem no Telegram para %s.", display)),
		credentialArgument(),
		messageArgument(),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(true),
	)
}

// OutputSchema describes SendOutput.
func (t *RecipientTool) OutputSchema() *jsonschema.Schema {
	return mustOutputSchema[SendOutput]()
}

// Handle validates the credential, resolves the recipient and forwards the message.
func (t *RecipientTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := authorize(t.validator, req); err != nil {
		return nil, err
	}

	message := req.GetString("message", "")
	if strings.TrimSpace(message) == "" {
		return nil, toolerr.InvalidInput("message cannot be empty", "message")
	}

	chatID := strings.TrimSpace(t.resolve(t.name))
	if chatID == "" {
		t.logger.Warn("recipient has no chat id", zap.String("recipient", t.name))
		return nil, toolerr.Newf(toolerr.CodeMissingConfiguration,
			"chat id for recipient %q is not configured (CHAT_ID_%s)", t.name, strings.ToUpper(t.name))
	}

	return deliver(ctx, t.sender, t.logger, t.ToolName(), chatID, message)
}
