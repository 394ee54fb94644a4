package tools

import (
	"context"
	"fmt"
	"strings"
	"time"
	// embedded zone database so the clock works on hosts without zoneinfo
	_ "time/tzdata"

	errors "github.com/Laisky/errors/v2"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Laisky/laisky-mcp-gateway/library"
	"github.com/Laisky/laisky-mcp-gateway/library/extenso"
)

const (
	// ClockToolName is the registered name of the Brasília clock tool.
	ClockToolName = "hora_atual_brasilia"
	// BrasiliaTimeZone is the IANA zone rendered by the clock.
	BrasiliaTimeZone = "America/Sao_Paulo"
	// fallbackAbbreviation replaces numeric abbreviations such as "-03".
	fallbackAbbreviation = "BRT"
)

// ClockOutput is the structured result of the clock tool.
type ClockOutput struct {
	Texto           string `json:"texto"`
	TextoPorExtenso string `json:"textoPorExtenso"`
	ISO             string `json:"iso"`
	TimeZone        string `json:"timeZone"`
}

// BrasiliaClock renders the current Brasília wall-clock time.
type BrasiliaClock struct {
	loc   *time.Location
	clock Clock
}

// NewBrasiliaClock loads the Brasília zone once. A nil clock uses time.Now.
func NewBrasiliaClock(clock Clock) (*BrasiliaClock, error) {
	loc, err := time.LoadLocation(BrasiliaTimeZone)
	if err != nil {
		return nil, errors.Wrapf(err, "load time zone %s", BrasiliaTimeZone)
	}
	if clock == nil {
		clock = time.Now
	}

	return &BrasiliaClock{loc: loc, clock: clock}, nil
}

// Now renders the current instant.
func (c *BrasiliaClock) Now() (ClockOutput, error) {
	return c.Render(c.clock())
}

// Render formats now as Brasília local time, both numerically and spelled out.
func (c *BrasiliaClock) Render(now time.Time) (ClockOutput, error) {
	local := now.In(c.loc)
	hour, minute, second := local.Clock()
	abbr := zoneAbbreviation(local)

	hourWords, err := extenso.Cardinal(hour)
	if err != nil {
		return ClockOutput{}, errors.Wrap(err, "spell hour")
	}
	minuteWords, err := extenso.Cardinal(minute)
	if err != nil {
		return ClockOutput{}, errors.Wrap(err, "spell minute")
	}
	secondWords, err := extenso.Cardinal(second)
	if err != nil {
		return ClockOutput{}, errors.Wrap(err, "spell second")
	}

	return ClockOutput{
		Texto: fmt.Sprintf("Horário de Brasília: %02d:%02d:%02d (%s).", hour, minute, second, abbr),
		TextoPorExtenso: fmt.Sprintf("Horário de Brasília: %s %s, %s %s e %s %s (%s).",
			extenso.Capitalize(extenso.Feminine(hourWords)), plural(hour, "hora", "horas"),
			minuteWords, plural(minute, "minuto", "minutos"),
			secondWords, plural(second, "segundo", "segundos"),
			abbr),
		ISO:      now.UTC().Format(library.TimeLayout),
		TimeZone: BrasiliaTimeZone,
	}, nil
}

// Preview is the plaintext rendering served outside MCP.
func (o ClockOutput) Preview() string {
	return o.Texto + "\n" + o.TextoPorExtenso
}

func plural(n int, singular, pluralForm string) string {
	if n == 1 {
		return singular
	}
	return pluralForm
}

func zoneAbbreviation(t time.Time) string {
	name, _ := t.Zone()
	if name == "" || strings.HasPrefix(name, "-") || strings.HasPrefix(name, "+") {
		return fallbackAbbreviation
	}
	return name
}

// ClockTool implements the hora_atual_brasilia MCP tool.
type ClockTool struct {
	clock     *BrasiliaClock
	validator CredentialValidator
}

// NewClockTool constructs a ClockTool with the provided dependencies.
func NewClockTool(clock *BrasiliaClock, validator CredentialValidator) (*ClockTool, error) {
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	if validator == nil {
		return nil, errors.New("credential validator is required")
	}

	return &ClockTool{clock: clock, validator: validator}, nil
}

// Definition returns the MCP metadata describing the tool.
func (t *ClockTool) Definition() mcp.Tool {
	return mcp.NewTool(
		ClockToolName,
		mcp.WithTitleAnnotation("Hora de Brasília"),
		mcp.WithDescription("Retorna a hora atual do horário de Brasília (Brasil)."),
		credentialArgument(),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)
}

// OutputSchema describes ClockOutput.
func (t *ClockTool) OutputSchema() *jsonschema.Schema {
	return mustOutputSchema[ClockOutput]()
}

// Handle validates the credential and renders the current time.
func (t *ClockTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := authorize(t.validator, req); err != nil {
		return nil, err
	}

	out, err := t.clock.Now()
	if err != nil {
		return nil, errors.Wrap(err, "render clock")
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(out.Texto),
			mcp.NewTextContent(out.TextoPorExtenso),
		},
		StructuredContent: out,
	}, nil
}
