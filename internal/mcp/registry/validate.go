package registry

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	errors "github.com/Laisky/errors/v2"
	"github.com/google/jsonschema-go/jsonschema"
	inschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"

	"github.com/Laisky/laisky-mcp-gateway/internal/mcp/toolerr"
)

// validateInput checks args against the compiled input schema and reports
// the offending top-level fields.
func validateInput(sch *inschema.Schema, args map[string]any) error {
	if sch == nil {
		return nil
	}

	raw, err := json.Marshal(args)
	if err != nil {
		return toolerr.InvalidInput("arguments are not valid JSON")
	}
	// decode with the validator's own reader so numbers keep their precision
	instance, err := inschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return toolerr.InvalidInput("arguments are not valid JSON")
	}

	err = sch.Validate(instance)
	if err == nil {
		return nil
	}

	var verr *inschema.ValidationError
	if !errors.As(err, &verr) {
		return toolerr.Wrap(err, toolerr.CodeInputValidation, "invalid arguments")
	}

	fields := offendingFields(verr)
	msg := "invalid arguments"
	if len(fields) > 0 {
		msg = "invalid arguments: " + strings.Join(fields, ", ")
	}
	return toolerr.InvalidInput(msg, fields...)
}

// offendingFields walks the validation error tree collecting the names of
// missing required properties and the top-level location of every other leaf.
func offendingFields(verr *inschema.ValidationError) []string {
	seen := map[string]struct{}{}
	var walk func(e *inschema.ValidationError)
	walk = func(e *inschema.ValidationError) {
		if req, ok := e.ErrorKind.(*kind.Required); ok {
			for _, missing := range req.Missing {
				seen[missing] = struct{}{}
			}
		} else if len(e.Causes) == 0 && len(e.InstanceLocation) > 0 {
			seen[e.InstanceLocation[0]] = struct{}{}
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(verr)

	fields := make([]string, 0, len(seen))
	for f := range seen {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// validateOutput checks a successful result's structured content against the
// resolved output schema. A violation is the handler's fault.
func validateOutput(resolved *jsonschema.Resolved, structured any) error {
	if resolved == nil {
		return nil
	}
	if structured == nil {
		return toolerr.New(toolerr.CodeHandler, "tool result has no structured content")
	}

	instance, err := normalizeJSON(structured)
	if err != nil {
		return toolerr.Wrap(err, toolerr.CodeHandler, "tool result is not valid JSON")
	}
	if err = resolved.Validate(instance); err != nil {
		return toolerr.Wrap(err, toolerr.CodeHandler, "tool result violates its output schema")
	}

	return nil
}

func normalizeJSON(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "marshal")
	}

	var out any
	if err = json.Unmarshal(raw, &out); err != nil {
		return nil, errors.Wrap(err, "unmarshal")
	}
	return out, nil
}
