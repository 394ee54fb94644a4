// Package registry holds the tool descriptor table and dispatches invocations:
// input schema validation, handler execution and output schema validation.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/mark3labs/mcp-go/mcp"
	srv "github.com/mark3labs/mcp-go/server"
	inschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/Laisky/laisky-mcp-gateway/internal/mcp/calllog"
	"github.com/Laisky/laisky-mcp-gateway/internal/mcp/toolerr"
	"github.com/Laisky/laisky-mcp-gateway/library/log"
)

// ErrDuplicateTool is returned when a tool name is registered twice.
var ErrDuplicateTool = errors.New("tool already registered")

// Descriptor binds a tool definition to its handler.
type Descriptor struct {
	// Tool carries the name, description and input schema advertised to clients.
	Tool mcp.Tool
	// Output is the schema every successful StructuredContent must satisfy.
	// Nil skips output validation.
	Output *jsonschema.Schema
	// Handler performs the invocation. Failures are returned as errors,
	// preferably *toolerr.Error.
	Handler srv.ToolHandlerFunc
}

type entry struct {
	desc   Descriptor
	input  *inschema.Schema
	output *jsonschema.Resolved
}

// Option customizes a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for invocation failures.
func WithLogger(logger logSDK.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRecorder sets the call log sink written by mounted tools.
func WithRecorder(rec calllog.Recorder) Option {
	return func(r *Registry) {
		r.recorder = rec
	}
}

// WithCredentialField names the argument carrying the caller's credential.
// Its value is masked in recorded parameters.
func WithCredentialField(name string) Option {
	return func(r *Registry) {
		r.credentialField = name
	}
}

// Registry is the immutable-after-startup table of tools.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string

	logger          logSDK.Logger
	recorder        calllog.Recorder
	credentialField string
}

// New constructs an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		entries: map[string]*entry{},
		logger:  log.Logger.Named("tool_registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds desc to the table. Names must be unique and the input
// schema must compile.
func (r *Registry) Register(desc Descriptor) error {
	name := strings.TrimSpace(desc.Tool.Name)
	if name == "" {
		return errors.New("tool name is required")
	}
	if desc.Handler == nil {
		return errors.Errorf("tool %q has no handler", name)
	}

	input, err := compileInputSchema(desc.Tool)
	if err != nil {
		return errors.Wrapf(err, "compile input schema of tool %q", name)
	}

	var output *jsonschema.Resolved
	if desc.Output != nil {
		if output, err = desc.Output.Resolve(nil); err != nil {
			return errors.Wrapf(err, "resolve output schema of tool %q", name)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; ok {
		return errors.Wrapf(ErrDuplicateTool, "tool %q", name)
	}

	r.entries[name] = &entry{desc: desc, input: input, output: output}
	r.order = append(r.order, name)
	return nil
}

// Names returns registered tool names sorted alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := append([]string(nil), r.order...)
	sort.Strings(names)
	return names
}

// Invoke validates args, runs the handler exactly once and checks its output.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, toolerr.Newf(toolerr.CodeUnknownTool, "unknown tool %q", name)
	}

	if args == nil {
		args = map[string]any{}
	}
	if err := validateInput(e.input, args); err != nil {
		return nil, err
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := e.desc.Handler(ctx, req)
	if err != nil {
		if _, typed := toolerr.AsError(err); typed {
			return nil, err
		}
		return nil, toolerr.Wrap(err, toolerr.CodeHandler, "tool handler failed")
	}
	if result == nil {
		return nil, toolerr.New(toolerr.CodeHandler, "tool handler returned no result")
	}
	if result.IsError {
		return result, nil
	}

	if err := validateOutput(e.output, result.StructuredContent); err != nil {
		return nil, err
	}

	return result, nil
}

// Mount registers every descriptor on the MCP server. The mounted handler
// never returns an error: failures become error results rendered as
// "<CODE>: message", and each call is written to the call log.
func (r *Registry) Mount(s *srv.MCPServer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.order {
		e := r.entries[name]
		s.AddTool(e.desc.Tool, r.mountedHandler(name))
	}
}

func (r *Registry) mountedHandler(name string) srv.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		start := clock()

		result, err := r.Invoke(ctx, name, args)
		r.record(ctx, name, args, start, result, err)
		if err != nil {
			r.logger.Warn("tool invocation failed",
				zap.String("tool", name),
				zap.String("code", string(toolerr.CodeOf(err))),
				zap.Error(err))
			return mcp.NewToolResultError(toolerr.Render(err)), nil
		}

		return result, nil
	}
}

// compileInputSchema compiles the advertised input schema so arguments can
// be checked before any handler runs.
func compileInputSchema(tool mcp.Tool) (*inschema.Schema, error) {
	var raw []byte
	if len(tool.RawInputSchema) > 0 {
		raw = tool.RawInputSchema
	} else {
		var err error
		if raw, err = json.Marshal(tool.InputSchema); err != nil {
			return nil, errors.Wrap(err, "marshal input schema")
		}
	}

	doc, err := inschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(err, "decode input schema")
	}

	c := inschema.NewCompiler()
	if err = c.AddResource("input.json", doc); err != nil {
		return nil, errors.Wrap(err, "add input schema")
	}
	sch, err := c.Compile("input.json")
	if err != nil {
		return nil, errors.Wrap(err, "compile input schema")
	}

	return sch, nil
}
