package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DeusData/odoo-graph/internal/entity"
	"github.com/DeusData/odoo-graph/internal/pipeline"
	"github.com/DeusData/odoo-graph/internal/query"
	"github.com/DeusData/odoo-graph/internal/store"
)

// Version is reported in the MCP implementation info.
var Version = "dev"

// RunFunc runs the pipeline once. full forces FULL mode.
type RunFunc func(ctx context.Context, full bool) (*pipeline.Report, error)

// Server wraps the MCP server with tool handlers.
type Server struct {
	mcp    *mcp.Server
	store  *store.Store
	engine *query.Engine
	run    RunFunc
	// runMu serializes runs started here with the watcher and scheduler.
	runMu *sync.Mutex
}

// NewServer creates a new MCP server with all tools registered. run may be
// nil, in which case the reprocess tool reports an error. mu is shared with
// every other caller of run; nil allocates a private one.
func NewServer(s *store.Store, project string, run RunFunc, mu *sync.Mutex) *Server {
	if mu == nil {
		mu = &sync.Mutex{}
	}
	srv := &Server{
		store:  s,
		engine: query.New(s, project),
		run:    run,
		runMu:  mu,
		mcp: mcp.NewServer(
			&mcp.Implementation{
				Name:    "odoo-graph",
				Version: Version,
			},
			nil,
		),
	}
	srv.registerTools()
	return srv
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

const nameSchema = `{
	"type": "object",
	"properties": {
		"name": {"type": "string", "description": "Technical model name (e.g. 'sale.order')"}
	},
	"required": ["name"]
}`

const xmlIDSchema = `{
	"type": "object",
	"properties": {
		"xml_id": {"type": "string", "description": "Module-qualified view xml id (e.g. 'sale.view_order_form')"}
	},
	"required": ["xml_id"]
}`

const moduleSchema = `{
	"type": "object",
	"properties": {
		"module": {"type": "string", "description": "Technical module name (e.g. 'sale')"}
	},
	"required": ["module"]
}`

func (s *Server) registerTools() {
	s.mcp.AddTool(&mcp.Tool{
		Name:        "reprocess",
		Description: "Scan the addons tree and sync the graph. Detects changed files by fingerprint and reprocesses incrementally, or everything when mode is 'full'. Returns the run report.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"mode": {
					"type": "string",
					"description": "'auto' lets change detection pick the mode; 'full' forces a FULL run",
					"enum": ["auto", "full"]
				}
			}
		}`),
	}, s.handleReprocess)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "get_model",
		Description: "Return a model with its fields, parents, delegations, extending models and views.",
		InputSchema: json.RawMessage(nameSchema),
	}, s.handleGetModel)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "get_view",
		Description: "Return a view by xml id together with the views extending it.",
		InputSchema: json.RawMessage(xmlIDSchema),
	}, s.handleGetView)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "list_models",
		Description: "List models with optional filters on module, kind and transience. Paginated.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"module": {"type": "string", "description": "Only models introduced by this module"},
				"kind": {"type": "string", "description": "Model kind: base, extension, redefinition, mixin, transient"},
				"transient": {"type": "boolean", "description": "Filter on transience when set"},
				"pattern": {"type": "string", "description": "Regex on the model name"},
				"include_stubs": {"type": "boolean", "description": "Include models referenced but never defined"},
				"limit": {"type": "integer", "description": "Max results (default 100)"},
				"offset": {"type": "integer", "description": "Skip this many results"}
			}
		}`),
	}, s.handleListModels)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "search_models",
		Description: "Case-insensitive substring search over model names.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"term": {"type": "string", "description": "Substring of the model name"},
				"limit": {"type": "integer", "description": "Max results (default 20)"}
			},
			"required": ["term"]
		}`),
	}, s.handleSearchModels)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "model_ancestry",
		Description: "Walk the inheritance graph of a model up (ancestors) or down (descendants) to a depth.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"name": {"type": "string", "description": "Technical model name"},
				"direction": {"type": "string", "enum": ["up", "down"], "description": "'up' for ancestors (default), 'down' for descendants"},
				"depth": {"type": "integer", "description": "Maximum depth (default 5)"}
			},
			"required": ["name"]
		}`),
	}, s.handleModelAncestry)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "views_for_model",
		Description: "List the views of a model ordered by priority.",
		InputSchema: json.RawMessage(nameSchema),
	}, s.handleViewsForModel)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "view_extensions",
		Description: "List the views that extend a view through inherit_id.",
		InputSchema: json.RawMessage(xmlIDSchema),
	}, s.handleViewExtensions)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "model_fields",
		Description: "List the fields of a model, optionally only those of one type (e.g. many2one).",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"name": {"type": "string", "description": "Technical model name"},
				"field_type": {"type": "string", "description": "Field type filter (char, many2one, ...)"}
			},
			"required": ["name"]
		}`),
	}, s.handleModelFields)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "model_relations",
		Description: "List the relational fields of a model with their target models.",
		InputSchema: json.RawMessage(nameSchema),
	}, s.handleModelRelations)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "module_deps",
		Description: "List the direct dependencies of a module.",
		InputSchema: json.RawMessage(moduleSchema),
	}, s.handleModuleDeps)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "module_dependents",
		Description: "List the modules that depend directly on a module.",
		InputSchema: json.RawMessage(moduleSchema),
	}, s.handleModuleDependents)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "impact",
		Description: "Blast radius of changing a model or view: everything that inherits, extends, displays or references it, with hop distance and risk.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"key": {"type": "string", "description": "Model name or view xml id"},
				"label": {"type": "string", "enum": ["Model", "View"], "description": "Node label (default Model)"},
				"depth": {"type": "integer", "description": "Maximum hops (default 3)"}
			},
			"required": ["key"]
		}`),
	}, s.handleImpact)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "graph_stats",
		Description: "Node label counts, relationship counts and the last run of the project.",
		InputSchema: json.RawMessage(`{"type": "object"}`),
	}, s.handleGraphStats)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "list_projects",
		Description: "List all projects in the database with node and edge counts.",
		InputSchema: json.RawMessage(`{"type": "object"}`),
	}, s.handleListProjects)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "clear_project",
		Description: "Delete the project's graph and fingerprints. The next reprocess runs FULL. Irreversible.",
		InputSchema: json.RawMessage(`{"type": "object"}`),
	}, s.handleClearProject)
}

// jsonResult marshals data to JSON and returns as tool result.
func jsonResult(data any) *mcp.CallToolResult {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return errResult("json marshal err=" + err.Error())
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(b)},
		},
	}
}

// errResult returns a tool result indicating an error.
func errResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}

// queryErr turns a query error into a tool error. Unknown names keep their
// suggestions in the message.
func queryErr(op string, err error) *mcp.CallToolResult {
	if errors.Is(err, query.ErrNotFound) {
		return errResult(err.Error())
	}
	return errResult(fmt.Sprintf("%s: %v", op, err))
}

// parseArgs unmarshals the raw JSON arguments into a map.
func parseArgs(req *mcp.CallToolRequest) (map[string]any, error) {
	if req.Params == nil || len(req.Params.Arguments) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(req.Params.Arguments, &m); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	return m, nil
}

// getStringArg extracts a string argument from parsed args.
func getStringArg(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// getIntArg extracts an integer argument with a default value.
func getIntArg(args map[string]any, key string, defaultVal int) int {
	v, ok := args[key]
	if !ok {
		return defaultVal
	}
	f, ok := v.(float64) // JSON numbers decode as float64
	if !ok {
		return defaultVal
	}
	return int(f)
}

// getBoolArg extracts a boolean argument from parsed args.
func getBoolArg(args map[string]any, key string) bool {
	v, ok := args[key]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	if !ok {
		return false
	}
	return b
}

// requiredString parses args and returns the named string argument, or a
// tool error when it is missing.
func requiredString(req *mcp.CallToolRequest, key string) (string, map[string]any, *mcp.CallToolResult) {
	args, err := parseArgs(req)
	if err != nil {
		return "", nil, errResult(err.Error())
	}
	v := getStringArg(args, key)
	if v == "" {
		return "", nil, errResult(key + " is required")
	}
	return v, args, nil
}

// labelArg maps the label argument onto a node label.
func labelArg(args map[string]any) string {
	if getStringArg(args, "label") == entity.LabelView {
		return entity.LabelView
	}
	return entity.LabelModel
}
