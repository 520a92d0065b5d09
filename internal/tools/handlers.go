package tools

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DeusData/odoo-graph/internal/entity"
	"github.com/DeusData/odoo-graph/internal/query"
)

func (s *Server) handleReprocess(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	if s.run == nil {
		return errResult("reprocess is not available on this server"), nil
	}
	mode := getStringArg(args, "mode")
	if mode != "" && mode != "auto" && mode != "full" {
		return errResult(fmt.Sprintf("unknown mode %q", mode)), nil
	}

	// Lock to prevent concurrent runs with the watcher and scheduler
	s.runMu.Lock()
	defer s.runMu.Unlock()

	report, err := s.run(ctx, mode == "full")
	if err != nil {
		if report == nil {
			return errResult(fmt.Sprintf("reprocess failed: %v", err)), nil
		}
		res := jsonResult(report)
		res.IsError = true
		return res, nil
	}
	return jsonResult(report), nil
}

func (s *Server) handleGetModel(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, _, res := requiredString(req, "name")
	if res != nil {
		return res, nil
	}
	d, err := s.engine.GetModel(ctx, name)
	if err != nil {
		return queryErr("get model", err), nil
	}
	return jsonResult(d), nil
}

func (s *Server) handleGetView(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, _, res := requiredString(req, "xml_id")
	if res != nil {
		return res, nil
	}
	d, err := s.engine.GetView(ctx, id)
	if err != nil {
		return queryErr("get view", err), nil
	}
	return jsonResult(d), nil
}

func (s *Server) handleListModels(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	filter := query.ModelFilter{
		Module:       getStringArg(args, "module"),
		Kind:         entity.ModelKind(getStringArg(args, "kind")),
		Pattern:      getStringArg(args, "pattern"),
		IncludeStubs: getBoolArg(args, "include_stubs"),
		Limit:        getIntArg(args, "limit", 100),
		Offset:       getIntArg(args, "offset", 0),
	}
	if _, ok := args["transient"]; ok {
		t := getBoolArg(args, "transient")
		filter.Transient = &t
	}
	list, err := s.engine.ListModels(ctx, filter)
	if err != nil {
		return queryErr("list models", err), nil
	}
	return jsonResult(list), nil
}

func (s *Server) handleSearchModels(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	term, args, res := requiredString(req, "term")
	if res != nil {
		return res, nil
	}
	list, err := s.engine.SearchModels(ctx, term, getIntArg(args, "limit", 20))
	if err != nil {
		return queryErr("search models", err), nil
	}
	return jsonResult(list), nil
}

func (s *Server) handleModelAncestry(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, args, res := requiredString(req, "name")
	if res != nil {
		return res, nil
	}
	depth := getIntArg(args, "depth", 5)
	direction := getStringArg(args, "direction")

	var hops []query.Hop
	var err error
	switch direction {
	case "", "up":
		direction = "up"
		hops, err = s.engine.Ancestry(ctx, name, depth)
	case "down":
		hops, err = s.engine.Descendants(ctx, name, depth)
	default:
		return errResult(fmt.Sprintf("unknown direction %q", direction)), nil
	}
	if err != nil {
		return queryErr("ancestry", err), nil
	}
	return jsonResult(map[string]any{
		"model":     name,
		"direction": direction,
		"hops":      hops,
	}), nil
}

func (s *Server) handleViewsForModel(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, _, res := requiredString(req, "name")
	if res != nil {
		return res, nil
	}
	views, err := s.engine.ViewsForModel(ctx, name)
	if err != nil {
		return queryErr("views for model", err), nil
	}
	return jsonResult(views), nil
}

func (s *Server) handleViewExtensions(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, _, res := requiredString(req, "xml_id")
	if res != nil {
		return res, nil
	}
	views, err := s.engine.ViewExtensions(ctx, id)
	if err != nil {
		return queryErr("view extensions", err), nil
	}
	return jsonResult(views), nil
}

func (s *Server) handleModelFields(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, args, res := requiredString(req, "name")
	if res != nil {
		return res, nil
	}
	fields, err := s.engine.Fields(ctx, name, getStringArg(args, "field_type"))
	if err != nil {
		return queryErr("model fields", err), nil
	}
	return jsonResult(fields), nil
}

func (s *Server) handleModelRelations(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, _, res := requiredString(req, "name")
	if res != nil {
		return res, nil
	}
	rels, err := s.engine.Relations(ctx, name)
	if err != nil {
		return queryErr("model relations", err), nil
	}
	return jsonResult(rels), nil
}

func (s *Server) handleModuleDeps(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, _, res := requiredString(req, "module")
	if res != nil {
		return res, nil
	}
	deps, err := s.engine.ModuleDeps(ctx, name)
	if err != nil {
		return queryErr("module deps", err), nil
	}
	return jsonResult(map[string]any{"module": name, "depends": deps}), nil
}

func (s *Server) handleModuleDependents(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, _, res := requiredString(req, "module")
	if res != nil {
		return res, nil
	}
	deps, err := s.engine.ModuleDependents(ctx, name)
	if err != nil {
		return queryErr("module dependents", err), nil
	}
	return jsonResult(map[string]any{"module": name, "dependents": deps}), nil
}

func (s *Server) handleImpact(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, args, res := requiredString(req, "key")
	if res != nil {
		return res, nil
	}
	imp, err := s.engine.Impact(ctx, labelArg(args), key, getIntArg(args, "depth", 3))
	if err != nil {
		return queryErr("impact", err), nil
	}
	return jsonResult(imp), nil
}

func (s *Server) handleGraphStats(ctx context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.engine.Stats(ctx)
	if err != nil {
		return queryErr("stats", err), nil
	}
	return jsonResult(st), nil
}

func (s *Server) handleListProjects(ctx context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return errResult(fmt.Sprintf("list projects: %v", err)), nil
	}

	type projectInfo struct {
		Name      string `json:"name"`
		RootPath  string `json:"root_path,omitempty"`
		IndexedAt string `json:"indexed_at"`
		Nodes     int    `json:"nodes"`
		Edges     int    `json:"edges"`
	}

	result := make([]projectInfo, 0, len(projects))
	for _, p := range projects {
		nc, _ := s.store.CountNodes(ctx, p.Name)
		ec, _ := s.store.CountEdges(ctx, p.Name)
		result = append(result, projectInfo{
			Name:      p.Name,
			RootPath:  p.RootPath,
			IndexedAt: p.IndexedAt,
			Nodes:     nc,
			Edges:     ec,
		})
	}

	return jsonResult(result), nil
}

func (s *Server) handleClearProject(ctx context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	project := s.engine.Project()
	if err := s.store.Clear(ctx, project); err != nil {
		return errResult(fmt.Sprintf("clear failed: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"cleared": project,
		"status":  "ok",
	}), nil
}
