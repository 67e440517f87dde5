package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/EPICLab/synectic/internal/core/metafile"
	"github.com/EPICLab/synectic/internal/core/store"
)

func stringArg(args map[string]any, name string, required bool) (string, error) {
	v, ok := args[name].(string)
	if required && (!ok || v == "") {
		return "", InvalidParameterError(name, "a non-empty string")
	}
	return v, nil
}

func (s *Server) handleFetchRepo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := stringArg(request.GetArguments(), "path", true)
	if err != nil {
		return nil, err
	}

	view, err := s.engine.FetchRepo(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch repository: %w", err)
	}
	if view == nil {
		return nil, RepositoryNotFoundError(path)
	}
	return createEnhancedResult("fetch_repo", view, &ToolResultMetadata{
		InferredParameters: map[string]string{"root": view.Repository.Root},
	})
}

func (s *Server) handleFetchBranch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	root, err := stringArg(args, "root", true)
	if err != nil {
		return nil, err
	}
	ref, _ := stringArg(args, "ref", false)
	scope, _ := stringArg(args, "scope", false)
	if scope != "" && scope != string(store.ScopeLocal) && scope != string(store.ScopeRemote) {
		return nil, InvalidParameterError("scope", "local or remote")
	}

	b, err := s.engine.FetchBranch(ctx, root, ref, store.Scope(scope))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch branch: %w", err)
	}
	if b == nil {
		return nil, BranchNotFoundError(ref, root)
	}
	return createEnhancedResult("fetch_branch", b, nil)
}

func (s *Server) handleFetchMetafile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	path, err := stringArg(args, "path", true)
	if err != nil {
		return nil, err
	}
	handler, _ := stringArg(args, "handler", false)

	mf, err := s.engine.OpenWith(ctx, metafile.Query{Path: path, Handler: handler})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch metafile: %w", err)
	}
	return createEnhancedResult("fetch_metafile", mf, nil)
}

func (s *Server) handleAddBranch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	root, err := stringArg(args, "root", true)
	if err != nil {
		return nil, err
	}
	ref, err := stringArg(args, "ref", true)
	if err != nil {
		return nil, err
	}
	head, _ := stringArg(args, "head", false)

	b, err := s.engine.AddBranch(ctx, root, ref, head)
	if err != nil {
		return nil, fmt.Errorf("failed to add branch: %w", err)
	}
	if b == nil {
		return nil, RepositoryNotFoundError(root)
	}
	return createEnhancedResult("add_branch", b, &ToolResultMetadata{
		InferredParameters: map[string]string{"worktree": b.Root},
	})
}

func (s *Server) handleRemoveBranch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	root, err := stringArg(args, "root", true)
	if err != nil {
		return nil, err
	}
	ref, err := stringArg(args, "ref", true)
	if err != nil {
		return nil, err
	}

	removed, err := s.engine.RemoveBranch(ctx, root, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to remove branch: %w", err)
	}
	return createEnhancedResult("remove_branch", map[string]any{"ref": ref, "removed": removed}, nil)
}

func (s *Server) handleMergeBranch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	root, err := stringArg(args, "root", true)
	if err != nil {
		return nil, err
	}
	base, err := stringArg(args, "base", true)
	if err != nil {
		return nil, err
	}
	cont, _ := args["continue"].(bool)
	compare, err := stringArg(args, "compare", !cont)
	if err != nil {
		return nil, err
	}

	res, err := s.engine.MergeBranch(ctx, root, base, compare, cont)
	if err != nil {
		return nil, fmt.Errorf("failed to merge: %w", err)
	}
	return createEnhancedResult("merge_branch", res, nil)
}

func (s *Server) handleStage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := stringArg(request.GetArguments(), "path", true)
	if err != nil {
		return nil, err
	}
	mf, err := s.engine.Stage(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to stage: %w", err)
	}
	return createEnhancedResult("stage", mf, nil)
}

func (s *Server) handleUnstage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := stringArg(request.GetArguments(), "path", true)
	if err != nil {
		return nil, err
	}
	mf, err := s.engine.Unstage(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to unstage: %w", err)
	}
	return createEnhancedResult("unstage", mf, nil)
}

func (s *Server) handleSnapshot(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return createEnhancedResult("snapshot", s.engine.Store().Snapshot(), nil)
}
