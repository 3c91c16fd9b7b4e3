package mcp

import (
	"context"
	"errors"
	"time"

	mcp_sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/HyphaGroup/parker/internal/audit"
	"github.com/HyphaGroup/parker/internal/checker"
	"github.com/HyphaGroup/parker/internal/checkpoint"
	"github.com/HyphaGroup/parker/internal/logger"
	"github.com/HyphaGroup/parker/internal/metrics"
	"github.com/HyphaGroup/parker/internal/search"
	"github.com/HyphaGroup/parker/internal/session"
	"github.com/HyphaGroup/parker/internal/store"
)

var (
	ErrNoSession      = errors.New("pause and resume are not available in shared mode")
	ErrNoCheckpointer = errors.New("checkpointing is not available")
)

// SearchControl is the session a run is consuming. *session.Session implements it.
type SearchControl interface {
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Progress(ctx context.Context) (search.Cursor, error)
	BufferedAmount(ctx context.Context) (int, error)
	Info() session.Info
}

// ProgressReporter reports what the checker has tested. *checker.Checker implements it.
type ProgressReporter interface {
	Tested() search.Cursor
	Stats() checker.Stats
}

// RunStore reads solutions and updates run status. *store.Store implements it.
type RunStore interface {
	ListSolutions(runID string) ([]*store.Solution, error)
	SetStatus(runID string, status store.RunStatus) error
}

// Checkpointer forces and reports checkpoints. *checkpoint.Checkpointer implements it.
type Checkpointer interface {
	SaveNow() (search.Cursor, error)
	Status() checkpoint.Status
}

// Tool parameter types

type StatusParams struct{}

type PauseParams struct{}

type ResumeParams struct{}

type SolutionsParams struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of solutions to return, 0 for all"`
}

type CheckpointParams struct{}

// ProducerStatus is the producer's view of the stream. It is only
// available while the session is active.
type ProducerStatus struct {
	Marker   search.Cursor `json:"marker"`
	Buffered int           `json:"buffered"`
}

// StatusResult is returned by search_status
type StatusResult struct {
	RunID      string             `json:"run_id"`
	Mode       string             `json:"mode"`
	Ceiling    uint64             `json:"ceiling"`
	Tested     search.Cursor      `json:"tested"`
	Stats      checker.Stats      `json:"stats"`
	Session    *session.Info      `json:"session,omitempty"`
	Producer   *ProducerStatus    `json:"producer,omitempty"`
	Checkpoint *checkpoint.Status `json:"checkpoint,omitempty"`
}

// SolutionsResult is returned by search_solutions
type SolutionsResult struct {
	RunID     string            `json:"run_id"`
	Count     int               `json:"count"`
	Solutions []*store.Solution `json:"solutions"`
}

// ControlResult is returned by search_pause and search_resume
type ControlResult struct {
	RunID string        `json:"run_id"`
	State session.State `json:"state"`
}

func (s *Server) registerTools() {
	Register(s.registry, ToolDef{
		Name:        "search_status",
		Description: "Report run progress: tested cursor, checker stats, session state and checkpoint status",
		ReadOnly:    true,
	}, instrument(s, "search_status", s.handleStatus))

	Register(s.registry, ToolDef{
		Name:        "search_pause",
		Description: "Pause the producer. Only search_resume is accepted while paused",
	}, instrument(s, "search_pause", s.handlePause))

	Register(s.registry, ToolDef{
		Name:        "search_resume",
		Description: "Resume a paused producer",
	}, instrument(s, "search_resume", s.handleResume))

	Register(s.registry, ToolDef{
		Name:        "search_solutions",
		Description: "List triples of the current run that passed the square test",
		ReadOnly:    true,
	}, instrument(s, "search_solutions", s.handleSolutions))

	Register(s.registry, ToolDef{
		Name:        "search_checkpoint",
		Description: "Save a checkpoint now and report checkpoint status",
	}, instrument(s, "search_checkpoint", s.handleCheckpoint))
}

// instrument scopes a tool call's context to the run, session and tool,
// and counts calls by outcome
func instrument[P any](s *Server, tool string, h func(ctx context.Context, req *mcp_sdk.CallToolRequest, params P) (*mcp_sdk.CallToolResult, any, error)) func(ctx context.Context, req *mcp_sdk.CallToolRequest, params P) (*mcp_sdk.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp_sdk.CallToolRequest, params P) (*mcp_sdk.CallToolResult, any, error) {
		ctx = s.toolContext(ctx, tool)
		start := time.Now()
		result, data, err := h(ctx, req, params)
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.RecordToolCall(tool, status)
		logger.DebugContext(ctx, "tool call", "status", status, "duration", time.Since(start))
		return result, data, err
	}
}

func (s *Server) toolContext(ctx context.Context, tool string) context.Context {
	ctx = context.WithValue(ctx, logger.ContextKeyRunID, s.deps.RunID)
	ctx = context.WithValue(ctx, logger.ContextKeyTool, tool)
	if s.deps.Session != nil {
		ctx = context.WithValue(ctx, logger.ContextKeySessionID, s.deps.Session.Info().ID)
	}
	return ctx
}

func (s *Server) handleStatus(ctx context.Context, req *mcp_sdk.CallToolRequest, params StatusParams) (*mcp_sdk.CallToolResult, any, error) {
	res := &StatusResult{
		RunID:   s.deps.RunID,
		Mode:    s.deps.Mode,
		Ceiling: s.deps.Ceiling,
	}
	if s.deps.Progress != nil {
		res.Tested = s.deps.Progress.Tested()
		res.Stats = s.deps.Progress.Stats()
	}
	if s.deps.Session != nil {
		info := s.deps.Session.Info()
		res.Session = &info
		if info.State == session.StateActive {
			// Fails if the session left Active after the snapshot
			marker, err := s.deps.Session.Progress(ctx)
			if err == nil {
				buffered, err := s.deps.Session.BufferedAmount(ctx)
				if err == nil {
					res.Producer = &ProducerStatus{Marker: marker, Buffered: buffered}
				}
			}
		}
	}
	if s.deps.Checkpoints != nil {
		status := s.deps.Checkpoints.Status()
		res.Checkpoint = &status
	}
	return nil, res, nil
}

func (s *Server) handlePause(ctx context.Context, req *mcp_sdk.CallToolRequest, params PauseParams) (*mcp_sdk.CallToolResult, any, error) {
	if s.deps.Session == nil {
		return nil, nil, ErrNoSession
	}
	err := s.deps.Session.Pause(ctx)
	s.audit(ctx, audit.OpSearchPause, err)
	if err != nil {
		return nil, nil, err
	}
	s.setRunStatus(ctx, store.RunStatusPaused)
	return nil, &ControlResult{RunID: s.deps.RunID, State: s.deps.Session.Info().State}, nil
}

func (s *Server) handleResume(ctx context.Context, req *mcp_sdk.CallToolRequest, params ResumeParams) (*mcp_sdk.CallToolResult, any, error) {
	if s.deps.Session == nil {
		return nil, nil, ErrNoSession
	}
	err := s.deps.Session.Resume(ctx)
	s.audit(ctx, audit.OpSearchResume, err)
	if err != nil {
		return nil, nil, err
	}
	s.setRunStatus(ctx, store.RunStatusRunning)
	return nil, &ControlResult{RunID: s.deps.RunID, State: s.deps.Session.Info().State}, nil
}

func (s *Server) handleSolutions(ctx context.Context, req *mcp_sdk.CallToolRequest, params SolutionsParams) (*mcp_sdk.CallToolResult, any, error) {
	if params.Limit < 0 {
		return nil, nil, errors.New("limit must be non-negative")
	}
	solutions, err := s.deps.Store.ListSolutions(s.deps.RunID)
	if err != nil {
		return nil, nil, err
	}
	if solutions == nil {
		solutions = []*store.Solution{}
	}
	if params.Limit > 0 && len(solutions) > params.Limit {
		solutions = solutions[:params.Limit]
	}
	return nil, &SolutionsResult{
		RunID:     s.deps.RunID,
		Count:     len(solutions),
		Solutions: solutions,
	}, nil
}

func (s *Server) handleCheckpoint(ctx context.Context, req *mcp_sdk.CallToolRequest, params CheckpointParams) (*mcp_sdk.CallToolResult, any, error) {
	if s.deps.Checkpoints == nil {
		return nil, nil, ErrNoCheckpointer
	}
	_, err := s.deps.Checkpoints.SaveNow()
	s.audit(ctx, audit.OpCheckpointSave, err)
	if err != nil {
		return nil, nil, err
	}
	status := s.deps.Checkpoints.Status()
	return nil, &status, nil
}

// setRunStatus mirrors a pause or resume into the run record. Failure is
// logged; the session state is authoritative.
func (s *Server) setRunStatus(ctx context.Context, status store.RunStatus) {
	if s.deps.Store == nil {
		return
	}
	if err := s.deps.Store.SetStatus(s.deps.RunID, status); err != nil {
		logger.WarnContext(ctx, "failed to update run status", "status", status, "error", err)
	}
}

// audit records op with the ids carried by ctx
func (s *Server) audit(ctx context.Context, op audit.Operation, err error) {
	s.deps.Audit.Record(op, s.deps.RunID, contextString(ctx, logger.ContextKeySessionID), contextString(ctx, logger.ContextKeyRequestID), err)
}

func contextString(ctx context.Context, key any) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
