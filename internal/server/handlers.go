package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zenovak/2100-AAA/internal/database"
	"github.com/zenovak/2100-AAA/internal/task"
	"github.com/zenovak/2100-AAA/internal/types"
	"github.com/zenovak/2100-AAA/internal/workflow"
)

// taskRequest is the POST /api/task body. Exactly one of Agent (a stored
// definition name), Workflow (an inline JSON dialect definition), or DSL (an
// inline text dialect definition) must be given.
type taskRequest struct {
	Agent    string          `json:"agent,omitempty"`
	Workflow json.RawMessage `json:"workflow,omitempty"`
	DSL      string          `json:"dsl,omitempty"`
	Input    map[string]any  `json:"input,omitempty"`
	Callback string          `json:"callback,omitempty"`
}

// submitTask starts a run and answers immediately with the running task.
func (s *Server) submitTask(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ag, err := s.resolveDefinition(r, &req)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	tsk, err := s.manager.Submit(r.Context(), ag, req.Input, req.Callback)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, tsk.Snapshot())
}

func (s *Server) resolveDefinition(r *http.Request, req *taskRequest) (*workflow.Agent, error) {
	switch {
	case req.Agent != "":
		if s.agents == nil {
			return nil, types.NewError(types.WORKFLOW_INVALID,
				"stored agents are not available")
		}
		record, err := s.agents.GetByName(r.Context(), req.Agent)
		if err != nil {
			return nil, err
		}
		return parseRecord(record)

	case len(req.Workflow) > 0:
		return workflow.ParseJSON(req.Workflow)

	case req.DSL != "":
		return workflow.ParseDSL(req.DSL)

	default:
		return nil, types.NewError(types.WORKFLOW_INVALID,
			"request must name an agent or carry a workflow definition")
	}
}

func parseRecord(record *database.AgentRecord) (*workflow.Agent, error) {
	if record.Dialect == "dsl" {
		return workflow.ParseDSL(record.Definition)
	}
	return workflow.ParseJSON([]byte(record.Definition))
}

// getTask answers with the task's current snapshot, live or persisted.
func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "taskID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	snap, err := s.manager.Get(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}

	status := task.Status(r.URL.Query().Get("status"))
	tasks, err := s.tasks.List(r.Context(), status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if tasks == nil {
		tasks = []*task.Snapshot{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// agentRequest is the POST /api/agent body.
type agentRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Definition  json.RawMessage `json:"definition,omitempty"`
	DSL         string          `json:"dsl,omitempty"`
}

// registerAgent validates and upserts a stored definition.
func (s *Server) registerAgent(w http.ResponseWriter, r *http.Request) {
	if s.agents == nil {
		writeError(w, http.StatusServiceUnavailable, "agent storage is not available")
		return
	}

	var req agentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	record := &database.AgentRecord{
		Name:        req.Name,
		Description: req.Description,
	}

	var ag *workflow.Agent
	var err error
	switch {
	case req.DSL != "":
		ag, err = workflow.ParseDSL(req.DSL)
		record.Definition = req.DSL
		record.Dialect = "dsl"
	case len(req.Definition) > 0:
		ag, err = workflow.ParseJSON(req.Definition)
		record.Definition = string(req.Definition)
		record.Dialect = "json"
	default:
		writeError(w, http.StatusBadRequest, "request must carry a definition")
		return
	}
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	if record.Name == "" {
		record.Name = ag.Name
	}

	if err := s.agents.Upsert(r.Context(), record); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	if s.agents == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}

	records, err := s.agents.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []*database.AgentRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) getAgent(w http.ResponseWriter, r *http.Request) {
	if s.agents == nil {
		writeError(w, http.StatusServiceUnavailable, "agent storage is not available")
		return
	}

	record, err := s.agents.GetByName(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) deleteAgent(w http.ResponseWriter, r *http.Request) {
	if s.agents == nil {
		writeError(w, http.StatusServiceUnavailable, "agent storage is not available")
		return
	}

	if err := s.agents.Delete(r.Context(), chi.URLParam(r, "name")); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// receiveCallback is the built-in delivery receiver: it upserts the posted
// task record keyed by id, so replayed deliveries converge to one row.
func (s *Server) receiveCallback(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		writeError(w, http.StatusServiceUnavailable, "task storage is not available")
		return
	}

	var snap task.Snapshot
	if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if snap.ID.IsZero() {
		writeError(w, http.StatusBadRequest, "task id is required")
		return
	}

	if err := s.tasks.Upsert(r.Context(), snap); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stored", "id": snap.ID.String()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
