package v1

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"mindrian/internal/confirm"
	"mindrian/internal/orchestrator"
	"mindrian/internal/session"
	"mindrian/internal/storage"
	"mindrian/internal/tools"
	"mindrian/pkg/logger"
)

// RunStore reads run records. *storage.DB satisfies it.
type RunStore interface {
	GetRun(id string) (*storage.RunRecord, error)
}

// RouterDeps holds dependencies for the v1 API router.
type RouterDeps struct {
	Orchestrator *orchestrator.Orchestrator
	Sessions     *session.Store
	Coordinator  *confirm.Coordinator
	Runs         RunStore
	Tools        *tools.Registry
	Confirmable  *confirm.ToolSet
	AgentName    string // empty accepts any agent path segment
}

// Router wraps v1 API dependencies.
type Router struct {
	orch        *orchestrator.Orchestrator
	sessions    *session.Store
	coord       *confirm.Coordinator
	runs        RunStore
	tools       *tools.Registry
	confirmable *confirm.ToolSet
	agentName   string
	log         zerolog.Logger
}

// NewRouter creates a new v1 API router.
func NewRouter(deps *RouterDeps) *Router {
	if deps == nil {
		deps = &RouterDeps{}
	}
	return &Router{
		orch:        deps.Orchestrator,
		sessions:    deps.Sessions,
		coord:       deps.Coordinator,
		runs:        deps.Runs,
		tools:       deps.Tools,
		confirmable: deps.Confirmable,
		agentName:   deps.AgentName,
		log:         logger.Component("api"),
	}
}

// RegisterRoutes mounts the run endpoints at the root and the inspection
// endpoints under /api/v1.
func (r *Router) RegisterRoutes(router *mux.Router) {
	agents := router.PathPrefix("/agents/{agent}").Subrouter()
	agents.HandleFunc("/runs", r.HandleStartRun).Methods(http.MethodPost)
	agents.HandleFunc("/runs/{run_id}/continue", r.HandleContinueRun).Methods(http.MethodPost)
	agents.HandleFunc("/runs/{run_id}/cancel", r.HandleCancelRun).Methods(http.MethodPost)

	v1 := router.PathPrefix("/api/v1").Subrouter()

	// Runs
	v1.HandleFunc("/runs/{id}", r.HandleGetRun).Methods(http.MethodGet)

	// Sessions
	v1.HandleFunc("/sessions/{id}", r.HandleGetSession).Methods(http.MethodGet)
	v1.HandleFunc("/sessions/{id}", r.HandleDeleteSession).Methods(http.MethodDelete)

	// Confirmations
	v1.HandleFunc("/confirmations", r.HandleListConfirmations).Methods(http.MethodGet)

	// Tools
	v1.HandleFunc("/tools", r.HandleListTools).Methods(http.MethodGet)
}

// agentAllowed reports whether the {agent} path segment names this server.
func (r *Router) agentAllowed(req *http.Request) bool {
	return r.agentName == "" || mux.Vars(req)["agent"] == r.agentName
}
