package v1

import (
	"net/http"

	"mindrian/internal/gateway/handlers"
)

// HandleListTools lists the workspace tools and whether each needs
// confirmation.
func (r *Router) HandleListTools(w http.ResponseWriter, _ *http.Request) {
	if r.tools == nil {
		handlers.SendJSON(w, http.StatusOK, ToolsResponse{Tools: []ToolInfo{}, Count: 0})
		return
	}

	list := r.tools.List()
	out := make([]ToolInfo, 0, len(list))
	for _, t := range list {
		out = append(out, ToolInfo{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
			Confirmable: r.confirmable != nil && r.confirmable.Contains(t.Name()),
		})
	}

	handlers.SendJSON(w, http.StatusOK, ToolsResponse{Tools: out, Count: len(out)})
}
