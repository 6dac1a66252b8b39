package v1

import (
	"encoding/json"
	"net/http"

	"mindrian/internal/gateway/handlers"
)

// HandleListConfirmations lists pending confirmations, oldest first.
func (r *Router) HandleListConfirmations(w http.ResponseWriter, _ *http.Request) {
	if r.coord == nil {
		handlers.SendError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Confirmation coordinator not available")
		return
	}

	pending := r.coord.Pending()
	out := make([]ConfirmationInfo, 0, len(pending))
	for _, p := range pending {
		info := ConfirmationInfo{
			ToolCallID: p.ToolCallID,
			SessionID:  p.SessionID,
			RunID:      p.RunID,
			ToolName:   p.ToolName,
			CreatedAt:  p.CreatedAt,
			ExpiresAt:  p.ExpiresAt,
		}
		if len(p.ToolArgs) > 0 {
			var args any
			if err := json.Unmarshal(p.ToolArgs, &args); err == nil {
				info.ToolArgs = args
			} else {
				info.ToolArgs = string(p.ToolArgs)
			}
		}
		out = append(out, info)
	}

	handlers.SendJSON(w, http.StatusOK, ConfirmationsResponse{Confirmations: out, Count: len(out)})
}
