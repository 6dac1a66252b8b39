package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"mindrian/internal/confirm"
	"mindrian/internal/tools"
)

type stubTool struct {
	tools.BaseTool
}

func (s *stubTool) Execute(context.Context, map[string]any) (tools.Result, error) {
	return tools.NewSuccessResult("ok"), nil
}

func TestHandleListTools(t *testing.T) {
	reg := tools.NewRegistry()
	reg.MustRegister(&stubTool{tools.BaseTool{ToolName: deleteDoc, ToolDescription: "Delete a document"}})
	reg.MustRegister(&stubTool{tools.BaseTool{ToolName: "mcp__mindrian__read_document", ToolDescription: "Read a document"}})

	m := mux.NewRouter()
	NewRouter(&RouterDeps{Tools: reg, Confirmable: confirm.NewToolSet(deleteDoc)}).RegisterRoutes(m)

	rr := httptest.NewRecorder()
	m.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/tools", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}

	var resp ToolsResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 2 {
		t.Fatalf("Expected 2 tools, got %d", resp.Count)
	}
	// sorted by name
	if resp.Tools[0].Name != deleteDoc || !resp.Tools[0].Confirmable {
		t.Errorf("Expected confirmable delete tool first, got %+v", resp.Tools[0])
	}
	if resp.Tools[1].Confirmable {
		t.Errorf("Expected read tool not confirmable, got %+v", resp.Tools[1])
	}
}

func TestHandleListTools_NoRegistry(t *testing.T) {
	m := mux.NewRouter()
	NewRouter(nil).RegisterRoutes(m)

	rr := httptest.NewRecorder()
	m.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/tools", nil))

	var resp ToolsResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 0 {
		t.Errorf("Expected no tools, got %d", resp.Count)
	}
}
