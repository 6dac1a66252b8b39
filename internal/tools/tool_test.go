package tools

import (
	"context"
	"errors"
	"testing"
)

type mockTool struct {
	BaseTool
	execFn func(ctx context.Context, args map[string]any) (Result, error)
}

func (m *mockTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	return m.execFn(ctx, args)
}

func newEcho(name string) *mockTool {
	return &mockTool{
		BaseTool: BaseTool{ToolName: name, ToolDescription: "Echoes the input"},
		execFn: func(_ context.Context, args map[string]any) (Result, error) {
			msg, _ := args["message"].(string)
			return NewSuccessResult(msg), nil
		},
	}
}

func TestResult(t *testing.T) {
	ok := NewSuccessResult("ok")
	if ok.IsError || ok.String() != "ok" {
		t.Errorf("success result = %+v", ok)
	}

	bad := NewErrorResult("failed")
	if !bad.IsError {
		t.Error("expected IsError to be true")
	}
	if bad.String() != "[error] failed" {
		t.Errorf("String() = %q", bad.String())
	}
}

func TestBaseTool(t *testing.T) {
	bt := &BaseTool{
		ToolName:        "test_tool",
		ToolDescription: "A test tool",
		ToolParameters:  map[string]any{"type": "object", "required": []string{"a"}},
	}
	if bt.Name() != "test_tool" || bt.Description() != "A test tool" {
		t.Errorf("unexpected base tool %+v", bt)
	}
	if _, ok := bt.Parameters()["required"]; !ok {
		t.Error("expected custom parameters")
	}

	empty := &BaseTool{ToolName: "nil_params"}
	if empty.Parameters()["type"] != "object" {
		t.Error("expected default params type to be 'object'")
	}
}

func TestCallContext(t *testing.T) {
	if _, ok := CallContextFrom(context.Background()); ok {
		t.Fatal("expected no call context")
	}

	cc := CallContext{SessionID: "s1", UserID: "u1", WorkspaceID: "w1", ToolCallID: "t1"}
	got, ok := CallContextFrom(WithCallContext(context.Background(), cc))
	if !ok || got != cc {
		t.Errorf("CallContextFrom = %+v, %v", got, ok)
	}
}

func TestErrors(t *testing.T) {
	notFound := NewToolNotFoundError("missing")
	if !errors.Is(notFound, ErrToolNotFound) {
		t.Error("expected error to match ErrToolNotFound")
	}
	if notFound.Error() != "tool not found: missing" {
		t.Errorf("Error() = %q", notFound.Error())
	}

	dup := NewToolAlreadyExistsError("echo")
	if !errors.Is(dup, ErrToolAlreadyExists) {
		t.Error("expected error to match ErrToolAlreadyExists")
	}

	cause := errors.New("bad json")
	invalid := NewInvalidArgsError("echo", "decode", cause)
	if !errors.Is(invalid, cause) {
		t.Error("expected cause to unwrap")
	}
	if invalid.Error() != "invalid arguments for tool echo: decode: bad json" {
		t.Errorf("Error() = %q", invalid.Error())
	}
	if !errors.Is(NewInvalidArgsError("echo", "missing field", nil), ErrInvalidArgs) {
		t.Error("expected error to match ErrInvalidArgs")
	}
}

func TestErrors_AsToolError(t *testing.T) {
	var te *Error
	if !errors.As(NewToolAlreadyExistsError("echo"), &te) || te.Tool != "echo" {
		t.Fatalf("errors.As = %+v", te)
	}
	if errors.Is(te, ErrToolNotFound) {
		t.Error("already-exists error must not match ErrToolNotFound")
	}
}
