package tools

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(newEcho("b")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	r.MustRegister(newEcho("a"))

	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
	if err := r.Register(newEcho("a")); !errors.Is(err, ErrToolAlreadyExists) {
		t.Errorf("duplicate Register err = %v", err)
	}
	if err := r.Register(nil); !errors.Is(err, ErrInvalidArgs) {
		t.Errorf("nil Register err = %v", err)
	}
	if err := r.Register(newEcho("")); !errors.Is(err, ErrInvalidArgs) {
		t.Errorf("empty name Register err = %v", err)
	}

	list := r.List()
	if len(list) != 2 || list[0].Name() != "a" || list[1].Name() != "b" {
		t.Errorf("List() not sorted: %v", list)
	}

	if _, ok := r.Get("a"); !ok {
		t.Error("Get(a) not found")
	}
	if _, ok := r.Get("zzz"); ok {
		t.Error("Get(zzz) found")
	}
}

func TestRegistry_Execute(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(newEcho("echo"))

	res, err := r.Execute(context.Background(), "echo", map[string]any{"message": "hi"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Content != "hi" {
		t.Errorf("Content = %q, want hi", res.Content)
	}

	if _, err := r.Execute(context.Background(), "missing", nil); !errors.Is(err, ErrToolNotFound) {
		t.Errorf("Execute(missing) err = %v", err)
	}
}

func TestRegistryConcurrency(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = r.Register(newEcho(fmt.Sprintf("tool_%d", i)))
			_ = r.List()
			_, _ = r.Get("tool_0")
		}(i)
	}
	wg.Wait()

	if r.Len() != 20 {
		t.Errorf("Len() = %d, want 20", r.Len())
	}
}
