package extensions

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	fetchgraph "github.com/fetchgraph/fetchgraph"
)

func TestGraphDebugExtension_OnError(t *testing.T) {
	var buf bytes.Buffer
	multiWriter := io.MultiWriter(&buf, os.Stdout)
	handler := NewHumanHandler(multiWriter, slog.LevelError)

	storage := fetchgraph.P("storage")
	userService := fetchgraph.P("user_service")

	prescription := fetchgraph.Prescription{
		storage: fetchgraph.NewSource(func(context.Context, *fetchgraph.ResolvedSource) (*fetchgraph.Result, error) {
			return fetchgraph.Success("storage-value"), nil
		}, fetchgraph.WithID("storage")),
		userService: fetchgraph.NewSource(func(context.Context, *fetchgraph.ResolvedSource) (*fetchgraph.Result, error) {
			return nil, errors.New("type assertion failed")
		}, fetchgraph.WithID("user_service"), fetchgraph.WithParams(fetchgraph.ParamsMap(map[string]fetchgraph.Value{
			"storage": fetchgraph.RefValue(fetchgraph.Ref(storage)),
		}))),
	}

	ext := NewGraphDebugExtension(prescription, handler)
	h := fetchgraph.Fill(prescription, fetchgraph.WithFillExtension(ext))
	defer h.Close()

	summary := fetchgraph.Collect(fetchgraph.Select(h, []fetchgraph.Path{userService}))
	if summary.Success {
		t.Fatal("expected failure")
	}

	output := buf.String()
	if !strings.Contains(output, "[GraphDebug] Dependency Resolution Error") {
		t.Error("expected dependency-resolution-error header")
	}
	if !strings.Contains(output, "Dependency Graph:") {
		t.Error("expected dependency graph section")
	}
	if !strings.Contains(output, "storage") {
		t.Error("expected 'storage' node in rendered graph")
	}
}

func TestSilentHandler(t *testing.T) {
	handler := NewSilentHandler()

	if handler.Enabled(context.Background(), slog.LevelError) {
		t.Error("expected SilentHandler to be disabled for all levels")
	}

	if err := handler.Handle(context.Background(), slog.Record{}); err != nil {
		t.Errorf("expected Handle to return nil, got %v", err)
	}

	if handler.WithAttrs(nil) != handler {
		t.Error("expected WithAttrs to return self")
	}
	if handler.WithGroup("g") != handler {
		t.Error("expected WithGroup to return self")
	}

	failing := fetchgraph.P("failing")
	prescription := fetchgraph.Prescription{
		failing: fetchgraph.NewSource(func(context.Context, *fetchgraph.ResolvedSource) (*fetchgraph.Result, error) {
			return nil, errors.New("intentional error")
		}, fetchgraph.WithID("failing")),
	}

	ext := NewGraphDebugExtension(prescription, handler)
	h := fetchgraph.Fill(prescription, fetchgraph.WithFillExtension(ext))
	defer h.Close()

	summary := fetchgraph.Collect(fetchgraph.Select(h, []fetchgraph.Path{failing}))
	if summary.Success {
		t.Error("expected failure from failing source")
	}
}
