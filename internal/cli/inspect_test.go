package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const minimalSpecYAML = `openapi: 3.0.3
info:
  title: Pet Store
  version: 1.0.0
servers:
  - url: https://petstore.example.com/v1
paths:
  /pets:
    get:
      summary: List pets
      responses:
        "200":
          description: ok
    post:
      summary: Create a pet
      responses:
        "201":
          description: created
  /pets/{id}:
    get:
      summary: Show a pet
      parameters:
        - name: id
          in: path
          required: true
          schema:
            type: string
      responses:
        "200":
          description: ok
`

// captureStdout runs fn with os.Stdout redirected and returns what it wrote.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	orig := os.Stdout
	os.Stdout = w
	done := make(chan string)
	go func() {
		data, _ := io.ReadAll(r)
		done <- string(data)
	}()
	defer func() { os.Stdout = orig }()
	fn()
	_ = w.Close()
	return <-done
}

func TestInspect_ListsEndpoints(t *testing.T) {
	path := filepath.Join(t.TempDir(), "openapi.yaml")
	if err := os.WriteFile(path, []byte(minimalSpecYAML), 0o600); err != nil {
		t.Fatalf("write spec: %v", err)
	}

	var execErr error
	out := captureStdout(t, func() {
		root := NewRootCmd()
		root.SetOut(io.Discard)
		root.SetErr(io.Discard)
		root.SetArgs([]string{"inspect", path})
		execErr = root.Execute()
	})
	if execErr != nil {
		t.Fatalf("inspect execute: %v", execErr)
	}
	for _, want := range []string{"Pet Store 1.0.0", "Endpoints: 3", "/pets/{id}", "Show a pet", "Conformance: valid"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestInspect_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "openapi.yaml")
	if err := os.WriteFile(path, []byte(minimalSpecYAML), 0o600); err != nil {
		t.Fatalf("write spec: %v", err)
	}

	var execErr error
	out := captureStdout(t, func() {
		execErr = runInspect(context.Background(), &InspectConfig{Input: path, JSON: true})
	})
	if execErr != nil {
		t.Fatalf("inspect: %v", execErr)
	}
	if !strings.Contains(out, `"endpoints": [`) || !strings.Contains(out, `"title": "Pet Store"`) {
		t.Fatalf("unexpected json output:\n%s", out)
	}
}

func TestInspect_MissingFileIsUsageError(t *testing.T) {
	root := NewRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"inspect", filepath.Join(t.TempDir(), "missing.yaml")})

	err := root.Execute()
	if !errors.Is(err, ErrUsage) {
		t.Fatalf("expected usage error, got %T: %v", err, err)
	}
	if !strings.Contains(err.Error(), "Location:") {
		t.Fatalf("expected location in message: %v", err)
	}
}

func TestInspect_NotASpec(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.yaml")
	if err := os.WriteFile(path, []byte("shopping:\n  - milk\n"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	err := runInspect(context.Background(), &InspectConfig{Input: path})
	if !errors.Is(err, ErrUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
}
