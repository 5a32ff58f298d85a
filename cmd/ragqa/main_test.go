package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func ollamaConfig(t *testing.T, dir, url string) string {
	t.Helper()
	return writeFile(t, dir, "config.yaml", "generator:\n  type: ollama\n  ollama:\n    base_url: "+url+"\n    model: test\n")
}

func TestRun_EndToEnd(t *testing.T) {
	var prompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		prompt, _ = req["prompt"].(string)
		json.NewEncoder(w).Encode(map[string]any{"response": "Paris.", "done": true})
	}))
	defer srv.Close()

	dir := t.TempDir()
	doc := writeFile(t, dir, "story.txt", "Paris is the capital of France.\n\nBerlin is the capital of Germany.")
	cfg := ollamaConfig(t, dir, srv.URL)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--doc-path", doc, "--config", cfg, "What is the capital of France?"}, &stdout, &stderr)
	if code != exitOK {
		t.Fatalf("exit %d, stderr: %s", code, stderr.String())
	}
	out := stdout.String()
	for _, want := range []string{"split into 2 chunks", "Question:", "What is the capital of France?", "Answer:", "Paris."} {
		if !strings.Contains(out, want) {
			t.Errorf("stdout missing %q:\n%s", want, out)
		}
	}
	if !strings.Contains(prompt, "Berlin is the capital of Germany.") {
		t.Errorf("prompt missing passage:\n%s", prompt)
	}
}

func TestRun_GenerationFailureStillAnswers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	dir := t.TempDir()
	doc := writeFile(t, dir, "story.txt", "Paris is the capital of France.")
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--doc-path", doc, "--config", ollamaConfig(t, dir, srv.URL), "capital?"}, &stdout, &stderr)
	if code != exitOK {
		t.Fatalf("exit %d, stderr: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "error generating answer:") {
		t.Errorf("expected error answer:\n%s", stdout.String())
	}
}

func TestRun_MissingDocument(t *testing.T) {
	dir := t.TempDir()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--doc-path", filepath.Join(dir, "missing.txt"), "--config", ollamaConfig(t, dir, "http://127.0.0.1:1"), "q"}, &stdout, &stderr)
	if code != exitFatal {
		t.Errorf("exit %d, want %d", code, exitFatal)
	}
	if !strings.Contains(stderr.String(), "could not load document") {
		t.Errorf("stderr: %s", stderr.String())
	}
	if strings.Contains(stdout.String(), "Answer:") {
		t.Error("no answer expected on load failure")
	}
}

func TestRun_Usage(t *testing.T) {
	for _, args := range [][]string{{}, {"a", "b"}, {"--no-such-flag", "q"}} {
		var stdout, stderr bytes.Buffer
		if code := run(context.Background(), args, &stdout, &stderr); code != exitUsage {
			t.Errorf("args %v: exit %d, want %d", args, code, exitUsage)
		}
	}
}

func TestRun_InitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "config.yaml")
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"--init-config", path}, &stdout, &stderr); code != exitOK {
		t.Fatalf("exit %d: %s", code, stderr.String())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "gemini-2.5-flash") {
		t.Errorf("unexpected config:\n%s", data)
	}
}

func TestRun_LoadedLinePrecedesLaterFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	dir := t.TempDir()
	doc := writeFile(t, dir, "story.txt", "Paris is the capital of France.\n\nBerlin is the capital of Germany.")
	cfg := writeFile(t, dir, "config.yaml", "reranker:\n  type: tei\n  tei:\n    url: "+srv.URL+"\ngenerator:\n  type: ollama\n  ollama:\n    base_url: "+srv.URL+"\n")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--doc-path", doc, "--config", cfg, "capital?"}, &stdout, &stderr)
	if code != exitFatal {
		t.Fatalf("exit %d, want %d", code, exitFatal)
	}
	if !strings.Contains(stdout.String(), "split into 2 chunks") {
		t.Errorf("loaded line missing:\n%s", stdout.String())
	}
	if !strings.Contains(stderr.String(), "rerank") {
		t.Errorf("stderr: %s", stderr.String())
	}
}

func TestRun_MissingConfigFile(t *testing.T) {
	dir := t.TempDir()
	doc := writeFile(t, dir, "story.txt", "Paris.")
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--doc-path", doc, "--config", filepath.Join(dir, "typo.yaml"), "q"}, &stdout, &stderr)
	if code != exitFatal {
		t.Errorf("exit %d, want %d", code, exitFatal)
	}
	if !strings.Contains(stderr.String(), "typo.yaml") {
		t.Errorf("stderr should name the missing file: %s", stderr.String())
	}
}
