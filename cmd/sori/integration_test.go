package main

import (
	"context"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/sapie-ai/sori/internal/tuitest"
)

// The client must come up and render even when the backend is unreachable:
// the session list falls back to the local snapshot and the UI stays usable.
func TestClientStartsWithoutBackend(t *testing.T) {
	t.Parallel()

	cmdDir := moduleDir(t)
	binary := buildBinary(t, cmdDir)
	dataDir := t.TempDir()

	capture, err := tuitest.Run(context.Background(), tuitest.Options{
		Command: []string{binary, "-no-alt-screen"},
		Dir:     cmdDir,
		Env: []string{
			"SORI_API_URL=http://127.0.0.1:1",
			"SORI_DATA_DIR=" + dataDir,
		},
		Cols: 120,
		Rows: 36,
		Script: []tuitest.Step{
			{Wait: 2 * time.Second},
			{Keys: tuitest.KeyCtrlC},
		},
		Timeout:        15 * time.Second,
		AllowInterrupt: true,
	})
	if err != nil {
		t.Fatalf("run client: %v", err)
	}

	if !capture.Contains("소리 SORI") {
		t.Fatalf("hero missing from render:\n%s", capture.LastScreen())
	}
	if !capture.Contains("대화 목록") {
		t.Fatalf("sidebar missing from render:\n%s", capture.LastScreen())
	}
}

func moduleDir(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime caller unavailable")
	}
	return filepath.Dir(file)
}

func buildBinary(t *testing.T, cmdDir string) string {
	t.Helper()
	name := "sori-integration"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	binPath := filepath.Join(t.TempDir(), name)
	cmd := exec.Command("go", "build", "-o", binPath, ".")
	cmd.Dir = cmdDir
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("build client: %v\n%s", err, output)
	}
	return binPath
}
