package escalate

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// mockEvaluator returns a fixed response for testing.
type mockEvaluator struct {
	response EvalResponse
	err      error
	called   int
}

func (m *mockEvaluator) Evaluate(ctx context.Context, req EvalRequest) (EvalResponse, error) {
	m.called++
	return m.response, m.err
}

func (m *mockEvaluator) Close() error { return nil }

func startTestDaemon(t *testing.T, mock *mockEvaluator, idle time.Duration) (*Daemon, string, string) {
	t.Helper()
	tmpDir := t.TempDir()
	socketPath := filepath.Join(tmpDir, "test.sock")
	pidPath := filepath.Join(tmpDir, "test.pid")

	d := NewDaemon(mock, DaemonConfig{
		SocketPath:  socketPath,
		PIDPath:     pidPath,
		IdleTimeout: idle,
	})
	go d.Run()
	waitForSocket(t, socketPath, 2*time.Second)
	return d, socketPath, pidPath
}

func TestDaemonAcceptsConnection(t *testing.T) {
	mock := &mockEvaluator{response: EvalResponse{Decision: "ALLOW", Reason: "test safe"}}
	d, socketPath, _ := startTestDaemon(t, mock, 5*time.Second)
	defer d.Shutdown()

	resp := sendTestRequest(t, socketPath, EvalRequest{
		Command: "ls",
		WorkDir: "/proj",
	})

	if resp.Decision != "ALLOW" {
		t.Errorf("expected ALLOW, got %s", resp.Decision)
	}
	if resp.Reason != "test safe" {
		t.Errorf("expected reason 'test safe', got %q", resp.Reason)
	}
	if mock.called != 1 {
		t.Errorf("expected evaluator called once, got %d", mock.called)
	}
}

func TestDaemonMultipleRequests(t *testing.T) {
	mock := &mockEvaluator{response: EvalResponse{Decision: "ASK", Reason: "dangerous"}}
	d, socketPath, _ := startTestDaemon(t, mock, 5*time.Second)
	defer d.Shutdown()

	for i := 0; i < 3; i++ {
		resp := sendTestRequest(t, socketPath, EvalRequest{
			Command: "dd if=/dev/zero of=/dev/sda",
			WorkDir: "/proj",
		})
		if resp.Decision != "ASK" {
			t.Errorf("request %d: expected ASK, got %s", i, resp.Decision)
		}
	}

	if mock.called != 3 {
		t.Errorf("expected evaluator called 3 times, got %d", mock.called)
	}
}

func TestDaemonIdleShutdown(t *testing.T) {
	mock := &mockEvaluator{response: EvalResponse{Decision: "ALLOW", Reason: "safe"}}
	_, socketPath, _ := startTestDaemon(t, mock, 500*time.Millisecond)

	time.Sleep(1 * time.Second)

	if _, err := net.DialTimeout("unix", socketPath, 500*time.Millisecond); err == nil {
		t.Error("expected connection refused after idle shutdown")
	}
}

func TestDaemonEvaluatorError(t *testing.T) {
	mock := &mockEvaluator{err: context.DeadlineExceeded}
	d, socketPath, _ := startTestDaemon(t, mock, 5*time.Second)
	defer d.Shutdown()

	resp := sendTestRequest(t, socketPath, EvalRequest{
		Command: "complex-thing",
		WorkDir: "/proj",
	})

	// Fail-safe to ASK
	if resp.Decision != "ASK" {
		t.Errorf("expected ASK on evaluator error, got %s", resp.Decision)
	}
}

func TestDaemonCleanupOnShutdown(t *testing.T) {
	mock := &mockEvaluator{response: EvalResponse{Decision: "ALLOW", Reason: "safe"}}
	d, socketPath, pidPath := startTestDaemon(t, mock, 5*time.Second)

	d.Shutdown()

	if fileExists(socketPath) {
		t.Error("socket file should be removed after shutdown")
	}
	if fileExists(pidPath) {
		t.Error("PID file should be removed after shutdown")
	}
}

func TestQueryAgainstRunningDaemon(t *testing.T) {
	mock := &mockEvaluator{response: EvalResponse{Decision: "ALLOW", Reason: "safe"}}
	d, socketPath, _ := startTestDaemon(t, mock, 5*time.Second)
	defer d.Shutdown()

	resp, err := Query(socketPath, EvalRequest{Command: "make lint", WorkDir: "/proj"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if resp.Decision != "ALLOW" {
		t.Errorf("expected ALLOW, got %s", resp.Decision)
	}
}

func TestSendRequestNoSocket(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "nonexistent.sock")
	if _, err := sendRequest(socketPath, EvalRequest{Command: "ls"}); err == nil {
		t.Error("expected error when socket does not exist")
	}
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		response string
		want     string
	}{
		{"ALLOW", "ALLOW"},
		{"allow", "ALLOW"},
		{"  ALLOW\n", "ALLOW"},
		{"ASK", "ASK"},
		{"I would ALLOW this", "ALLOW"},
		{"unclear response", "ASK"},
		{"", "ASK"},
	}
	for _, tt := range tests {
		if got := ParseDecision(tt.response); got != tt.want {
			t.Errorf("ParseDecision(%q) = %q, want %q", tt.response, got, tt.want)
		}
	}
}

// --- Test helpers ---

func waitForSocket(t *testing.T, socketPath string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("unix", socketPath, 100*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("socket %s not ready after %s", socketPath, timeout)
}

func sendTestRequest(t *testing.T, socketPath string, req EvalRequest) EvalResponse {
	t.Helper()
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		t.Fatalf("failed to connect to daemon: %v", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(5 * time.Second))

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		t.Fatalf("failed to send request: %v", err)
	}

	var resp EvalResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		t.Fatalf("failed to read response: %v", err)
	}

	return resp
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
