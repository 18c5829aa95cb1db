package escalate

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"time"
)

// Query sends a command to the daemon, auto-starting it when the first
// connection fails. Errors mean the caller should fail safe to ASK.
func Query(socketPath string, req EvalRequest) (*EvalResponse, error) {
	resp, err := sendRequest(socketPath, req)
	if err == nil {
		return resp, nil
	}

	if startErr := StartDaemonProcess(); startErr != nil {
		return nil, fmt.Errorf("failed to start daemon: %w", startErr)
	}

	// Wait up to 2s for the daemon to come up.
	for i := 0; i < 10; i++ {
		time.Sleep(200 * time.Millisecond)
		resp, err = sendRequest(socketPath, req)
		if err == nil {
			return resp, nil
		}
	}

	return nil, fmt.Errorf("daemon not available after retries: %w", err)
}

func sendRequest(socketPath string, req EvalRequest) (*EvalResponse, error) {
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	// Slightly more than the evaluator's 30s timeout.
	conn.SetDeadline(time.Now().Add(35 * time.Second))

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	var resp EvalResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &resp, nil
}

// StartDaemonProcess re-execs this binary in daemon mode, detached.
func StartDaemonProcess() error {
	exePath, err := os.Executable()
	if err != nil {
		return err
	}

	cmd := exec.Command(exePath, "daemon")
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil
	return cmd.Start()
}
