package escalate

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// DaemonConfig holds daemon paths and the idle shutdown timeout.
type DaemonConfig struct {
	SocketPath  string
	PIDPath     string
	IdleTimeout time.Duration
}

// Daemon is a persistent Unix socket server evaluating escalated commands.
type Daemon struct {
	evaluator    Evaluator
	config       DaemonConfig
	listener     net.Listener
	shuttingDown atomic.Bool
	wg           sync.WaitGroup
}

// NewDaemon creates a daemon with the given evaluator and config.
func NewDaemon(evaluator Evaluator, config DaemonConfig) *Daemon {
	return &Daemon{
		evaluator: evaluator,
		config:    config,
	}
}

// Run listens on the socket and blocks until SIGTERM, SIGINT, or the idle
// timeout elapses with no requests.
func (d *Daemon) Run() error {
	socketPath := d.config.SocketPath
	pidPath := d.config.PIDPath

	os.MkdirAll(filepath.Dir(socketPath), 0o755)

	// Refuse to start twice.
	conn, err := net.DialTimeout("unix", socketPath, 1*time.Second)
	if err == nil {
		conn.Close()
		return fmt.Errorf("daemon already running at %s", socketPath)
	}

	// Remove stale socket file
	os.Remove(socketPath)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	d.listener = listener

	os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0o644)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	idleTimeout := d.config.IdleTimeout
	if idleTimeout == 0 {
		idleTimeout = 5 * time.Minute
	}
	idleTimer := time.NewTimer(idleTimeout)

	done := make(chan struct{})

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				if d.shuttingDown.Load() {
					return
				}
				continue
			}
			idleTimer.Reset(idleTimeout)
			d.wg.Add(1)
			// Requests are handled sequentially; the hook sends one at a time.
			d.handleConnection(conn)
			d.wg.Done()
		}
	}()

	go func() {
		select {
		case <-sigCh:
		case <-idleTimer.C:
		}
		close(done)
	}()

	<-done
	d.Shutdown()
	return nil
}

func (d *Daemon) handleConnection(conn net.Conn) {
	defer conn.Close()

	// Deadline covers the whole request/response cycle.
	conn.SetDeadline(time.Now().Add(35 * time.Second))

	var req EvalRequest
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		resp := EvalResponse{Decision: "ASK", Reason: "failed to decode request: " + err.Error()}
		json.NewEncoder(conn).Encode(resp)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := d.evaluator.Evaluate(ctx, req)
	if err != nil {
		resp = EvalResponse{Decision: "ASK", Reason: "evaluator error: " + err.Error()}
	}

	json.NewEncoder(conn).Encode(resp)
}

// Shutdown stops the daemon and removes the socket and PID files.
func (d *Daemon) Shutdown() {
	if !d.shuttingDown.CompareAndSwap(false, true) {
		return
	}

	if d.listener != nil {
		d.listener.Close()
	}

	d.wg.Wait()

	os.Remove(d.config.SocketPath)
	os.Remove(d.config.PIDPath)

	d.evaluator.Close()
}

// Status reports whether a daemon is running at the configured paths. It
// cleans up stale PID and socket files left by a crashed daemon.
func Status(socketPath, pidPath string) (string, error) {
	pid, err := readPIDFile(pidPath)
	if err != nil {
		return "", fmt.Errorf("not running")
	}

	if !processAlive(pid) {
		os.Remove(pidPath)
		os.Remove(socketPath)
		return "", fmt.Errorf("not running (stale PID %d)", pid)
	}

	conn, err := net.DialTimeout("unix", socketPath, 1*time.Second)
	if err != nil {
		return "", fmt.Errorf("process %d alive but socket not responding", pid)
	}
	conn.Close()

	return fmt.Sprintf("running (PID %d)", pid), nil
}

// Stop signals the running daemon and waits for the socket to disappear.
func Stop(socketPath, pidPath string) (string, error) {
	pid, err := readPIDFile(pidPath)
	if err != nil {
		return "not running", nil
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		os.Remove(pidPath)
		os.Remove(socketPath)
		return fmt.Sprintf("process %d not found, cleaned up", pid), nil
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		os.Remove(pidPath)
		os.Remove(socketPath)
		return fmt.Sprintf("could not signal %d, cleaned up", pid), nil
	}

	for i := 0; i < 20; i++ {
		time.Sleep(100 * time.Millisecond)
		if _, err := os.Stat(socketPath); os.IsNotExist(err) {
			return fmt.Sprintf("stopped (PID %d)", pid), nil
		}
	}

	return "", fmt.Errorf("sent SIGTERM to %d but socket still exists", pid)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
