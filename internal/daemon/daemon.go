// Package daemon manages the background daemon's pidfile lifecycle and
// exposes a thin loopback-only HTTP endpoint (/healthz, /stats) for
// operator introspection. The memory engine itself has no network API;
// this endpoint reports process/engine health to local tooling only,
// owned directly by the daemon that holds the Engine handle.
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/mycelicmemory/memengine/internal/engine"
	"github.com/mycelicmemory/memengine/internal/logging"
)

var log = logging.GetLogger("daemon")

const (
	PIDFileName   = "memengine.pid"
	StateFileName = "memengine.state"
	LockFileName  = "memengine.lock"
)

// State represents the daemon state persisted to disk.
type State struct {
	PID        int       `json:"pid"`
	StartTime  time.Time `json:"start_time"`
	Version    string    `json:"version"`
	HealthHost string    `json:"health_host"`
	HealthPort int       `json:"health_port"`
}

// Status represents the current daemon status.
type Status struct {
	Running    bool          `json:"running"`
	PID        int           `json:"pid,omitempty"`
	Uptime     time.Duration `json:"uptime,omitempty"`
	Version    string        `json:"version,omitempty"`
	HealthHost string        `json:"health_host,omitempty"`
	HealthPort int           `json:"health_port,omitempty"`
}

// Daemon manages the memengine daemon lifecycle: pidfile, advisory
// lock, and a read-only loopback health endpoint backed by an Engine.
type Daemon struct {
	configDir  string
	version    string
	lock       *flock.Flock
	httpServer *http.Server
}

// New creates a new Daemon instance.
func New(configDir, version string) *Daemon {
	return &Daemon{
		configDir: configDir,
		version:   version,
		lock:      flock.New(filepath.Join(configDir, LockFileName)),
	}
}

func (d *Daemon) PIDPath() string   { return filepath.Join(d.configDir, PIDFileName) }
func (d *Daemon) StatePath() string { return filepath.Join(d.configDir, StateFileName) }

// acquireLock takes the advisory file lock that guards against two
// daemons starting concurrently, replacing a hand-rolled pidfile
// existence check with gofrs/flock's OS-level advisory lock.
func (d *Daemon) acquireLock() (bool, error) {
	return d.lock.TryLock()
}

func (d *Daemon) releaseLock() error {
	return d.lock.Unlock()
}

func (d *Daemon) WritePID() error {
	return os.WriteFile(d.PIDPath(), []byte(strconv.Itoa(os.Getpid())), 0644)
}

func (d *Daemon) ReadPID() (int, error) {
	data, err := os.ReadFile(d.PIDPath())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(string(data))
}

func (d *Daemon) RemovePID() error { return os.Remove(d.PIDPath()) }

func (d *Daemon) WriteState(state *State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(d.StatePath(), data, 0644)
}

func (d *Daemon) ReadState() (*State, error) {
	data, err := os.ReadFile(d.StatePath())
	if err != nil {
		return nil, err
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (d *Daemon) RemoveState() error { return os.Remove(d.StatePath()) }

// IsRunning checks if the daemon is currently running, using the
// advisory lock rather than a bare PID-file existence check (a lock
// held by a dead process is released by the OS automatically).
func (d *Daemon) IsRunning() bool {
	locked, err := d.lock.TryLock()
	if err != nil {
		return false
	}
	if locked {
		d.lock.Unlock()
		return false
	}
	return true
}

// Status returns the current daemon status.
func (d *Daemon) Status() *Status {
	status := &Status{Running: d.IsRunning()}
	if !status.Running {
		return status
	}

	pid, err := d.ReadPID()
	if err == nil {
		status.PID = pid
	}
	state, err := d.ReadState()
	if err == nil {
		status.Version = state.Version
		status.HealthHost = state.HealthHost
		status.HealthPort = state.HealthPort
		status.Uptime = time.Since(state.StartTime)
	}
	return status
}

// Start acquires the advisory lock, writes the pidfile/state, and
// starts the loopback health endpoint backed by eng. It blocks until
// ctx is cancelled, then shuts the HTTP server down and releases the
// lock.
func (d *Daemon) Start(ctx context.Context, eng *engine.Engine, healthHost string, healthPort int) error {
	locked, err := d.acquireLock()
	if err != nil {
		return fmt.Errorf("acquire daemon lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("daemon is already running")
	}

	if err := d.WritePID(); err != nil {
		d.releaseLock()
		return fmt.Errorf("write pid file: %w", err)
	}
	state := &State{
		PID: os.Getpid(), StartTime: time.Now(), Version: d.version,
		HealthHost: healthHost, HealthPort: healthPort,
	}
	if err := d.WriteState(state); err != nil {
		d.RemovePID()
		d.releaseLock()
		return fmt.Errorf("write state file: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", d.healthzHandler(eng))
	mux.HandleFunc("/stats", d.statsHandler(eng))
	d.httpServer = &http.Server{Addr: fmt.Sprintf("%s:%d", healthHost, healthPort), Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting daemon health endpoint", "addr", d.httpServer.Addr)
		if err := d.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("daemon shutdown signal received")
	case err := <-errCh:
		log.Error("health endpoint failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d.httpServer.Shutdown(shutdownCtx)
	d.Cleanup()
	return nil
}

func (d *Daemon) healthzHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		embedderUp, structurerUp := eng.Ping(ctx)
		json.NewEncoder(w).Encode(map[string]any{
			"status":        "ok",
			"embedder_up":   embedderUp,
			"structurer_up": structurerUp,
		})
	}
}

func (d *Daemon) statsHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := eng.Stats()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(stats)
	}
}

// Stop stops the daemon by sending SIGTERM to the running process.
func (d *Daemon) Stop() error {
	pid, err := d.ReadPID()
	if err != nil {
		return fmt.Errorf("daemon is not running (no PID file)")
	}
	if !d.IsRunning() {
		d.RemovePID()
		d.RemoveState()
		return fmt.Errorf("daemon is not running (stale PID file)")
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send SIGTERM: %w", err)
	}

	for i := 0; i < 50; i++ {
		if !d.IsRunning() {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	log.Warn("daemon did not stop gracefully, sending SIGKILL", "pid", pid)
	if err := process.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to send SIGKILL: %w", err)
	}
	d.RemovePID()
	d.RemoveState()
	return nil
}

// Cleanup removes PID/state files and releases the advisory lock.
func (d *Daemon) Cleanup() {
	d.RemovePID()
	d.RemoveState()
	d.releaseLock()
}

// Daemonize forks the current process and runs it as a daemon. Returns
// true if this call is in the child process (always false here: the
// parent always returns after spawning).
func (d *Daemon) Daemonize(args []string) (bool, error) {
	if d.IsRunning() {
		return false, fmt.Errorf("daemon is already running")
	}

	executable, err := os.Executable()
	if err != nil {
		return false, fmt.Errorf("failed to get executable path: %w", err)
	}

	cmd := exec.Command(executable, args...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = nil, nil, nil
	setProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return false, fmt.Errorf("failed to start daemon: %w", err)
	}
	return false, nil
}

// ProcessInfo represents information about a running process.
type ProcessInfo struct {
	PID     int           `json:"pid"`
	Type    string        `json:"type"`
	Uptime  time.Duration `json:"uptime"`
	Version string        `json:"version"`
}

// ListProcesses returns a list of running memengine daemon processes.
func (d *Daemon) ListProcesses() ([]ProcessInfo, error) {
	var processes []ProcessInfo
	status := d.Status()
	if status.Running {
		processes = append(processes, ProcessInfo{PID: status.PID, Type: "daemon", Uptime: status.Uptime, Version: status.Version})
	}
	return processes, nil
}

// KillAll stops the daemon if running.
func (d *Daemon) KillAll() (int, error) {
	if d.IsRunning() {
		if err := d.Stop(); err == nil {
			return 1, nil
		}
	}
	return 0, nil
}
