// Package ipc implements the named-pipe transport described in spec
// section 4.6: two FIFOs in the runtime directory, a PID-file
// single-instance lock, and a bounded outbound queue shared by responses
// and events. Grounded on the teacher's buffered-I/O idiom
// (bufio.Scanner/bufio.Writer in cmd/transform.go) for line framing; the
// FIFO and lockfile mechanics are stdlib since no third-party lockfile or
// named-pipe library appears anywhere in the retrieved pack.
package ipc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/mellowtone/atkd/internal/session"
)

const (
	cmdPipeName  = "atk.cmd"
	respPipeName = "atk.resp"
	pidFileName  = "daemon.pid"

	outboundCapacity = 256
)

// Transport owns the two FIFOs and the PID lockfile for one daemon
// instance's lifetime.
type Transport struct {
	runtimeDir string
	cmdPath    string
	respPath   string
	pidPath    string

	controller *session.Controller
	outbound   chan any
}

// New creates a Transport bound to runtimeDir. Call Acquire before Serve.
func New(runtimeDir string, controller *session.Controller) *Transport {
	return &Transport{
		runtimeDir: runtimeDir,
		cmdPath:    filepath.Join(runtimeDir, cmdPipeName),
		respPath:   filepath.Join(runtimeDir, respPipeName),
		pidPath:    filepath.Join(runtimeDir, pidFileName),
		controller: controller,
		outbound:   make(chan any, outboundCapacity),
	}
}

// Acquire enforces at-most-one running daemon: if the PID file exists and
// names a live process, it returns an error; otherwise it removes stale
// state and creates both FIFOs plus a fresh PID file.
func (t *Transport) Acquire() error {
	if pid, ok := readLivePID(t.pidPath); ok {
		return fmt.Errorf("ipc: daemon already running (pid %d)", pid)
	}

	for _, p := range []string{t.cmdPath, t.respPath, t.pidPath} {
		_ = os.Remove(p)
	}

	if err := syscall.Mkfifo(t.cmdPath, 0o600); err != nil {
		return fmt.Errorf("ipc: mkfifo %s: %w", t.cmdPath, err)
	}
	if err := syscall.Mkfifo(t.respPath, 0o600); err != nil {
		return fmt.Errorf("ipc: mkfifo %s: %w", t.respPath, err)
	}

	if err := os.WriteFile(t.pidPath, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return fmt.Errorf("ipc: write pid file: %w", err)
	}

	return nil
}

// Release unlinks both FIFOs and the PID file. Called on shutdown.
func (t *Transport) Release() {
	for _, p := range []string{t.cmdPath, t.respPath, t.pidPath} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			slog.Warn("ipc: failed to remove", "path", p, "error", err)
		}
	}
}

// readLivePID reports the PID recorded in path, if that process is alive.
func readLivePID(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return 0, false
	}
	if err := syscall.Kill(pid, 0); err != nil {
		return 0, false
	}
	return pid, true
}

// Serve runs the blocking read and write loops until stopCh is closed. Each
// loop re-opens its FIFO end after a client disconnects (FIFOs deliver EOF
// when the last writer closes), so one daemon instance can serve a
// sequence of independent client connections.
func (t *Transport) Serve(stopCh <-chan struct{}) {
	go t.writeLoop(stopCh)
	t.readLoop(stopCh)
}

func (t *Transport) readLoop(stopCh <-chan struct{}) {
	for {
		select {
		case <-stopCh:
			return
		default:
		}

		f, err := os.OpenFile(t.cmdPath, os.O_RDONLY, 0)
		if err != nil {
			slog.Error("ipc: open command pipe", "error", err)
			return
		}

		t.consumeRequests(f, stopCh)
		f.Close()
	}
}

func (t *Transport) consumeRequests(f *os.File, stopCh <-chan struct{}) {
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-stopCh:
			return
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req session.Request
		if err := json.Unmarshal(line, &req); err != nil {
			t.SendResponse(session.Response{
				OK: false,
				Error: map[string]any{
					"message": "malformed request: " + err.Error(),
					"code":    "transport",
				},
			})
			continue
		}

		resp := t.controller.Dispatch(req)
		t.SendResponse(resp)
	}
}

func (t *Transport) writeLoop(stopCh <-chan struct{}) {
	for {
		f, err := os.OpenFile(t.respPath, os.O_WRONLY, 0)
		if err != nil {
			select {
			case <-stopCh:
				return
			default:
				slog.Error("ipc: open response pipe", "error", err)
				return
			}
		}

		t.drainOutbound(f, stopCh)
		f.Close()
	}
}

// drainOutbound writes frames until the peer disconnects (a broken-pipe
// write error), at which point it returns so writeLoop can reopen the pipe
// for the next client, per spec section 4.6's "writer must treat
// broken-pipe as recoverable" requirement.
func (t *Transport) drainOutbound(f *os.File, stopCh <-chan struct{}) {
	w := bufio.NewWriter(f)
	for {
		select {
		case <-stopCh:
			return
		case frame := <-t.outbound:
			line, err := json.Marshal(frame)
			if err != nil {
				slog.Error("ipc: marshal frame", "error", err)
				continue
			}
			line = append(line, '\n')

			if _, err := w.Write(line); err != nil {
				if isBrokenPipe(err) {
					return
				}
				slog.Warn("ipc: write failed", "error", err)
				return
			}
			if err := w.Flush(); err != nil {
				if isBrokenPipe(err) {
					return
				}
				slog.Warn("ipc: flush failed", "error", err)
				return
			}
		}
	}
}

func isBrokenPipe(err error) bool {
	return errors.Is(err, syscall.EPIPE)
}

// SendResponse implements session.Sink. Responses are privileged: the send
// blocks rather than drop, per spec section 4.6.
func (t *Transport) SendResponse(resp session.Response) {
	t.outbound <- resp
}

// SendEvent implements session.Sink. Events are lossy: on a full queue the
// new event is dropped rather than blocking the control task, per spec
// section 4.6's "drop-newest on overflow for events".
func (t *Transport) SendEvent(msg session.EventMessage) {
	select {
	case t.outbound <- msg:
	default:
		slog.Warn("ipc: outbound queue full, dropping event", "event", msg.Event)
	}
}
