package ipc

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/mellowtone/atkd/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireCreatesFifosAndPidFile(t *testing.T) {
	dir := t.TempDir()
	tr := New(dir, nil)

	require.NoError(t, tr.Acquire())
	t.Cleanup(tr.Release)

	for _, name := range []string{cmdPipeName, respPipeName, pidFileName} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err)
		if name != pidFileName {
			assert.True(t, info.Mode()&os.ModeNamedPipe != 0, "%s must be a FIFO", name)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, pidFileName))
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))
}

func TestAcquireRejectsWhenAlreadyRunning(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, pidFileName), []byte(strconv.Itoa(os.Getpid())), 0o600))

	tr := New(dir, nil)
	err := tr.Acquire()
	assert.Error(t, err, "acquiring with a live PID already recorded must fail")
}

func TestAcquireRemovesStalePidFile(t *testing.T) {
	dir := t.TempDir()
	// PID 1 << 30 is never a real live process on a test host.
	require.NoError(t, os.WriteFile(filepath.Join(dir, pidFileName), []byte("1073741824"), 0o600))

	tr := New(dir, nil)
	require.NoError(t, tr.Acquire())
	t.Cleanup(tr.Release)

	data, err := os.ReadFile(filepath.Join(dir, pidFileName))
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))
}

func TestReleaseRemovesAllThreeFiles(t *testing.T) {
	dir := t.TempDir()
	tr := New(dir, nil)
	require.NoError(t, tr.Acquire())

	tr.Release()

	for _, name := range []string{cmdPipeName, respPipeName, pidFileName} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.True(t, os.IsNotExist(err), "%s must be removed by Release", name)
	}
}

// SendEvent must drop rather than block when the outbound queue is full,
// per spec section 4.6's drop-newest-on-overflow rule for events.
func TestSendEventDropsOnFullQueue(t *testing.T) {
	tr := New(t.TempDir(), nil)
	tr.outbound = make(chan any, 2)

	tr.SendEvent(session.EventMessage{Event: "a"})
	tr.SendEvent(session.EventMessage{Event: "b"})

	done := make(chan struct{})
	go func() {
		tr.SendEvent(session.EventMessage{Event: "c"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SendEvent blocked instead of dropping on a full queue")
	}

	assert.Len(t, tr.outbound, 2, "queue length must stay at capacity, the third event dropped")
}

// SendResponse must block rather than drop, since responses are privileged.
func TestSendResponseBlocksOnFullQueue(t *testing.T) {
	tr := New(t.TempDir(), nil)
	tr.outbound = make(chan any, 1)
	tr.SendResponse(session.Response{ID: "1"})

	blocked := make(chan struct{})
	go func() {
		tr.SendResponse(session.Response{ID: "2"})
		close(blocked)
	}()

	select {
	case <-blocked:
		t.Fatal("SendResponse returned without the consumer draining the queue")
	case <-time.After(100 * time.Millisecond):
	}

	<-tr.outbound
	select {
	case <-blocked:
	case <-time.After(time.Second):
		t.Fatal("SendResponse never unblocked once the queue had room")
	}
}
