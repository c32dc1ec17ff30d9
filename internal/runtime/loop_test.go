package runtime

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// TestDrainWakeupPipeReturnsOnEmptyNonblockingPipe guards against the
// self-pipe drain parking forever once its one signal byte is
// consumed: on a still-open pipe a blocking Read never sees EOF, so
// without SetNonblock + a raw unix.Read this loop would hang instead
// of returning control to epoll_wait.
func TestDrainWakeupPipeReturnsOnEmptyNonblockingPipe(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()
	require.NoError(t, unix.SetNonblock(int(r.Fd()), true))

	_, err = w.Write([]byte{0})
	require.NoError(t, err)

	s := &Scheduler{wakeupR: r}

	done := make(chan struct{})
	go func() {
		s.drainWakeupPipe()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("drainWakeupPipe blocked instead of returning on an empty non-blocking pipe")
	}
}
