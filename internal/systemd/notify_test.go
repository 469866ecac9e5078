package systemd

import (
	"context"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// listen binds a notify socket and points NOTIFY_SOCKET at it.
func listen(t *testing.T) *net.UnixConn {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notify.sock")
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	t.Setenv("NOTIFY_SOCKET", path)
	return conn
}

func read(t *testing.T, conn *net.UnixConn) string {
	t.Helper()
	buf := make([]byte, 1024)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read notification: %v", err)
	}
	return string(buf[:n])
}

func TestNotifications(t *testing.T) {
	conn := listen(t)
	n := NewNotifier(quiet())

	tests := []struct {
		name string
		send func() bool
		want []string
	}{
		{"ready", func() bool { return n.Ready(3) }, []string{"READY=1", "STATUS=Serving 3 cameras"}},
		{"status", func() bool { return n.Status("reconnecting %s", "cam0") }, []string{"STATUS=reconnecting cam0"}},
		{"stopping", n.Stopping, []string{"STOPPING=1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.send() {
				t.Fatal("notification not sent")
			}
			got := read(t, conn)
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("notification %q missing %q", got, want)
				}
			}
		})
	}
}

func TestNotifyWithoutSocket(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	if NewNotifier(quiet()).Ready(1) {
		t.Error("Ready() reported sent without a notify socket")
	}
}

func TestWatchdog(t *testing.T) {
	conn := listen(t)
	t.Setenv("WATCHDOG_USEC", "20000")
	t.Setenv("WATCHDOG_PID", "")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewNotifier(quiet()).Watchdog(ctx, func() bool { return true })
		close(done)
	}()

	if got := read(t, conn); got != "WATCHDOG=1" {
		t.Errorf("watchdog ping = %q", got)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Watchdog did not return after cancel")
	}
}

func TestWatchdogDisabled(t *testing.T) {
	t.Setenv("WATCHDOG_USEC", "")
	done := make(chan struct{})
	go func() {
		NewNotifier(quiet()).Watchdog(context.Background(), nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Watchdog blocked without a watchdog configured")
	}
}
