package service

import (
	"context"
	"testing"
	"time"

	"github.com/smazurov/isocam/pkg/camera/hwconfig"
	"github.com/smazurov/isocam/pkg/iidc/sim"
	"github.com/smazurov/isocam/pkg/linuxav/hotplug"
)

func TestWatchDevicesOpensNewCamera(t *testing.T) {
	const first, second = 0x51a0_0000_0000_0001, 0x51a0_0000_0000_0002
	bus := sim.NewBus(simCamera(first))
	m := NewManager(Options{
		Bus:           bus,
		Configs:       hwconfig.Static(fixedConfig()),
		Logger:        quiet(),
		SessionLogger: quiet(),
	})
	t.Cleanup(func() { m.CloseAll("test done") })
	if _, err := m.OpenAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan hotplug.Event)
	done := make(chan struct{})
	go func() {
		m.WatchDevices(ctx, events, 10*time.Millisecond)
		close(done)
	}()

	bus.Attach(simCamera(second))
	// Events that are not video node additions do not trigger a rescan.
	events <- hotplug.Event{Action: hotplug.ActionChange, Subsystem: hotplug.SubsystemVideo4Linux, DevName: "video0"}
	events <- hotplug.Event{Action: hotplug.ActionAdd, Subsystem: hotplug.SubsystemUSB, DevName: "bus/usb/001/009"}
	time.Sleep(50 * time.Millisecond)
	if got := len(m.IDs()); got != 1 {
		t.Fatalf("%d cameras open before the video event, want 1", got)
	}

	events <- hotplug.Event{Action: hotplug.ActionAdd, Subsystem: hotplug.SubsystemVideo4Linux, DevName: "video2"}
	deadline := time.Now().Add(2 * time.Second)
	for len(m.IDs()) != 2 {
		if time.Now().After(deadline) {
			t.Fatalf("cameras open = %v, want both", m.IDs())
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	await(t, done)
}

func TestWatchDevicesStopsOnClosedChannel(t *testing.T) {
	m := NewManager(Options{Bus: sim.NewBus(), Logger: quiet(), SessionLogger: quiet()})
	events := make(chan hotplug.Event)
	done := make(chan struct{})
	go func() {
		m.WatchDevices(context.Background(), events, 0)
		close(done)
	}()
	close(events)
	await(t, done)
}
