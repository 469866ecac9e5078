package sim

import (
	"errors"
	"fmt"
	"time"

	"github.com/smazurov/isocam/pkg/iidc"
)

// maxBacklog bounds how many frame periods advance replays after a long pause.
const maxBacklog = 64

func (c *Camera) SetupCapture(buffers int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("SetupCapture"); err != nil {
		return err
	}
	if c.capturing {
		return errBusy
	}
	if buffers < 1 {
		return fmt.Errorf("%w: %d buffers", iidc.ErrOutOfRange, buffers)
	}
	size := c.bufferBytes()
	c.buffers = make([][]byte, buffers)
	c.free = make([]int, 0, buffers)
	for i := range c.buffers {
		c.buffers[i] = make([]byte, size)
		c.free = append(c.free, i)
	}
	c.ready = nil
	c.out = make(map[int]bool)
	c.capturing = true
	c.lastTick = c.now()
	c.counters.Setups++
	return nil
}

func (c *Camera) StopCapture() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("StopCapture"); err != nil {
		return err
	}
	c.stopCapture()
	return nil
}

func (c *Camera) stopCapture() {
	c.capturing = false
	c.buffers = nil
	c.free = nil
	c.ready = nil
	c.out = make(map[int]bool)
	c.cond.Broadcast()
}

func (c *Camera) Dequeue(p iidc.DequeuePolicy) (*iidc.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("Dequeue"); err != nil {
		return nil, err
	}
	for {
		if c.closed {
			return nil, iidc.ErrClosed
		}
		if !c.capturing {
			return nil, iidc.ErrNotCapturing
		}
		c.advance()
		if len(c.ready) > 0 {
			return c.pop(), nil
		}
		if p == iidc.DequeuePoll {
			return nil, nil
		}
		if !c.manual && (c.transmitting || c.oneShot) {
			wait := c.untilNextFrame()
			c.mu.Unlock()
			time.Sleep(wait)
			c.mu.Lock()
			continue
		}
		c.cond.Wait()
	}
}

func (c *Camera) Enqueue(f *iidc.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("Enqueue"); err != nil {
		return err
	}
	if f == nil {
		return iidc.ErrBufferInvalid
	}
	if !c.capturing {
		return iidc.ErrNotCapturing
	}
	if !c.out[f.Index] {
		return fmt.Errorf("%w: index %d", iidc.ErrBufferInvalid, f.Index)
	}
	delete(c.out, f.Index)
	c.free = append(c.free, f.Index)
	return nil
}

// Emit produces up to n frames as if the sensor had exposed them: a
// pending one-shot completes first, further frames need continuous
// transmission. It returns how many frames were produced; frames with no
// free buffer count as dropped.
func (c *Camera) Emit(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	produced := 0
	for i := 0; i < n && c.capturing; i++ {
		switch {
		case c.oneShot:
			c.oneShot = false
		case c.transmitting:
		default:
			return produced
		}
		if c.produce(c.now()) {
			produced++
		}
	}
	return produced
}

// CompleteOneShot clears a pending one-shot as if its frame had been lost.
func (c *Camera) CompleteOneShot() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.oneShot = false
}

// advance materializes the frames the wall clock says were sent since the
// last call.
func (c *Camera) advance() {
	if c.manual || !c.capturing {
		return
	}
	now := c.now()
	period := c.period()
	if c.oneShot {
		if now.Sub(c.oneShotAt) >= period {
			c.oneShot = false
			c.produce(now)
		}
		return
	}
	if !c.transmitting {
		c.lastTick = now
		return
	}
	for i := 0; !c.lastTick.Add(period).After(now); i++ {
		if i == maxBacklog {
			c.lastTick = now
			break
		}
		c.lastTick = c.lastTick.Add(period)
		c.produce(c.lastTick)
	}
}

func (c *Camera) untilNextFrame() time.Duration {
	var next time.Time
	if c.oneShot {
		next = c.oneShotAt.Add(c.period())
	} else {
		next = c.lastTick.Add(c.period())
	}
	wait := time.Until(next)
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	return wait
}

func (c *Camera) produce(at time.Time) bool {
	if len(c.free) == 0 {
		c.dropped++
		return false
	}
	idx := c.free[0]
	c.free = c.free[1:]
	c.seq++
	buf := c.buffers[idx]
	for i := range buf {
		buf[i] = byte(c.seq + uint64(i))
	}
	c.ready = append(c.ready, readyBuffer{index: idx, at: at})
	c.cond.Broadcast()
	return true
}

func (c *Camera) pop() *iidc.Frame {
	rb := c.ready[0]
	c.ready = c.ready[1:]
	c.out[rb.index] = true
	return &iidc.Frame{
		Image:        c.buffers[rb.index],
		Index:        rb.index,
		Width:        c.width,
		Height:       c.height,
		Coding:       c.coding,
		Timestamp:    rb.at,
		FramesBehind: len(c.ready),
	}
}

func (c *Camera) frameBytes() int {
	return c.width * c.height * c.coding.BitsPerPixel() / 8
}

// bufferBytes is the DMA buffer size: whole packets in the scalable mode,
// a page-aligned frame otherwise.
func (c *Camera) bufferBytes() int {
	frame := c.frameBytes()
	if c.mode.Scalable() && c.packet > 0 {
		packets := (frame + c.packet - 1) / c.packet
		return packets * c.packet
	}
	const page = 4096
	return (frame + page - 1) / page * page
}

func (c *Camera) framerate() float64 {
	if !c.mode.Scalable() {
		return c.fps
	}
	frame := c.frameBytes()
	if c.packet <= 0 || frame <= 0 {
		return 0
	}
	packets := (frame + c.packet - 1) / c.packet
	return c.packetsPerMbps * float64(c.speed.Mbps()) / float64(packets)
}

func (c *Camera) period() time.Duration {
	fps := c.framerate()
	if fps <= 0 {
		return time.Second
	}
	return time.Duration(float64(time.Second) / fps)
}

// IsBusy reports whether err is the simulator's reprogramming-while-capturing error.
func IsBusy(err error) bool {
	return errors.Is(err, errBusy)
}
