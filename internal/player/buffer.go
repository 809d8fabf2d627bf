package player

import (
	"errors"
	"sync"
)

var errBufferClosed = errors.New("opus buffer closed")

// opusBuffer sits between the transcoder and the voice sender so network
// hiccups on either side do not stall the other.
type opusBuffer struct {
	mu       sync.Mutex
	packets  [][]byte
	maxSize  int
	readPos  int
	writePos int
	count    int
	closed   bool
	eos      bool
	notEmpty *sync.Cond
	notFull  *sync.Cond
}

func newOpusBuffer(maxPackets int) *opusBuffer {
	ob := &opusBuffer{
		packets: make([][]byte, maxPackets),
		maxSize: maxPackets,
	}
	ob.notEmpty = sync.NewCond(&ob.mu)
	ob.notFull = sync.NewCond(&ob.mu)
	return ob
}

// Push blocks while the buffer is full.
func (ob *opusBuffer) Push(data []byte) error {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	for ob.count == ob.maxSize && !ob.closed {
		ob.notFull.Wait()
	}
	if ob.closed || ob.eos {
		return errBufferClosed
	}

	ob.packets[ob.writePos] = data
	ob.writePos = (ob.writePos + 1) % ob.maxSize
	ob.count++
	ob.notEmpty.Signal()
	return nil
}

// Pop blocks until a packet is available. ok is false once the buffer is
// closed, or drained after MarkEOS.
func (ob *opusBuffer) Pop() ([]byte, bool) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	for {
		if ob.closed {
			return nil, false
		}
		if ob.count > 0 {
			pkt := ob.packets[ob.readPos]
			ob.packets[ob.readPos] = nil
			ob.readPos = (ob.readPos + 1) % ob.maxSize
			ob.count--
			ob.notFull.Signal()
			return pkt, true
		}
		if ob.eos {
			return nil, false
		}
		ob.notEmpty.Wait()
	}
}

func (ob *opusBuffer) BufferedCount() int {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return ob.count
}

func (ob *opusBuffer) MarkEOS() {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	ob.eos = true
	ob.notEmpty.Broadcast()
}

func (ob *opusBuffer) Close() {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	ob.closed = true
	ob.notEmpty.Broadcast()
	ob.notFull.Broadcast()
}
