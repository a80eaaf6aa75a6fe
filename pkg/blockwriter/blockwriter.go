/*
Package blockwriter decouples producing a stream from writing it out.

Writes are queued in memory up to a byte budget and flushed to the underlying
writer by a background goroutine, so a slow destination does not stall block
reads until the budget is spent.
*/
package blockwriter

import (
	"errors"
	"io"
	"sync"
)

type block struct {
	data []byte
	next *block
}

var blockPool = sync.Pool{
	New: func() interface{} {
		return new(block)
	},
}

func newBlock() *block {
	newItem := blockPool.Get().(*block)
	// need to reset next value to nil we're pulling out of a pool of potentially
	// old objects
	newItem.next = nil
	return newItem
}

// ErrClosed is returned by writes after Close
var ErrClosed = errors.New("blockwriter: writer closed")

type BlockWriter struct {
	head       *block
	tail       *block
	dataSize   uint64
	maxSize    uint64
	lk         sync.Mutex
	cond       *sync.Cond
	closed     bool
	writeErr   error
	done       chan struct{}
	underlying io.Writer
}

var _ io.WriteCloser = (*BlockWriter)(nil)

// NewBlockWriter starts a writer that buffers up to maxSize bytes. A single
// write larger than maxSize is accepted once the queue is empty.
func NewBlockWriter(underlying io.Writer, maxSize uint64) *BlockWriter {
	bw := &BlockWriter{
		underlying: underlying,
		maxSize:    maxSize,
		done:       make(chan struct{}),
	}
	bw.cond = sync.NewCond(&bw.lk)
	go bw.writeLoop()
	return bw
}

// Close waits for queued data to reach the underlying writer and returns the
// first write error, if any
func (bq *BlockWriter) Close() error {
	bq.lk.Lock()
	bq.closed = true
	bq.lk.Unlock()
	bq.cond.Broadcast()
	<-bq.done
	bq.lk.Lock()
	defer bq.lk.Unlock()
	return bq.writeErr
}

// Write queues a copy of p. It blocks while the queue is full and fails once
// a background write has failed.
func (bq *BlockWriter) Write(p []byte) (n int, err error) {
	bq.lk.Lock()
	defer bq.lk.Unlock()
	for {
		if bq.writeErr != nil {
			return 0, bq.writeErr
		}
		if bq.closed {
			return 0, ErrClosed
		}
		if bq.dataSize == 0 || bq.dataSize+uint64(len(p)) <= bq.maxSize {
			block := newBlock()
			block.data = append([]byte(nil), p...)
			bq.queue(block)
			bq.cond.Broadcast()
			return len(p), nil
		}
		bq.cond.Wait()
	}
}

func (bq *BlockWriter) writeLoop() {
	defer close(bq.done)
	bq.lk.Lock()
	defer bq.lk.Unlock()
	for {
		if bq.head != nil && bq.writeErr == nil {
			data := bq.consume()
			bq.lk.Unlock()
			_, err := bq.underlying.Write(data)
			bq.lk.Lock()
			if err != nil {
				bq.writeErr = err
			}
			bq.dataSize -= uint64(len(data))
			bq.cond.Broadcast()
			continue
		}
		if bq.closed || bq.writeErr != nil {
			return
		}
		bq.cond.Wait()
	}
}

// consume pops the head of the queue. The popped bytes stay counted in
// dataSize until they are written.
func (bq *BlockWriter) consume() []byte {
	// save a reference to head
	consumed := bq.head

	// advance the queue
	bq.head = bq.head.next
	if bq.head == nil {
		bq.tail = nil
	}

	// wipe the block reference - let the memory get freed
	data := consumed.data
	consumed.data = nil
	// put the item back in the pool
	blockPool.Put(consumed)
	return data
}

func (bq *BlockWriter) queue(newItem *block) {
	// update total size buffered
	bq.dataSize += uint64(len(newItem.data))

	// queue the item
	if bq.head == nil {
		bq.tail = newItem
		bq.head = bq.tail
	} else {
		bq.tail.next = newItem
		bq.tail = bq.tail.next
	}
}
