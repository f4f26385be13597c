package shm

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

// Header fields of a bounded buffer, in 32-bit words from the start of the
// segment. The slots follow immediately after the header.
const (
	fieldCapacity = iota
	fieldItemCount
	fieldIn
	fieldOut
	fieldProducerDone
	headerFields
)

// HeaderSize is the size of the bounded buffer header in bytes.
const HeaderSize = headerFields * 4

var (
	// ErrInvalidCapacity is returned for a buffer capacity below 2 or one that
	// does not fit the segment.
	ErrInvalidCapacity = errors.New("shm: invalid buffer capacity")

	// ErrInvalidItemCount is returned for an item count below 1.
	ErrInvalidItemCount = errors.New("shm: invalid item count")
)

// BufferSize returns the number of bytes a buffer with the given capacity
// occupies.
func BufferSize(capacity int) int {
	return HeaderSize + capacity*4
}

/*
A Buffer is a fixed-capacity circular queue of 32-bit values in a shared
memory segment, for exactly one producer and one consumer.

The producer owns the in index and the producer-done flag, the consumer owns
the out index. One slot always stays empty, so that in == out means empty and
(in+1) mod capacity == out means full, and the buffer never holds more than
capacity-1 items. Neither side ever blocks: both busy-wait by re-reading the
index owned by the other side.
*/
type Buffer struct {
	words    []int32
	capacity int
}

// InitBuffer lays out a buffer with the given capacity in seg and writes its
// header for a run of items values.
func InitBuffer(seg *Segment, capacity, items int) (*Buffer, error) {
	if capacity < 2 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	if items < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidItemCount, items)
	}
	if need := BufferSize(capacity); need > len(seg.Mem) {
		return nil, fmt.Errorf("%w: buffer of capacity %d needs %d bytes, segment has %d",
			ErrSegmentTooSmall, capacity, need, len(seg.Mem))
	}
	b := &Buffer{words: seg.Int32s(), capacity: capacity}
	b.store(fieldCapacity, capacity)
	b.store(fieldItemCount, items)
	b.store(fieldIn, 0)
	b.store(fieldOut, 0)
	b.store(fieldProducerDone, 0)
	return b, nil
}

// AttachBuffer returns the buffer a producer laid out in seg.
func AttachBuffer(seg *Segment) (*Buffer, error) {
	if len(seg.Mem) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrSegmentTooSmall, len(seg.Mem))
	}
	b := &Buffer{words: seg.Int32s()}
	capacity := b.load(fieldCapacity)
	if capacity < 2 || BufferSize(capacity) > len(seg.Mem) {
		return nil, fmt.Errorf("%w: header says %d", ErrInvalidCapacity, capacity)
	}
	b.capacity = capacity
	return b, nil
}

func (b *Buffer) load(field int) int {
	return int(atomic.LoadInt32(&b.words[field]))
}

func (b *Buffer) store(field, v int) {
	atomic.StoreInt32(&b.words[field], int32(v))
}

func (b *Buffer) slot(index int) *int32 {
	return &b.words[headerFields+index]
}

// Capacity returns the number of slots.
func (b *Buffer) Capacity() int { return b.capacity }

// ItemCount returns the number of values the producer was set up to produce.
func (b *Buffer) ItemCount() int { return b.load(fieldItemCount) }

// In returns the producer insertion index.
func (b *Buffer) In() int { return b.load(fieldIn) }

// Out returns the consumer removal index.
func (b *Buffer) Out() int { return b.load(fieldOut) }

// ProducerDone reports whether the producer has published its last value.
func (b *Buffer) ProducerDone() bool { return b.load(fieldProducerDone) != 0 }

// Len returns the number of values currently queued.
func (b *Buffer) Len() int {
	return (b.In() - b.Out() + b.capacity) % b.capacity
}

// An Item is a value passing through the buffer.
type Item struct {
	Seq   int
	Value int32
	Index int
}

/*
Produce writes ItemCount values obtained from next into the buffer. For each
value it spins, re-reading the out index, while the buffer is full, then
writes the value at the in index and publishes the advanced in index. fn, if
not nil, is called for every value after it is written and before it is
published.

Produce sets the producer-done flag when it returns, also when ctx is done
before all values were produced, in which case it returns ctx.Err().
*/
func (b *Buffer) Produce(ctx context.Context, next func() int32, fn func(Item)) error {
	defer b.store(fieldProducerDone, 1)
	done := ctx.Done()
	items := b.ItemCount()
	in, out := b.In(), b.Out()
	for i := 0; i < items; i++ {
		for (in+1)%b.capacity == out {
			select {
			case <-done:
				return ctx.Err()
			default:
			}
			out = b.Out()
		}
		v := next()
		atomic.StoreInt32(b.slot(in), v)
		if fn != nil {
			fn(Item{Seq: i, Value: v, Index: in})
		}
		in = (in + 1) % b.capacity
		b.store(fieldIn, in)
	}
	return nil
}

/*
Consume reads up to ItemCount values from the buffer and returns how many it
read. For each value it spins, re-reading the in index, while the buffer is
empty, then reads the value at the out index and publishes the advanced out
index. fn, if not nil, is called for every value read.

If the buffer is empty and the producer-done flag is set, no more values will
arrive and Consume returns early without an error.
*/
func (b *Buffer) Consume(ctx context.Context, fn func(Item)) (int, error) {
	done := ctx.Done()
	items := b.ItemCount()
	in, out := b.In(), b.Out()
	for i := 0; i < items; i++ {
		for in == out {
			select {
			case <-done:
				return i, ctx.Err()
			default:
			}
			// in is published before the flag, so read the flag first
			finished := b.ProducerDone()
			in = b.In()
			if finished && in == out {
				return i, nil
			}
		}
		v := atomic.LoadInt32(b.slot(out))
		if fn != nil {
			fn(Item{Seq: i, Value: v, Index: out})
		}
		out = (out + 1) % b.capacity
		b.store(fieldOut, out)
	}
	return items, nil
}

// Drain spins until the consumer has read every published value, or until
// ctx is done.
func (b *Buffer) Drain(ctx context.Context) error {
	done := ctx.Done()
	for b.Out() != b.In() {
		select {
		case <-done:
			return ctx.Err()
		default:
		}
	}
	return nil
}
