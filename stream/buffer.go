package stream

import "github.com/gammazero/deque"

// ChunkBuffer is the ordered queue behind a Readable. In byte mode chunks
// are []byte and sizes are byte counts; in object mode each chunk is one
// unit.
type ChunkBuffer struct {
	chunks     *deque.Deque[any]
	size       int
	objectMode bool
}

// NewChunkBuffer returns an empty buffer.
func NewChunkBuffer(objectMode bool) *ChunkBuffer {
	return &ChunkBuffer{chunks: deque.New[any](), objectMode: objectMode}
}

func (b *ChunkBuffer) sizeOf(chunk any) int {
	if b.objectMode {
		return 1
	}
	return len(chunk.([]byte))
}

// Append queues chunk at the back.
func (b *ChunkBuffer) Append(chunk any) {
	b.chunks.PushBack(chunk)
	b.size += b.sizeOf(chunk)
}

// Prepend queues chunk at the front.
func (b *ChunkBuffer) Prepend(chunk any) {
	b.chunks.PushFront(chunk)
	b.size += b.sizeOf(chunk)
}

// TakeOne removes and returns the head chunk, or nil when empty.
func (b *ChunkBuffer) TakeOne() any {
	if b.chunks.Len() == 0 {
		return nil
	}
	chunk := b.chunks.PopFront()
	b.size -= b.sizeOf(chunk)
	return chunk
}

// TakeUpTo removes and returns up to n bytes from the front, splitting the
// last chunk touched if needed. It returns nil when empty.
func (b *ChunkBuffer) TakeUpTo(n int) []byte {
	if b.chunks.Len() == 0 || n <= 0 {
		return nil
	}
	if n >= b.size {
		return b.takeAll()
	}

	out := make([]byte, 0, n)
	for len(out) < n {
		head := b.chunks.PopFront().([]byte)
		need := n - len(out)
		if len(head) <= need {
			out = append(out, head...)
			continue
		}
		out = append(out, head[:need]...)
		b.chunks.PushFront(head[need:])
	}
	b.size -= n
	return out
}

func (b *ChunkBuffer) takeAll() []byte {
	if b.chunks.Len() == 1 {
		b.size = 0
		return b.chunks.PopFront().([]byte)
	}
	out := make([]byte, 0, b.size)
	for b.chunks.Len() > 0 {
		out = append(out, b.chunks.PopFront().([]byte)...)
	}
	b.size = 0
	return out
}

// Head returns the front chunk without removing it, or nil when empty.
func (b *ChunkBuffer) Head() any {
	if b.chunks.Len() == 0 {
		return nil
	}
	return b.chunks.Front()
}

func (b *ChunkBuffer) headSize() int {
	if b.chunks.Len() == 0 {
		return 0
	}
	return b.sizeOf(b.chunks.Front())
}

// IsEmpty reports whether no chunks are queued.
func (b *ChunkBuffer) IsEmpty() bool { return b.chunks.Len() == 0 }

// Size returns the total tracked size.
func (b *ChunkBuffer) Size() int { return b.size }

// Len returns the number of queued chunks.
func (b *ChunkBuffer) Len() int { return b.chunks.Len() }

// Clear drops every chunk.
func (b *ChunkBuffer) Clear() {
	b.chunks.Clear()
	b.size = 0
}
