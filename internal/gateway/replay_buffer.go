package gateway

import (
	"sort"
	"sync"
)

const defaultReplayDepth = 500

// ReplayLog keeps the most recent broadcast frames of one channel so
// clients that detect a sequence gap can backfill over REST instead of
// reconnecting. Sequence numbers on a channel only ever grow, which the
// lookup relies on.
type ReplayLog struct {
	mu     sync.RWMutex
	seqs   []int64
	frames [][]byte
	head   int // index of the oldest retained frame
	size   int
}

// NewReplayLog creates a log retaining the last `depth` frames.
func NewReplayLog(depth int) *ReplayLog {
	if depth <= 0 {
		depth = defaultReplayDepth
	}
	return &ReplayLog{
		seqs:   make([]int64, depth),
		frames: make([][]byte, depth),
	}
}

// Append retains a broadcast frame under its channel sequence number,
// evicting the oldest frame once the log is at depth. The frame is
// copied; callers may reuse their buffer.
func (rl *ReplayLog) Append(seq int64, frame []byte) {
	cp := make([]byte, len(frame))
	copy(cp, frame)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	depth := len(rl.seqs)
	tail := (rl.head + rl.size) % depth
	rl.seqs[tail] = seq
	rl.frames[tail] = cp
	if rl.size < depth {
		rl.size++
	} else {
		rl.head = (rl.head + 1) % depth
	}
}

// Window returns the retained frames with sequence in [from, to],
// oldest first. Sequences that have already been evicted are simply
// absent from the result; the client treats those as lost.
func (rl *ReplayLog) Window(from, to int64) [][]byte {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	// Sequences are stored in increasing order from head, so binary
	// search for the first retained frame at or past `from`.
	start := sort.Search(rl.size, func(i int) bool {
		return rl.seqs[(rl.head+i)%len(rl.seqs)] >= from
	})

	var out [][]byte
	for i := start; i < rl.size; i++ {
		idx := (rl.head + i) % len(rl.seqs)
		if rl.seqs[idx] > to {
			break
		}
		out = append(out, rl.frames[idx])
	}
	return out
}

// Len returns the number of retained frames.
func (rl *ReplayLog) Len() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return rl.size
}

// OldestSeq returns the lowest retained sequence, or 0 when empty.
// Lets the missed-frames endpoint tell a client its gap start has
// already been evicted.
func (rl *ReplayLog) OldestSeq() int64 {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	if rl.size == 0 {
		return 0
	}
	return rl.seqs[rl.head]
}
