package warmup

import "sync"

const defaultMaxOutput = 64 << 10

// tailBuffer keeps the last max bytes written to it. Scripts such as a full
// gradle build print far more than is worth keeping.
type tailBuffer struct {
	mu        sync.Mutex
	max       int
	buf       []byte
	truncated bool
}

func newTailBuffer(max int) *tailBuffer {
	if max <= 0 {
		max = defaultMaxOutput
	}
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		kept := make([]byte, b.max)
		copy(kept, b.buf[over:])
		b.buf = kept
		b.truncated = true
	}
	return len(p), nil
}

func (b *tailBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.truncated {
		return append([]byte(nil), b.buf...)
	}
	return append([]byte("[output truncated]\n"), b.buf...)
}
