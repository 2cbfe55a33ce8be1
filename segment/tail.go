package segment

import "sync"

// tailBuffer keeps the most recent output lines of a child process in a
// fixed-size ring, so a failing segment can be reported with context
// without buffering its whole stderr.
type tailBuffer struct {
	mu    sync.Mutex
	lines []string
	index int
	full  bool
}

func newTailBuffer(maxLines int) *tailBuffer {
	return &tailBuffer{lines: make([]string, maxLines)}
}

func (b *tailBuffer) add(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines[b.index] = line
	b.index = (b.index + 1) % len(b.lines)
	if b.index == 0 {
		b.full = true
	}
}

// recent returns the buffered lines, oldest first.
func (b *tailBuffer) recent() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	if b.full {
		for i := 0; i < len(b.lines); i++ {
			out = append(out, b.lines[(b.index+i)%len(b.lines)])
		}
		return out
	}
	return append(out, b.lines[:b.index]...)
}
