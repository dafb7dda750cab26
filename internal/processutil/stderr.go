package processutil

import (
	"bytes"
	"strings"
	"sync"
)

// StderrBuffer collects a child process's stderr for error messages. Child
// processes can be chatty for hours; only the tail is kept.
type StderrBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *StderrBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.buf.Len() > 64<<10 {
		tail := append([]byte(nil), b.buf.Bytes()[b.buf.Len()-8<<10:]...)
		b.buf.Reset()
		b.buf.Write(tail)
	}
	return b.buf.Write(p)
}

// Tail returns at most the last n bytes written.
func (b *StderrBuffer) Tail(n int) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := strings.TrimSpace(b.buf.String())
	if s == "" {
		return "no stderr output"
	}
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
