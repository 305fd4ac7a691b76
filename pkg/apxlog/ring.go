package apxlog

import (
	"fmt"
	"sync"
	"time"
)

// Ring is a bounded in-memory sink holding the most recent log lines. It
// keeps a diagnostic tail available for readback (the apxnode console's log
// command, the router's shutdown dump) without persisting anything.
type Ring struct {
	mu      sync.Mutex
	entries []ringEntry
	next    int
	count   int
}

type ringEntry struct {
	when time.Time
	line string
}

func NewRing(size int) *Ring {
	if size < 1 {
		size = 1
	}
	return &Ring{entries: make([]ringEntry, size)}
}

// Println implements the sink interface; each entry is timestamped on
// arrival rather than at readback.
func (l *Ring) Println(v ...interface{}) {
	line := fmt.Sprint(v...)

	l.mu.Lock()
	l.entries[l.next] = ringEntry{when: time.Now(), line: line}
	l.next = (l.next + 1) % len(l.entries)
	if l.count < len(l.entries) {
		l.count++
	}
	l.mu.Unlock()
}

// Dump returns the buffered lines from oldest to newest, each prefixed with
// its arrival time.
func (l *Ring) Dump() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := l.next - l.count
	if start < 0 {
		start += len(l.entries)
	}
	res := make([]string, 0, l.count)
	for i := 0; i < l.count; i++ {
		e := l.entries[(start+i)%len(l.entries)]
		res = append(res, e.when.Format("2006/01/02 15:04:05")+" "+e.line)
	}
	return res
}

// Len returns the number of buffered lines.
func (l *Ring) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}
