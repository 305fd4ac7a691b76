package connection

import (
	"sync"

	log "github.com/apx-embedded/goapx/pkg/apxlog"

	"github.com/apx-embedded/goapx/internal/apx"
	"github.com/apx-embedded/goapx/internal/filemgr"
	"github.com/apx-embedded/goapx/internal/runtime"
)

// Events is the upper edge of a connection: asynchronous notifications
// delivered on the connection's event loop, in enqueue order.
type Events interface {
	Connected()
	Disconnected(err error)
	RemoteFilePublished(file *filemgr.File)
	NodeCreated(instance *runtime.NodeInstance)
	DefinitionError(instance *runtime.NodeInstance, err error)
	RequirePortsWritten(instance *runtime.NodeInstance, portIDs []apx.PortID)
}

// NopEvents is an Events implementation that ignores everything; embed it
// to pick only the notifications of interest.
type NopEvents struct{}

func (NopEvents) Connected()                                              {}
func (NopEvents) Disconnected(error)                                      {}
func (NopEvents) RemoteFilePublished(*filemgr.File)                       {}
func (NopEvents) NodeCreated(*runtime.NodeInstance)                       {}
func (NopEvents) DefinitionError(*runtime.NodeInstance, error)            {}
func (NopEvents) RequirePortsWritten(*runtime.NodeInstance, []apx.PortID) {}

// eventLoop is a bounded mailbox drained by one goroutine; enqueue order is
// delivery order.
type eventLoop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	done    chan struct{}
	running bool
}

func newEventLoop() *eventLoop {
	return &eventLoop{wake: make(chan struct{}, 1)}
}

func (l *eventLoop) start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return
	}
	l.running = true
	l.done = make(chan struct{})
	go l.run()
}

func (l *eventLoop) stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	l.queue = append(l.queue, nil)
	done := l.done
	l.mu.Unlock()
	l.post()
	<-done
}

func (l *eventLoop) post() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// emit queues one event callback; events beyond the queue bound are dropped
// with a log entry rather than blocking the caller.
func (l *eventLoop) emit(fn func()) {
	l.mu.Lock()
	if len(l.queue) >= apx.MaxNumMessages {
		l.mu.Unlock()
		log.Warn("event loop: queue full, dropping event")
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	l.post()
}

func (l *eventLoop) run() {
	defer close(l.done)
	for range l.wake {
		for {
			l.mu.Lock()
			if len(l.queue) == 0 {
				l.mu.Unlock()
				break
			}
			fn := l.queue[0]
			l.queue = l.queue[1:]
			l.mu.Unlock()
			if fn == nil {
				return
			}
			fn()
		}
	}
}
