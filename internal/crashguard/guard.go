package crashguard

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"

	"github.com/datallboy/gotrack/internal/infra/logger"
)

// Signals that trigger cleanup before exit.
var Signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT}

// Guard tracks every file currently being written. Anything still registered
// when the process is told to stop is deleted, so a truncated file is never
// mistaken for a finished one on the next run.
type Guard struct {
	mu    sync.Mutex
	paths map[string]struct{}
	log   *logger.Logger
	once  sync.Once
}

func New(log *logger.Logger) *Guard {
	return &Guard{
		paths: make(map[string]struct{}),
		log:   log,
	}
}

// Register must be called before the first byte is written to path.
func (g *Guard) Register(path string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.paths[path] = struct{}{}
}

// Unregister is called once path is flushed and complete, or already removed.
func (g *Guard) Unregister(path string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.paths, path)
}

// Active lists the registered paths in sorted order.
func (g *Guard) Active() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]string, 0, len(g.paths))
	for p := range g.paths {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Cleanup deletes every registered path. It runs at most once; later calls
// return nil.
func (g *Guard) Cleanup() []string {
	var removed []string

	g.once.Do(func() {
		g.mu.Lock()
		defer g.mu.Unlock()

		for p := range g.paths {
			err := os.Remove(p)
			switch {
			case err == nil:
				removed = append(removed, p)
				g.log.Warn("[Cleanup] removed incomplete file %s", p)
			case errors.Is(err, fs.ErrNotExist):
			default:
				g.log.Error("[Cleanup] could not remove %s: %v", p, err)
			}
			delete(g.paths, p)
		}
	})

	sort.Strings(removed)
	return removed
}

// Release is the scoped form of Cleanup: defer it right after the run
// starts. It only deletes files when something is still registered.
func (g *Guard) Release() {
	if len(g.Active()) == 0 {
		return
	}
	g.Cleanup()
}

// NotifyContext returns a copy of parent that is cancelled on the first
// cleanup signal. Callers that shut down through the context instead of
// Listen must still defer Release.
func (g *Guard) NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, Signals...)
}

// Listen runs Cleanup and then exit(128+signo) on the first termination
// signal. The returned func stops listening.
func (g *Guard) Listen(exit func(code int)) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, Signals...)

	done := make(chan struct{})
	go g.listen(ch, done, exit)

	var stopOnce sync.Once
	return func() {
		stopOnce.Do(func() {
			signal.Stop(ch)
			close(done)
		})
	}
}

func (g *Guard) listen(ch <-chan os.Signal, done <-chan struct{}, exit func(int)) {
	select {
	case sig := <-ch:
		g.log.Warn("Received %s, removing %d incomplete file(s)", sig, len(g.Active()))
		g.Cleanup()
		code := 1
		if s, ok := sig.(syscall.Signal); ok {
			code = 128 + int(s)
		}
		exit(code)
	case <-done:
	}
}
