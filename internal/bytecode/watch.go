package bytecode

import (
	"os"

	"github.com/rjeczalik/notify"
)

// Watcher watches a bytecode file on disk and emits its freshly-read bytes
// on Changes whenever it is rewritten, driving the scheduler's
// ReloadBytecode command without a human re-issuing it over the control
// endpoint on every deploy.
type Watcher struct {
	path    string
	events  chan notify.EventInfo
	Changes chan []byte
	stop    chan struct{}
}

func WatchFile(path string) (*Watcher, error) {
	events := make(chan notify.EventInfo, 4)
	if err := notify.Watch(path, events, notify.Write, notify.Create, notify.Rename); err != nil {
		return nil, err
	}
	w := &Watcher{
		path:    path,
		events:  events,
		Changes: make(chan []byte, 1),
		stop:    make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.stop:
			return
		case <-w.events:
			data, err := os.ReadFile(w.path)
			if err != nil {
				continue
			}
			select {
			case w.Changes <- data:
			default:
				// a reload is already pending; drop this one, the next
				// read will pick up the latest content anyway.
			}
		}
	}
}

func (w *Watcher) Close() {
	notify.Stop(w.events)
	close(w.stop)
}
