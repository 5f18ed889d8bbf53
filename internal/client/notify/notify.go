// Package notify delivers local notifications to the person at the terminal.
package notify

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// Notification is one message raised by the client.
type Notification struct {
	Title string
	Body  string
	Data  map[string]string
}

// Notifier shows notifications. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// WriterNotifier prints notifications as single lines to an io.Writer.
type WriterNotifier struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

// NewWriterNotifier returns a notifier writing to w.
func NewWriterNotifier(w io.Writer) *WriterNotifier {
	return &WriterNotifier{w: w, now: time.Now}
}

// Notify writes "\n[15:04:05] Title: Body" followed by a newline.
func (n *WriterNotifier) Notify(ctx context.Context, note Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	_, err := fmt.Fprintf(n.w, "\n[%s] %s: %s\n", n.now().Format("15:04:05"), note.Title, note.Body)
	return err
}
