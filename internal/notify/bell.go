package notify

import (
	"context"
	"io"
	"sync"
)

// BellNotifier rings the terminal bell. It is the sound alert for terminal
// sessions; the display of the message itself stays with the roster.
type BellNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

// NewBellNotifier creates a bell notifier writing to w.
func NewBellNotifier(w io.Writer) *BellNotifier {
	return &BellNotifier{w: w}
}

// Notify writes the BEL control character.
func (b *BellNotifier) Notify(ctx context.Context, n Notification) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := b.w.Write([]byte("\a"))
	return err
}
