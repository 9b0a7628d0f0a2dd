package cli

import (
	"sync"
	"time"

	"github.com/atotto/clipboard"
)

// Clipboard copies codes and wipes them again after a delay, unless the user
// has copied something else in the meantime.
type Clipboard struct {
	write      func(string) error
	read       func() (string, error)
	clearAfter time.Duration

	mu     sync.Mutex
	timer  *time.Timer
	copied string
}

// NewClipboard uses the system clipboard. A zero clearAfter never clears.
func NewClipboard(clearAfter time.Duration) *Clipboard {
	return NewClipboardWith(clipboard.WriteAll, clipboard.ReadAll, clearAfter)
}

func NewClipboardWith(write func(string) error, read func() (string, error), clearAfter time.Duration) *Clipboard {
	return &Clipboard{write: write, read: read, clearAfter: clearAfter}
}

func (c *Clipboard) ClearAfter() time.Duration { return c.clearAfter }

func (c *Clipboard) Copy(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.write(text); err != nil {
		return err
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.copied = text
	if c.clearAfter > 0 {
		c.timer = time.AfterFunc(c.clearAfter, c.clear)
	}
	return nil
}

// Close stops the pending timer and clears right away.
func (c *Clipboard) Close() {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.mu.Unlock()
	c.clear()
}

func (c *Clipboard) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.copied == "" {
		return
	}
	if current, err := c.read(); err == nil && current == c.copied {
		_ = c.write("")
	}
	c.copied = ""
}
