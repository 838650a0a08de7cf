// Package progress renders the provisioning session log as a console
// progress bar.
package progress

import (
	"fmt"
	"io"
	"sync"

	"github.com/routervpn/configurator/internal/models"
	"github.com/routervpn/configurator/internal/session"
	"github.com/schollz/progressbar/v3"
)

// Steps estimates how many status lines a run of req appends.
func Steps(req models.ConfigRequest) int {
	n := 1 // CA
	if len(req.Servers) > 0 {
		n += 1 + len(req.Servers)
	}
	n += 1 + len(req.Clients)
	n += 2 // dh, render
	if mode, err := req.Mode(); err == nil && mode.AutoConfigure() {
		// connect, directory, uploads, vpn script, firewall script, done
		n += 11
	}
	return n
}

// Bar follows a session: one tick per log line, the newest line as
// description.
type Bar struct {
	mu    sync.Mutex
	bar   *progressbar.ProgressBar
	w     io.Writer
	total int
	done  bool
}

// NewBar creates a bar for total status lines writing to w.
func NewBar(w io.Writer, total int) *Bar {
	if total < 1 {
		total = 1
	}
	return &Bar{
		bar: progressbar.NewOptions(total,
			progressbar.OptionSetWriter(w),
			progressbar.OptionShowDescriptionAtLineEnd(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetElapsedTime(true),
		),
		w:     w,
		total: total,
	}
}

// Attach subscribes the bar to s.
func (b *Bar) Attach(s *session.Session) {
	s.OnUpdate(b.Update)
}

// Update moves the bar to the number of log lines in snap. The bar stays
// below its maximum until the session is Done.
func (b *Bar) Update(snap session.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return
	}

	if snap.Stage == session.Done {
		b.bar.Describe(snap.Last())
		b.bar.Set(b.total)
		b.finishLocked()
		return
	}

	current := len(snap.Log)
	if current >= b.total {
		current = b.total - 1
	}
	b.bar.Describe(snap.Last())
	b.bar.Set(current)
}

// Complete stops the bar with a final description, for runs that failed.
func (b *Bar) Complete(description string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return
	}
	b.bar.Describe(description)
	b.finishLocked()
}

func (b *Bar) finishLocked() {
	b.done = true
	b.bar.Exit()
	fmt.Fprintln(b.w)
}
