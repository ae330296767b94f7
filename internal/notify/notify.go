// SPDX-License-Identifier: MPL-2.0

// Package notify delivers host notifications for failures that must not
// abort the operation that found them, such as an addin failing to
// initialize during a scan.
package notify

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

type (
	// Notification describes one isolated failure.
	Notification struct {
		// Source is the type or resource the failure belongs to.
		Source string
		// Op is the step that failed, e.g. "construct" or "init".
		Op   string
		Err  error
		Time time.Time
	}

	// Sink receives notifications. Implementations must be safe for
	// concurrent use and must not block for long.
	Sink interface {
		Notify(ctx context.Context, n Notification)
	}

	// LogSink writes notifications to a logger at error level.
	LogSink struct {
		Logger *log.Logger
	}

	// Collector stores notifications in memory.
	Collector struct {
		mu    sync.Mutex
		items []Notification
	}

	multi []Sink

	discard struct{}
)

// Discard drops every notification.
var Discard Sink = discard{}

// Notify logs n.
func (s LogSink) Notify(_ context.Context, n Notification) {
	if s.Logger == nil {
		return
	}
	s.Logger.Error("host notification", "source", n.Source, "op", n.Op, "error", n.Err)
}

// Notify records n.
func (c *Collector) Notify(_ context.Context, n Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, n)
}

// Notifications returns a copy of everything recorded so far.
func (c *Collector) Notifications() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.items)
}

// Reset drops recorded notifications.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = nil
}

// Multi fans notifications out to every non-nil sink in order.
func Multi(sinks ...Sink) Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m multi) Notify(ctx context.Context, n Notification) {
	for _, s := range m {
		s.Notify(ctx, n)
	}
}

func (discard) Notify(context.Context, Notification) {}
