package main

import (
	"fmt"
	"io"
	"sync"
	"time"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// Countdown prints "<prefix> (<remaining>s)" on one line until Stop is called.
// It is used while scanning, which has a fixed timeout.
type Countdown struct {
	out      io.Writer
	prefix   string
	duration time.Duration

	once sync.Once
	stop chan struct{}
	done chan struct{}
}

func NewCountdown(out io.Writer, prefix string, duration time.Duration) *Countdown {
	return &Countdown{
		out:      out,
		prefix:   prefix,
		duration: duration,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins printing in a background goroutine.
func (c *Countdown) Start() {
	start := time.Now()
	ticker := time.NewTicker(progressUpdateInterval)
	c.print(c.duration)

	go func() {
		defer close(c.done)
		defer ticker.Stop()
		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
				c.print(c.duration - time.Since(start))
			}
		}
	}()
}

func (c *Countdown) print(remaining time.Duration) {
	seconds := 0
	if remaining > 0 {
		// round to the nearest second
		seconds = int(remaining.Seconds() + 0.5)
	}
	fmt.Fprintf(c.out, "\r%s (%ds)   ", c.prefix, seconds)
}

// Stop clears the line. Safe to call more than once; Start must have been called.
func (c *Countdown) Stop() {
	c.once.Do(func() {
		close(c.stop)
		<-c.done
		fmt.Fprint(c.out, clearLineSequence)
	})
}
