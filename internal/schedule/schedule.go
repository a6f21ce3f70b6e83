// Package schedule queues periodic full redraws of the last payload. A full
// refresh now and then clears e-paper ghosting.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "epdtext/internal/log"
	"epdtext/internal/transport"
)

// Pusher accepts chunks for the refresh loop; transport.Queue implements it.
type Pusher interface {
	Push(c transport.Chunk, reply chan<- []byte) error
}

// Scheduler runs the redraw job.
type Scheduler struct {
	c  *cron.Cron
	id cron.EntryID
}

// New returns a Scheduler queueing a redraw on q at every activation of spec,
// a standard five field cron expression or a descriptor such as "@daily".
func New(spec string, q Pusher) (*Scheduler, error) {
	c := cron.New()
	id, err := c.AddFunc(spec, func() {
		if err := q.Push(transport.Chunk{Redraw: true}, nil); err != nil {
			appLog.Error("redraw not queued", err)
			return
		}
		appLog.Debug("redraw queued")
	})
	if err != nil {
		return nil, fmt.Errorf("schedule: invalid redraw spec %q: %w", spec, err)
	}
	return &Scheduler{c: c, id: id}, nil
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.c.Start()
	appLog.Info("redraw scheduler started", "next", s.Next().Format(time.RFC3339))
}

// Stop stops the scheduler; the returned context is done once a running job
// has finished.
func (s *Scheduler) Stop() context.Context {
	return s.c.Stop()
}

// Next returns the next activation time, zero before Start.
func (s *Scheduler) Next() time.Time {
	return s.c.Entry(s.id).Next
}

// run invokes the job once.
func (s *Scheduler) run() {
	s.c.Entry(s.id).Job.Run()
}
