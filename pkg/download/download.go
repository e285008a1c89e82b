// Package download defines the download requests produced by the launch
// core and the scheduler that fulfils them.
package download

import (
	"context"
	"sync"
)

// Request is one file to fetch. Filename and SHA1 are optional.
type Request struct {
	URL      string `json:"url"`
	Dest     string `json:"dest"`
	Filename string `json:"filename,omitempty"`
	SHA1     string `json:"sha1,omitempty"`
}

// Scheduler accepts named groups of requests.
type Scheduler interface {
	// Schedule queues a group and returns without waiting.
	Schedule(ctx context.Context, group string, reqs []Request) error
	// ScheduleAndWait queues a group and blocks until every request has
	// completed or one has failed.
	ScheduleAndWait(ctx context.Context, group string, reqs []Request) error
}

// Fetcher retrieves small metadata documents.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Group is a scheduled batch, as seen by a Recorder.
type Group struct {
	Name     string
	Requests []Request
	Waited   bool
}

// Recorder is a Scheduler that only records what it is given. OnWait, if
// set, runs for ScheduleAndWait groups and can materialise files or fail.
type Recorder struct {
	OnWait func(g Group) error

	mu     sync.Mutex
	groups []Group
}

var _ Scheduler = (*Recorder)(nil)

func (r *Recorder) Schedule(_ context.Context, group string, reqs []Request) error {
	r.record(Group{Name: group, Requests: reqs})
	return nil
}

func (r *Recorder) ScheduleAndWait(_ context.Context, group string, reqs []Request) error {
	g := Group{Name: group, Requests: reqs, Waited: true}
	r.record(g)
	if r.OnWait != nil {
		return r.OnWait(g)
	}
	return nil
}

func (r *Recorder) record(g Group) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups = append(r.groups, g)
}

// Groups returns a copy of the recorded groups in scheduling order.
func (r *Recorder) Groups() []Group {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Group, len(r.groups))
	copy(out, r.groups)
	return out
}

// Requests flattens every recorded request.
func (r *Recorder) Requests() []Request {
	var out []Request
	for _, g := range r.Groups() {
		out = append(out, g.Requests...)
	}
	return out
}
