package watch

import (
	"context"
	"io"
	"time"
)

// MonitorStore persists monitors. URL is unique across monitors.
type MonitorStore interface {
	// Create stores m unless a monitor with the same URL exists, in which
	// case the existing monitor is returned with created=false.
	Create(ctx context.Context, m Monitor) (stored Monitor, created bool, err error)
	GetByID(ctx context.Context, id string) (Monitor, error)
	GetByURL(ctx context.Context, url string) (Monitor, error)
	List(ctx context.Context) ([]Monitor, error)
	UpdateObservedValue(ctx context.Context, id string, obs Observation) error
	UpdateExtractionRule(ctx context.Context, id string, rule string) error
}

// Task is the unit of work a Scheduler runs on every tick.
type Task func(ctx context.Context)

// Scheduler runs tasks on a fixed interval. Registering an id that already
// exists replaces the previous job.
type Scheduler interface {
	RegisterRecurring(jobID string, interval time.Duration, task Task)
	Cancel(jobID string)
}

// Publisher pushes notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// BlobStore writes evidence artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Screenshotter captures a full-page PNG of a URL.
type Screenshotter interface {
	Screenshot(ctx context.Context, request FetchRequest) ([]byte, error)
}

// HeadlessDetector decides whether a light response needs a rendered fetch
// and names the reason when it does.
type HeadlessDetector interface {
	Promote(resp FetchResponse) (reason string, promote bool)
}

// Limiter throttles outbound requests per host.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Queue provides enqueue/dequeue semantics for checks.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Hasher computes digests for artifact naming.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces monitor IDs.
type IDGenerator interface {
	NewID() (string, error)
}
