// Package store persists call records and agents. Records are insert-only;
// nothing here updates or deletes a call.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"call-insights-go/internal/logger"
	"call-insights-go/internal/types"
)

var (
	// ErrNotFound is returned for unknown and malformed ids alike.
	ErrNotFound = errors.New("not found")
	// ErrUnsupportedDSN is returned by Open for a scheme no binding handles.
	ErrUnsupportedDSN = errors.New("unsupported store dsn")
)

type Store interface {
	// InsertCall assigns rec.ID (and CreatedAt when zero) and writes the record.
	InsertCall(ctx context.Context, rec *types.CallRecord) (string, error)
	GetCall(ctx context.Context, id string) (*types.CallRecord, error)
	// ListCalls returns summaries, newest first.
	ListCalls(ctx context.Context) ([]types.CallSummary, error)
	// UpsertAgent returns the agent with name, creating it on first mention.
	UpsertAgent(ctx context.Context, name string) (*types.Agent, error)
	ListAgents(ctx context.Context) ([]types.Agent, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Options name the Mongo database and collections. SQLite ignores them.
type Options struct {
	Database         string
	CallsCollection  string
	AgentsCollection string
	// ConnectTimeout bounds the start-up retry loop.
	ConnectTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Database == "" {
		o.Database = "demo"
	}
	if o.CallsCollection == "" {
		o.CallsCollection = "diallo"
	}
	if o.AgentsCollection == "" {
		o.AgentsCollection = "agents"
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 30 * time.Second
	}
	return o
}

// Open picks a binding from the dsn scheme and connects, retrying with
// exponential backoff until ConnectTimeout elapses.
//
//	mongodb://... mongodb+srv://...  -> Mongo
//	sqlite://<path>  file:<path>      -> SQLite
func Open(ctx context.Context, dsn string, opts Options, log *logger.Logger) (Store, error) {
	opts = opts.withDefaults()
	log = log.Component("store")

	var s Store
	op := func() error {
		var err error
		s, err = open(ctx, dsn, opts)
		if errors.Is(err, ErrUnsupportedDSN) {
			return backoff.Permanent(err)
		}
		if err != nil {
			log.WithError(err).Warn("store connect failed, retrying")
		}
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = opts.ConnectTimeout
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	log.WithField("backend", backendName(dsn)).Info("store connected")
	return s, nil
}

func open(ctx context.Context, dsn string, opts Options) (Store, error) {
	switch {
	case strings.HasPrefix(dsn, "mongodb://"), strings.HasPrefix(dsn, "mongodb+srv://"):
		return OpenMongo(ctx, dsn, opts)
	case strings.HasPrefix(dsn, "sqlite://"):
		return OpenSQLite(ctx, strings.TrimPrefix(dsn, "sqlite://"))
	case strings.HasPrefix(dsn, "file:"):
		path, _, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
		return OpenSQLite(ctx, path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDSN, redact(dsn))
	}
}

func backendName(dsn string) string {
	if strings.HasPrefix(dsn, "mongodb") {
		return "mongo"
	}
	return "sqlite"
}

// redact drops credentials so a dsn can appear in errors and logs.
func redact(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = "***@" + rest[at+1:]
	}
	return scheme + "://" + rest
}

// stamp fixes the record timestamp at millisecond precision in UTC, the
// resolution both bindings round-trip.
func stamp(t time.Time) time.Time {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Truncate(time.Millisecond)
}
