// Package remote is the client for the telemetry host's RPC endpoint. It
// serves athlete details and event subgroups to the map engine and keeps a
// short lived cache of both.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/saucemap/internal/httputil"
	"github.com/banshee-data/saucemap/internal/monitoring"
	"github.com/banshee-data/saucemap/internal/timeutil"
	"github.com/banshee-data/saucemap/internal/world"
)

// DefaultTTL is how long a fetched record is served before it is refetched.
const DefaultTTL = 60 * time.Second

// maxBatch caps the ids sent in one getAthletesData call.
const maxBatch = 100

// ErrRPC is returned (wrapped) when the host reports a failed call.
var ErrRPC = errors.New("rpc failed")

type entry[T any] struct {
	value   *T
	fetched time.Time
}

// Client implements world.AthleteDataSource and world.EventSource.
type Client struct {
	baseURL string
	http    httputil.HTTPClient
	clock   timeutil.Clock
	ttl     time.Duration

	mu        sync.Mutex
	athletes  map[int]entry[world.AthleteData]
	subgroups map[int]entry[world.EventSubgroup]
}

// Option configures a Client.
type Option func(*Client)

// WithClock sets the clock used for cache expiry.
func WithClock(c timeutil.Clock) Option { return func(cl *Client) { cl.clock = c } }

// WithTTL sets the cache lifetime.
func WithTTL(d time.Duration) Option { return func(cl *Client) { cl.ttl = d } }

// New returns a client for the RPC host at baseURL.
func New(baseURL string, c httputil.HTTPClient, opts ...Option) *Client {
	if c == nil {
		c = httputil.NewStandardClient(nil)
	}
	cl := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      c,
		clock:     timeutil.RealClock{},
		ttl:       DefaultTTL,
		athletes:  make(map[int]entry[world.AthleteData]),
		subgroups: make(map[int]entry[world.EventSubgroup]),
	}
	for _, o := range opts {
		o(cl)
	}
	return cl
}

type envelope struct {
	Success bool            `json:"success"`
	Value   json.RawMessage `json:"value"`
	Error   *struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// call invokes method with args and decodes its value into out. Args are
// placed in the path verbatim.
func (c *Client) call(ctx context.Context, out any, method string, args ...string) error {
	u := c.baseURL + "/api/rpc/v2/" + method
	for _, a := range args {
		u += "/" + a
	}
	var env envelope
	if err := httputil.GetJSON(ctx, c.http, u, &env); err != nil {
		return err
	}
	if !env.Success {
		msg := "unknown error"
		if env.Error != nil {
			msg = env.Error.Name + ": " + env.Error.Message
		}
		return fmt.Errorf("%s: %s: %w", method, msg, ErrRPC)
	}
	if err := json.Unmarshal(env.Value, out); err != nil {
		return fmt.Errorf("%s: failed to decode value: %w", method, err)
	}
	return nil
}

func (c *Client) fresh(t time.Time) bool {
	return c.clock.Since(t) < c.ttl
}

// Cached implements world.AthleteDataSource. Expired records are still
// returned.
func (c *Client) Cached(id int) *world.AthleteData {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.athletes[id].value
}

// Lookup implements world.AthleteDataSource. Fresh cache hits are served
// locally; the rest are fetched in batches. Ids the host does not know are
// remembered as misses until they expire.
func (c *Client) Lookup(ctx context.Context, ids []int) ([]*world.AthleteData, error) {
	out := make([]*world.AthleteData, 0, len(ids))
	var misses []int
	seen := make(map[int]bool, len(ids))

	c.mu.Lock()
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		e, ok := c.athletes[id]
		switch {
		case ok && c.fresh(e.fetched):
			if e.value != nil {
				out = append(out, e.value)
			}
		default:
			misses = append(misses, id)
		}
	}
	c.mu.Unlock()

	for len(misses) > 0 {
		n := min(len(misses), maxBatch)
		batch := misses[:n]
		misses = misses[n:]

		fetched, err := c.fetchAthletes(ctx, batch)
		if err != nil {
			return out, err
		}
		out = append(out, fetched...)
	}
	return out, nil
}

func (c *Client) fetchAthletes(ctx context.Context, ids []int) ([]*world.AthleteData, error) {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	var values []*world.AthleteData
	if err := c.call(ctx, &values, "getAthletesData", strings.Join(parts, ",")); err != nil {
		return nil, fmt.Errorf("failed to fetch %d athletes: %w", len(ids), err)
	}

	now := c.clock.Now()
	byID := make(map[int]*world.AthleteData, len(values))
	for _, v := range values {
		if v != nil {
			byID[v.AthleteID] = v
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*world.AthleteData, 0, len(byID))
	for _, id := range ids {
		v := byID[id]
		c.athletes[id] = entry[world.AthleteData]{value: v, fetched: now}
		if v != nil {
			out = append(out, v)
		}
	}
	monitoring.Tracef("athlete lookup: %d requested, %d known", len(ids), len(out))
	return out, nil
}

// EventSubgroup implements world.EventSource.
func (c *Client) EventSubgroup(ctx context.Context, id int) (*world.EventSubgroup, error) {
	c.mu.Lock()
	e, ok := c.subgroups[id]
	c.mu.Unlock()
	if !ok || !c.fresh(e.fetched) {
		var sg *world.EventSubgroup
		if err := c.call(ctx, &sg, "getEventSubgroup", strconv.Itoa(id)); err != nil {
			return nil, fmt.Errorf("failed to fetch event subgroup %d: %w", id, err)
		}
		e = entry[world.EventSubgroup]{value: sg, fetched: c.clock.Now()}
		c.mu.Lock()
		c.subgroups[id] = e
		c.mu.Unlock()
	}
	if e.value == nil {
		return nil, fmt.Errorf("event subgroup %d: %w", id, world.ErrNotFound)
	}
	return e.value, nil
}

// Prune drops every record older than the TTL and returns how many were
// removed.
func (c *Client) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for id, e := range c.athletes {
		if !c.fresh(e.fetched) {
			delete(c.athletes, id)
			n++
		}
	}
	for id, e := range c.subgroups {
		if !c.fresh(e.fetched) {
			delete(c.subgroups, id)
			n++
		}
	}
	return n
}
