package docstore

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Client is the entry point to the document store. It owns the backend, the
// change feed and the access rules. Use As to obtain a Conn scoped to a
// principal.
type Client struct {
	backend   Backend
	feed      Feed
	rules     *Rules
	logger    zerolog.Logger
	listeners atomic.Int64
}

// NewClient creates a Client. A nil feed defaults to a LocalFeed and nil rules
// default to DefaultRules.
func NewClient(backend Backend, feed Feed, rules *Rules, logger zerolog.Logger) *Client {
	if feed == nil {
		feed = NewLocalFeed()
	}
	if rules == nil {
		rules = DefaultRules()
	}
	return &Client{
		backend: backend,
		feed:    feed,
		rules:   rules,
		logger:  logger.With().Str("component", "docstore").Logger(),
	}
}

// As returns a Conn whose reads, writes and listeners are checked against
// the rules for actor.
func (c *Client) As(actor Actor) *Conn {
	return &Conn{client: c, actor: actor, rules: c.rules}
}

// System returns a Conn that bypasses the access rules. It is meant for
// server side code that has already authorised the caller.
func (c *Client) System() *Conn {
	return &Conn{client: c, actor: Actor{UID: "system"}}
}

// ActiveListeners returns the number of open listeners across all Conns.
func (c *Client) ActiveListeners() int {
	return int(c.listeners.Load())
}

// Conn performs document operations on behalf of one actor.
type Conn struct {
	client *Client
	actor  Actor
	rules  *Rules
}

// Actor returns the principal of the connection.
func (c *Conn) Actor() Actor { return c.actor }

func (c *Conn) Get(ctx context.Context, path string) (*Snapshot, error) {
	clean, err := CleanDocumentPath(path)
	if err != nil {
		return nil, err
	}
	if c.rules != nil {
		if err := c.rules.CanAccess(c.actor, clean); err != nil {
			return nil, err
		}
	}
	return c.client.backend.Get(ctx, clean)
}

func (c *Conn) Query(ctx context.Context, q Query) ([]*Snapshot, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if c.rules != nil {
		if err := c.rules.CanList(c.actor, q); err != nil {
			return nil, err
		}
	}
	return c.client.backend.Query(ctx, q)
}

func (c *Conn) Set(ctx context.Context, path string, data map[string]any, opts SetOptions) error {
	clean, err := CleanDocumentPath(path)
	if err != nil {
		return err
	}
	if c.rules != nil {
		if err := c.rules.CanAccess(c.actor, clean); err != nil {
			return err
		}
	}
	if err := c.client.backend.Set(ctx, clean, data, opts.Merge); err != nil {
		return err
	}
	parent, _ := SplitDocumentPath(clean)
	c.client.feed.Publish(Change{Path: clean, Collection: parent})
	return nil
}

// Add stores data under a generated id in collection and returns the id.
func (c *Conn) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	clean, err := CleanCollectionPath(collection)
	if err != nil {
		return "", err
	}
	id := uuid.New().String()
	if err := c.Set(ctx, Join(clean, id), data, SetOptions{}); err != nil {
		return "", err
	}
	return id, nil
}

func (c *Conn) Delete(ctx context.Context, path string) error {
	clean, err := CleanDocumentPath(path)
	if err != nil {
		return err
	}
	if c.rules != nil {
		if err := c.rules.CanAccess(c.actor, clean); err != nil {
			return err
		}
	}
	if err := c.client.backend.Delete(ctx, clean); err != nil {
		return err
	}
	parent, _ := SplitDocumentPath(clean)
	c.client.feed.Publish(Change{Path: clean, Collection: parent})
	return nil
}

// ListenQuery delivers the results of q to onNext, once initially and again
// after every write that may change them. The first error is passed to onErr
// and ends the listener. The returned stop function is idempotent; no
// callback starts after it returns.
func (c *Conn) ListenQuery(ctx context.Context, q Query, onNext func([]*Snapshot), onErr func(error)) (stop func()) {
	if err := q.Validate(); err != nil {
		go onErr(err)
		return func() {}
	}
	return c.listen(ctx, "query "+q.Key(),
		func(ch Change) bool { return q.Covers(ch.Collection) },
		func(ctx context.Context) error {
			snaps, err := c.Query(ctx, q)
			if err != nil {
				return err
			}
			if ctx.Err() == nil {
				onNext(snaps)
			}
			return nil
		},
		onErr,
	)
}

// ListenDoc delivers the document at path to onNext, once initially and
// again after every write to it. A missing document is delivered as a
// Snapshot with Exists set to false.
func (c *Conn) ListenDoc(ctx context.Context, path string, onNext func(*Snapshot), onErr func(error)) (stop func()) {
	clean, err := CleanDocumentPath(path)
	if err != nil {
		go onErr(err)
		return func() {}
	}
	return c.listen(ctx, "doc "+clean,
		func(ch Change) bool { return ch.Path == clean },
		func(ctx context.Context) error {
			snap, err := c.Get(ctx, clean)
			if err != nil {
				return err
			}
			if ctx.Err() == nil {
				onNext(snap)
			}
			return nil
		},
		onErr,
	)
}

func (c *Conn) listen(
	parent context.Context,
	name string,
	covers func(Change) bool,
	fetch func(context.Context) error,
	onErr func(error),
) func() {
	ctx, cancel := context.WithCancel(parent)
	trigger := make(chan struct{}, 1)

	unsubscribe := c.client.feed.Subscribe(func(ch Change) {
		if !covers(ch) {
			return
		}
		select {
		case trigger <- struct{}{}:
		default:
		}
	})
	c.client.listeners.Add(1)
	c.client.logger.Debug().Str("listener", name).Str("uid", c.actor.UID).Msg("listener started")

	var once sync.Once
	release := func() {
		once.Do(func() {
			unsubscribe()
			c.client.listeners.Add(-1)
			c.client.logger.Debug().Str("listener", name).Str("uid", c.actor.UID).Msg("listener stopped")
		})
	}

	go func() {
		defer release()
		for {
			if err := fetch(ctx); err != nil {
				release()
				if ctx.Err() == nil {
					onErr(err)
				}
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-trigger:
			}
		}
	}()

	return func() {
		cancel()
		release()
	}
}
