package live

import (
	"context"

	"github.com/woundcare/woundcare/internal/platform/apperr"
	"github.com/woundcare/woundcare/internal/platform/docstore"
)

// DocumentSubscription keeps one document live. Data is nil both before the
// first snapshot and when the document does not exist; IsLoading tells the
// two apart.
type DocumentSubscription[T any] struct {
	sub *subscription[*Record[T]]
}

// Document opens a subscription to the document at desc.Path. Group and
// Constraints are ignored.
func Document[T any](scope *Scope, desc Descriptor, decode Decoder[T], onChange func(Envelope[*Record[T]])) *DocumentSubscription[T] {
	plan := func(desc Descriptor, uid, _ string) (string, listenFunc[*Record[T]]) {
		switch {
		case desc.Path == "":
			return "idle:disabled", nil
		case uid == "":
			return "idle:signed-out", nil
		}
		path := desc.Path
		return uid + "|doc|" + path, func(ctx context.Context, conn *docstore.Conn, next func(*Record[T]), fail func(error)) func() {
			return conn.ListenDoc(ctx, path,
				func(s *docstore.Snapshot) {
					if !s.Exists {
						next(nil)
						return
					}
					v, err := decode(s)
					if err != nil {
						scope.logger.Warn().Err(err).Str("path", s.Path).Msg("undecodable document")
						next(nil)
						return
					}
					next(&Record[T]{ID: s.ID, Path: s.Path, Data: v})
				},
				fail,
			)
		}
	}
	d := &DocumentSubscription[T]{sub: newSubscription[*Record[T]](scope, apperr.OpGet, desc, plan, onChange)}
	d.sub.start()
	return d
}

// Update replaces the descriptor.
func (d *DocumentSubscription[T]) Update(desc Descriptor) { d.sub.update(desc) }

// Current returns the latest envelope.
func (d *DocumentSubscription[T]) Current() Envelope[*Record[T]] { return d.sub.current() }

// Close stops the listener.
func (d *DocumentSubscription[T]) Close() { d.sub.Close() }
