package live

import (
	"context"

	"github.com/woundcare/woundcare/internal/platform/apperr"
	"github.com/woundcare/woundcare/internal/platform/docstore"
)

// Role values that select the owner filter of a collection group query.
const (
	RolePatient      = "patient"
	RoleProfessional = "professional"
)

// Owner fields of group-queried records.
const (
	FieldPatientID      = "patientId"
	FieldProfessionalID = "professionalId"
)

// CollectionSubscription keeps the records of a query live.
type CollectionSubscription[T any] struct {
	sub *subscription[[]Record[T]]
}

// Collection opens a subscription to the records selected by desc. onChange
// receives every new envelope, serialised; it must not call back into the
// subscription synchronously.
//
// Group queries are restricted to the viewer's own records: patients see
// records whose patientId is theirs, professionals those whose
// professionalId is theirs. Until the viewer has a role a group
// subscription stays idle and issues no query.
func Collection[T any](scope *Scope, desc Descriptor, decode Decoder[T], onChange func(Envelope[[]Record[T]])) *CollectionSubscription[T] {
	plan := func(desc Descriptor, uid, role string) (string, listenFunc[[]Record[T]]) {
		q, ok, reason := buildQuery(desc, uid, role)
		if !ok {
			return "idle:" + reason, nil
		}
		key := uid + "|" + q.Key()
		return key, func(ctx context.Context, conn *docstore.Conn, next func([]Record[T]), fail func(error)) func() {
			return conn.ListenQuery(ctx, q,
				func(snaps []*docstore.Snapshot) { next(decodeAll(scope, snaps, decode)) },
				fail,
			)
		}
	}
	c := &CollectionSubscription[T]{sub: newSubscription[[]Record[T]](scope, apperr.OpList, desc, plan, onChange)}
	c.sub.start()
	return c
}

// Update replaces the descriptor. A descriptor equal by value to the current
// one keeps the existing listener.
func (c *CollectionSubscription[T]) Update(desc Descriptor) { c.sub.update(desc) }

// Current returns the latest envelope.
func (c *CollectionSubscription[T]) Current() Envelope[[]Record[T]] { return c.sub.current() }

// Close stops the listener. It is safe to call more than once.
func (c *CollectionSubscription[T]) Close() { c.sub.Close() }

// buildQuery derives the store query for desc as seen by the viewer.
func buildQuery(desc Descriptor, uid, role string) (docstore.Query, bool, string) {
	if desc.Path == "" {
		return docstore.Query{}, false, "disabled"
	}
	if uid == "" {
		return docstore.Query{}, false, "signed-out"
	}
	q := docstore.Query{Collection: desc.Path, Group: desc.Group}
	if desc.Group {
		var field string
		switch role {
		case RolePatient:
			field = FieldPatientID
		case RoleProfessional:
			field = FieldProfessionalID
		default:
			return docstore.Query{}, false, "no-role"
		}
		q.Constraints = append(q.Constraints, docstore.Where(field, docstore.OpEqual, uid))
	}
	q.Constraints = append(q.Constraints, desc.Constraints...)
	return q, true, ""
}

func decodeAll[T any](scope *Scope, snaps []*docstore.Snapshot, decode Decoder[T]) []Record[T] {
	out := make([]Record[T], 0, len(snaps))
	for _, s := range snaps {
		v, err := decode(s)
		if err != nil {
			scope.logger.Warn().Err(err).Str("path", s.Path).Msg("skipping undecodable document")
			continue
		}
		out = append(out, Record[T]{ID: s.ID, Path: s.Path, Data: v})
	}
	return out
}
