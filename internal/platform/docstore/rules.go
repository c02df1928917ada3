package docstore

import "fmt"

// Actor is the principal a Conn acts for. An empty UID is an unauthenticated
// caller.
type Actor struct {
	UID       string
	Anonymous bool
}

// Rules decides which paths an actor may read, write and list.
//
// Owner roots grant access to everything below {root}/{uid} to the principal
// uid. Collection group queries are allowed only when they carry an equality
// filter binding one of the group's owner fields to the caller.
type Rules struct {
	ownerRoots  map[string]bool
	groupOwners map[string][]string
}

// NewRules builds Rules from owner roots and group owner fields.
func NewRules(ownerRoots []string, groupOwners map[string][]string) *Rules {
	r := &Rules{ownerRoots: make(map[string]bool), groupOwners: make(map[string][]string)}
	for _, root := range ownerRoots {
		r.ownerRoots[root] = true
	}
	for g, fields := range groupOwners {
		r.groupOwners[g] = append([]string(nil), fields...)
	}
	return r
}

// DefaultRules are the rules of the wound care application.
func DefaultRules() *Rules {
	return NewRules(
		[]string{"users", "images"},
		map[string][]string{
			"reports":     {"professionalId", "patientId"},
			"anamnesis":   {"professionalId", "patientId"},
			"comparisons": {"professionalId", "patientId"},
		},
	)
}

// CanAccess checks a read or write of a document or collection path.
func (r *Rules) CanAccess(a Actor, path string) error {
	segs, err := Segments(path)
	if err != nil {
		return err
	}
	if a.UID == "" {
		return fmt.Errorf("%w: unauthenticated access to %s", ErrPermissionDenied, path)
	}
	if len(segs) >= 2 && r.ownerRoots[segs[0]] && segs[1] == a.UID {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrPermissionDenied, path)
}

// CanList checks a query.
func (r *Rules) CanList(a Actor, q Query) error {
	if !q.Group {
		return r.CanAccess(a, q.Collection)
	}
	if a.UID == "" {
		return fmt.Errorf("%w: unauthenticated group query on %s", ErrPermissionDenied, q.Collection)
	}
	for _, field := range r.groupOwners[q.Collection] {
		if v, ok := q.EqualityFilter(field); ok {
			if s, ok := v.(string); ok && s == a.UID {
				return nil
			}
		}
	}
	return fmt.Errorf("%w: group query on %s must be filtered by its owner", ErrPermissionDenied, q.Collection)
}
