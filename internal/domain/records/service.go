package records

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/woundcare/woundcare/internal/domain/session"
	"github.com/woundcare/woundcare/internal/platform/docstore"
	"github.com/woundcare/woundcare/internal/platform/genai/flows"
)

// Comparer runs the report comparison flow.
type Comparer interface {
	CompareReports(ctx context.Context, in flows.CompareInput) (*flows.CompareOutput, error)
}

// Entry is a stored record with its id and path.
type Entry[T any] struct {
	ID   string `json:"id"`
	Path string `json:"path"`
	Data T      `json:"data"`
}

// Service reads and writes the clinical records of a principal. Every
// operation runs as that principal, so the store's access rules apply.
type Service struct {
	client   *docstore.Client
	comparer Comparer
	now      func() time.Time
}

func NewService(client *docstore.Client, comparer Comparer) *Service {
	return &Service{client: client, comparer: comparer, now: time.Now}
}

func (s *Service) conn(uid string) *docstore.Conn {
	return s.client.As(docstore.Actor{UID: uid})
}

// CreateAnamnesis stores an intake form owned by professional uid.
func (s *Service) CreateAnamnesis(ctx context.Context, uid string, rec AnamnesisRecord) (*Entry[AnamnesisRecord], error) {
	rec.PatientName = strings.TrimSpace(rec.PatientName)
	rec.ProfessionalID = uid
	rec.CreatedAt = formatTime(s.now())
	if err := validate.Struct(rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return create(ctx, s.conn(uid), docstore.Join(CollectionUsers, uid, CollectionAnamnesis), rec)
}

// ListAnamnesis returns the intake forms of uid, newest first.
func (s *Service) ListAnamnesis(ctx context.Context, uid string) ([]Entry[AnamnesisRecord], error) {
	return list(ctx, s.conn(uid), ownQuery(uid, CollectionAnamnesis), DecodeAnamnesis)
}

// CreateReport stores a wound report owned by professional uid.
func (s *Service) CreateReport(ctx context.Context, uid string, rec ReportRecord) (*Entry[ReportRecord], error) {
	rec.PatientName = strings.TrimSpace(rec.PatientName)
	rec.ProfessionalID = uid
	rec.CreatedAt = formatTime(s.now())
	if err := validate.Struct(rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return create(ctx, s.conn(uid), docstore.Join(CollectionUsers, uid, CollectionReports), rec)
}

// ListReports returns reports newest first. Professionals see the reports
// they wrote; patients see every report whose patientId is theirs.
func (s *Service) ListReports(ctx context.Context, uid string, role session.Role) ([]Entry[ReportRecord], error) {
	q := ownQuery(uid, CollectionReports)
	if role == session.RolePatient {
		q = docstore.Query{
			Collection: CollectionReports,
			Group:      true,
			Constraints: []docstore.Constraint{
				docstore.Where("patientId", docstore.OpEqual, uid),
				docstore.OrderBy("createdAt", docstore.Desc),
			},
		}
	}
	return list(ctx, s.conn(uid), q, DecodeReport)
}

// GetReport reads one report of professional uid.
func (s *Service) GetReport(ctx context.Context, uid, id string) (*Entry[ReportRecord], error) {
	path := docstore.Join(CollectionUsers, uid, CollectionReports, id)
	snap, err := s.conn(uid).Get(ctx, path)
	if err != nil {
		return nil, err
	}
	if !snap.Exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	rec, err := DecodeReport(snap)
	if err != nil {
		return nil, err
	}
	return &Entry[ReportRecord]{ID: snap.ID, Path: snap.Path, Data: rec}, nil
}

// CompareReports runs the comparison flow over two reports of uid, in
// chronological order, and stores the result.
func (s *Service) CompareReports(ctx context.Context, uid, report1ID, report2ID string) (*Entry[ComparisonRecord], error) {
	if report1ID == "" || report2ID == "" || report1ID == report2ID {
		return nil, fmt.Errorf("%w: two different reports are required", ErrInvalidRecord)
	}
	r1, err := s.GetReport(ctx, uid, report1ID)
	if err != nil {
		return nil, err
	}
	r2, err := s.GetReport(ctx, uid, report2ID)
	if err != nil {
		return nil, err
	}
	if r2.Data.CreatedAt < r1.Data.CreatedAt {
		r1, r2 = r2, r1
	}

	analysis, err := s.comparer.CompareReports(ctx, flows.CompareInput{
		Report1Content: r1.Data.ReportContent,
		Report2Content: r2.Data.ReportContent,
		Image1DataURI:  r1.Data.ImageDataURI,
		Image2DataURI:  r2.Data.ImageDataURI,
		Report1Date:    r1.Data.CreatedAt,
		Report2Date:    r2.Data.CreatedAt,
	})
	if err != nil {
		return nil, err
	}

	rec := ComparisonRecord{
		Report1ID:      r1.ID,
		Report2ID:      r2.ID,
		PatientID:      r1.Data.PatientID,
		PatientName:    r1.Data.PatientName,
		ProfessionalID: uid,
		Analysis:       *analysis,
		CreatedAt:      formatTime(s.now()),
	}
	return create(ctx, s.conn(uid), docstore.Join(CollectionUsers, uid, CollectionComparisons), rec)
}

// ListComparisons returns the stored comparisons of uid, newest first.
func (s *Service) ListComparisons(ctx context.Context, uid string) ([]Entry[ComparisonRecord], error) {
	return list(ctx, s.conn(uid), ownQuery(uid, CollectionComparisons), DecodeComparison)
}

// Stats counts the records of professional uid. Patients are counted by
// distinct patient name across intake forms.
func (s *Service) Stats(ctx context.Context, uid string) (*Stats, error) {
	conn := s.conn(uid)
	var st Stats

	anamnesis, err := conn.Query(ctx, docstore.Query{Collection: docstore.Join(CollectionUsers, uid, CollectionAnamnesis)})
	if err != nil {
		return nil, err
	}
	patients := make(map[string]struct{})
	for _, snap := range anamnesis {
		if name, ok := snap.Data["patientName"].(string); ok && strings.TrimSpace(name) != "" {
			patients[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
		}
	}
	st.Anamnesis = len(anamnesis)
	st.Patients = len(patients)

	for _, c := range []struct {
		collection string
		dst        *int
	}{
		{CollectionReports, &st.Reports},
		{CollectionComparisons, &st.Comparisons},
	} {
		snaps, err := conn.Query(ctx, docstore.Query{Collection: docstore.Join(CollectionUsers, uid, c.collection)})
		if err != nil {
			return nil, err
		}
		*c.dst = len(snaps)
	}
	return &st, nil
}

func ownQuery(uid, collection string) docstore.Query {
	return docstore.Query{
		Collection:  docstore.Join(CollectionUsers, uid, collection),
		Constraints: []docstore.Constraint{docstore.OrderBy("createdAt", docstore.Desc)},
	}
}

func create[T any](ctx context.Context, conn *docstore.Conn, collection string, rec T) (*Entry[T], error) {
	doc, err := toDocument(rec)
	if err != nil {
		return nil, err
	}
	id, err := conn.Add(ctx, collection, doc)
	if err != nil {
		return nil, err
	}
	return &Entry[T]{ID: id, Path: docstore.Join(collection, id), Data: rec}, nil
}

// list runs q and decodes the results. Documents that are not valid
// records are skipped.
func list[T any](ctx context.Context, conn *docstore.Conn, q docstore.Query, dec func(*docstore.Snapshot) (T, error)) ([]Entry[T], error) {
	snaps, err := conn.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]Entry[T], 0, len(snaps))
	for _, snap := range snaps {
		rec, err := dec(snap)
		if errors.Is(err, ErrInvalidRecord) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, Entry[T]{ID: snap.ID, Path: snap.Path, Data: rec})
	}
	return out, nil
}
