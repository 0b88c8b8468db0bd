package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/PratikDhanave/access-status-service/internal/models"
)

// MemoryStore is an in-process Store for tests and dev. A unit of work holds
// the store lock for its whole duration and writes to a private copy that is
// swapped in only on success.
type MemoryStore struct {
	mu    sync.Mutex
	state memState
	now   func() time.Time
}

type linkKey struct {
	accessPointID int64
	reportID      int64
}

type memState struct {
	lastReportID int64
	lastStatusID int64
	accessPoints map[int64]struct{}
	reports      map[int64]models.Report
	refs         map[string]int64
	statuses     []models.Status
	links        map[linkKey]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: memState{
			accessPoints: map[int64]struct{}{},
			reports:      map[int64]models.Report{},
			refs:         map[string]int64{},
			links:        map[linkKey]struct{}{},
		},
		now: time.Now,
	}
}

func (m *MemoryStore) clone() memState {
	c := memState{
		lastReportID: m.state.lastReportID,
		lastStatusID: m.state.lastStatusID,
		accessPoints: make(map[int64]struct{}, len(m.state.accessPoints)),
		reports:      make(map[int64]models.Report, len(m.state.reports)),
		refs:         make(map[string]int64, len(m.state.refs)),
		statuses:     append([]models.Status(nil), m.state.statuses...),
		links:        make(map[linkKey]struct{}, len(m.state.links)),
	}
	for k, v := range m.state.accessPoints {
		c.accessPoints[k] = v
	}
	for k, v := range m.state.reports {
		c.reports[k] = v
	}
	for k, v := range m.state.refs {
		c.refs[k] = v
	}
	for k, v := range m.state.links {
		c.links[k] = v
	}
	return c
}

func (m *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	staged := m.clone()
	if err := fn(ctx, &memTx{st: &staged, now: m.now}); err != nil {
		return err
	}
	m.state = staged
	return nil
}

func (m *MemoryStore) EnsureSchema(context.Context) error { return nil }
func (m *MemoryStore) Ping(context.Context) error         { return nil }
func (m *MemoryStore) Close()                             {}

func (m *MemoryStore) AddAccessPoint(_ context.Context, id int64, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.accessPoints[id] = struct{}{}
	return nil
}

// Counts returns the number of reports, statuses and links. Test-only helper.
func (m *MemoryStore) Counts() (reports, statuses, links int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.reports), len(m.state.statuses), len(m.state.links)
}

type memTx struct {
	st  *memState
	now func() time.Time
}

func (t *memTx) newReport(ref *string) models.Report {
	t.st.lastReportID++
	r := models.Report{ID: t.st.lastReportID, Ref: ref, CreatedAt: t.now().UTC()}
	t.st.reports[r.ID] = r
	if ref != nil {
		t.st.refs[*ref] = r.ID
	}
	return r
}

func (t *memTx) EnsureReport(_ context.Context, ref string) (models.Report, bool, error) {
	if id, ok := t.st.refs[ref]; ok {
		return t.st.reports[id], false, nil
	}
	ref2 := ref
	return t.newReport(&ref2), true, nil
}

func (t *memTx) CreateReport(context.Context) (models.Report, error) {
	return t.newReport(nil), nil
}

func (t *memTx) InsertStatus(_ context.Context, s *models.Status) error {
	if _, ok := t.st.reports[s.ReportID]; !ok {
		return fmt.Errorf("report %d: %w", s.ReportID, ErrNotFound)
	}
	t.st.lastStatusID++
	s.ID = t.st.lastStatusID
	t.st.statuses = append(t.st.statuses, *s)
	return nil
}

func (t *memTx) Link(_ context.Context, accessPointID, reportID int64) (bool, error) {
	if _, ok := t.st.accessPoints[accessPointID]; !ok {
		return false, fmt.Errorf("access point %d: %w", accessPointID, ErrNotFound)
	}
	if _, ok := t.st.reports[reportID]; !ok {
		return false, fmt.Errorf("report %d: %w", reportID, ErrNotFound)
	}
	k := linkKey{accessPointID, reportID}
	if _, ok := t.st.links[k]; ok {
		return false, nil
	}
	t.st.links[k] = struct{}{}
	return true, nil
}

func (t *memTx) LockAccessPoint(ctx context.Context, accessPointID int64) error {
	if ok, _ := t.AccessPointExists(ctx, accessPointID); !ok {
		return fmt.Errorf("access point %d: %w", accessPointID, ErrNotFound)
	}
	return nil
}

func (t *memTx) AccessPointExists(_ context.Context, accessPointID int64) (bool, error) {
	_, ok := t.st.accessPoints[accessPointID]
	return ok, nil
}

func (t *memTx) LatestStatus(_ context.Context, accessPointID int64) (*models.Status, error) {
	var latest *models.Status
	for i := range t.st.statuses {
		s := t.st.statuses[i]
		if _, ok := t.st.links[linkKey{accessPointID, s.ReportID}]; !ok {
			continue
		}
		if latest == nil || s.Timestamp.After(latest.Timestamp) ||
			(s.Timestamp.Equal(latest.Timestamp) && s.ID > latest.ID) {
			latest = &s
		}
	}
	return latest, nil
}

func (t *memTx) LatestReport(_ context.Context, accessPointID int64) (*models.Report, error) {
	var latest *models.Report
	for k := range t.st.links {
		if k.accessPointID != accessPointID {
			continue
		}
		r := t.st.reports[k.reportID]
		if latest == nil || r.ID > latest.ID {
			latest = &r
		}
	}
	return latest, nil
}

func (t *memTx) ReportByID(_ context.Context, id int64) (*models.Report, error) {
	r, ok := t.st.reports[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (t *memTx) Statuses(_ context.Context, reportID int64) ([]models.Status, error) {
	var out []models.Status
	for _, s := range t.st.statuses {
		if s.ReportID == reportID {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}
