package service

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/campus-placement/internal/model"
	"github.com/iliyamo/campus-placement/internal/repository"
)

// memDB backs the in-memory placement and registration stores.  Both
// fakes share it so that deletes cascade the way the SQL store does.
type memDB struct {
	mu           sync.Mutex
	nextID       uint64
	nextUpdateID uint64
	placements   map[uint64]*model.Placement
	updates      map[uint64][]model.Update
	regs         map[regKey]*model.Registration
}

type regKey struct{ placement, student uint64 }

func newMemDB() *memDB {
	return &memDB{
		placements: map[uint64]*model.Placement{},
		updates:    map[uint64][]model.Update{},
		regs:       map[regKey]*model.Registration{},
	}
}

func clonePlacement(p *model.Placement) *model.Placement {
	c := *p
	c.SelectedStudents = model.NewStudentSet(p.SelectedStudents.IDs()...)
	c.RejectedStudents = model.NewStudentSet(p.RejectedStudents.IDs()...)
	c.Updates = []model.Update{}
	if p.AssignedAdminID != nil {
		id := *p.AssignedAdminID
		c.AssignedAdminID = &id
	}
	return &c
}

// ── placements ──

type fakePlacements struct{ db *memDB }

func (f fakePlacements) Create(_ context.Context, p *model.Placement) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.nextID++
	p.ID = f.db.nextID
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	f.db.placements[p.ID] = clonePlacement(p)
	return nil
}

func (f fakePlacements) GetByID(_ context.Context, id uint64) (*model.Placement, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	p, ok := f.db.placements[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clonePlacement(p), nil
}

func (f fakePlacements) List(_ context.Context, filter repository.PlacementFilter) ([]*model.Placement, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	out := []*model.Placement{}
	for _, p := range f.db.placements {
		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		if filter.AssignedAdminID != nil && (p.AssignedAdminID == nil || *p.AssignedAdminID != *filter.AssignedAdminID) {
			continue
		}
		out = append(out, clonePlacement(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (f fakePlacements) ListUpdates(_ context.Context, placementID uint64) ([]model.Update, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	return append([]model.Update{}, f.db.updates[placementID]...), nil
}

func (f fakePlacements) AddUpdate(_ context.Context, u *model.Update) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.nextUpdateID++
	u.ID = f.db.nextUpdateID
	f.db.updates[u.PlacementID] = append(f.db.updates[u.PlacementID], *u)
	return nil
}

func (f fakePlacements) AssignAdmin(_ context.Context, id, adminID uint64) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	p, ok := f.db.placements[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.AssignedAdminID = &adminID
	return nil
}

func (f fakePlacements) SetStatus(_ context.Context, id uint64, status model.PlacementStatus) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	p, ok := f.db.placements[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.Status = status
	return nil
}

func (f fakePlacements) Delete(_ context.Context, id uint64) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	delete(f.db.placements, id)
	delete(f.db.updates, id)
	for k := range f.db.regs {
		if k.placement == id {
			delete(f.db.regs, k)
		}
	}
	return nil
}

// ── registrations ──

type fakeRegistrations struct{ db *memDB }

func (f fakeRegistrations) Create(_ context.Context, r *model.Registration) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	k := regKey{r.PlacementID, r.StudentID}
	if _, ok := f.db.regs[k]; ok {
		return repository.ErrDuplicate
	}
	c := *r
	f.db.regs[k] = &c
	return nil
}

func (f fakeRegistrations) Get(_ context.Context, placementID, studentID uint64) (*model.Registration, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	r, ok := f.db.regs[regKey{placementID, studentID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *r
	return &c, nil
}

func (f fakeRegistrations) ListByPlacement(_ context.Context, placementID uint64) ([]model.RegistrationWithStudent, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	out := []model.RegistrationWithStudent{}
	for k, r := range f.db.regs {
		if k.placement == placementID {
			out = append(out, model.RegistrationWithStudent{Registration: *r})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

func (f fakeRegistrations) ListByStudent(_ context.Context, studentID uint64) ([]model.Registration, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	out := []model.Registration{}
	for k, r := range f.db.regs {
		if k.student == studentID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f fakeRegistrations) StudentIDsByPlacement(_ context.Context, placementID uint64) ([]uint64, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []uint64
	for k := range f.db.regs {
		if k.placement == placementID {
			out = append(out, k.student)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (f fakeRegistrations) UpdateStatus(_ context.Context, placementID, studentID uint64,
	status model.RegistrationStatus, by uint64, at time.Time) (*model.Registration, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	r, ok := f.db.regs[regKey{placementID, studentID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	r.Status = status
	r.StatusUpdatedAt = &at
	r.StatusUpdatedBy = &by
	if p, ok := f.db.placements[placementID]; ok {
		p.RecordDecision(studentID, status)
	}
	c := *r
	return &c, nil
}

// ── users ──

type fakeUsers map[uint64]model.User

func (f fakeUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	u, ok := f[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

// ── notifier ──

type sentNotification struct {
	recipient uint64
	message   string
}

type fakeNotifier struct {
	mu     sync.Mutex
	sent   []sentNotification
	failed map[uint64]bool
}

func (n *fakeNotifier) Notify(_ context.Context, recipientID uint64, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failed[recipientID] {
		return errors.New("mailbox unavailable")
	}
	n.sent = append(n.sent, sentNotification{recipientID, message})
	return nil
}

func (n *fakeNotifier) recipients() []uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]uint64, 0, len(n.sent))
	for _, s := range n.sent {
		out = append(out, s.recipient)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (n *fakeNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = nil
}

// ── resume store ──

type fakeResumes struct {
	mu      sync.Mutex
	uploads []string
	err     error
}

func (f *fakeResumes) Upload(_ context.Context, filename string, r io.Reader) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	_, _ = io.Copy(io.Discard, r)
	f.uploads = append(f.uploads, filename)
	return "https://files.example.com/" + filename, nil
}
