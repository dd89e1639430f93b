package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/campus-placement/internal/model"
	"github.com/iliyamo/campus-placement/internal/repository"
	"github.com/iliyamo/campus-placement/internal/visibility"
)

// PlacementStore persists placements, their updates and decision sets.
type PlacementStore interface {
	Create(ctx context.Context, p *model.Placement) error
	GetByID(ctx context.Context, id uint64) (*model.Placement, error)
	List(ctx context.Context, f repository.PlacementFilter) ([]*model.Placement, error)
	ListUpdates(ctx context.Context, placementID uint64) ([]model.Update, error)
	AddUpdate(ctx context.Context, u *model.Update) error
	AssignAdmin(ctx context.Context, id, adminID uint64) error
	SetStatus(ctx context.Context, id uint64, status model.PlacementStatus) error
	Delete(ctx context.Context, id uint64) error
}

// RegistrationStore persists registrations.  Create must return
// repository.ErrDuplicate when the (student, placement) pair already exists,
// and UpdateStatus must change the registration and the placement's
// decision sets atomically.
type RegistrationStore interface {
	Create(ctx context.Context, r *model.Registration) error
	Get(ctx context.Context, placementID, studentID uint64) (*model.Registration, error)
	ListByPlacement(ctx context.Context, placementID uint64) ([]model.RegistrationWithStudent, error)
	ListByStudent(ctx context.Context, studentID uint64) ([]model.Registration, error)
	StudentIDsByPlacement(ctx context.Context, placementID uint64) ([]uint64, error)
	UpdateStatus(ctx context.Context, placementID, studentID uint64, status model.RegistrationStatus,
		by uint64, at time.Time) (*model.Registration, error)
}

// UserLookup resolves user accounts, used to validate delegation targets.
type UserLookup interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// Notifier delivers a message to a user's mailbox.  Delivery is best
// effort; the service logs and drops any error it returns.
type Notifier interface {
	Notify(ctx context.Context, recipientID uint64, message string) error
}

// ResumeStore uploads a resume and returns its durable URL.
type ResumeStore interface {
	Upload(ctx context.Context, filename string, r io.Reader) (string, error)
}

const (
	defaultFanoutLimit = 8
	notifyTimeout      = 15 * time.Second
)

var resumeExtensions = map[string]bool{
	".pdf": true, ".doc": true, ".docx": true, ".png": true, ".jpg": true, ".jpeg": true,
}

// Option configures a PlacementService.
type Option func(*PlacementService)

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *PlacementService) { s.now = now }
}

// WithFanoutLimit bounds the number of concurrent notification writes made
// by a single update broadcast.
func WithFanoutLimit(n int) Option {
	return func(s *PlacementService) {
		if n > 0 {
			s.fanoutLimit = n
		}
	}
}

// WithResumeStore enables ApplyWithResume.
func WithResumeStore(r ResumeStore) Option {
	return func(s *PlacementService) { s.resumes = r }
}

// PlacementService implements the placement lifecycle: creation, delegation,
// update posting with notification fan-out, registration, shortlisting and
// the filtered read views.
type PlacementService struct {
	placements  PlacementStore
	regs        RegistrationStore
	users       UserLookup
	notifier    Notifier
	resumes     ResumeStore
	log         *zap.Logger
	now         func() time.Time
	fanoutLimit int
}

// NewPlacementService wires the service to its stores.
func NewPlacementService(placements PlacementStore, regs RegistrationStore, users UserLookup,
	notifier Notifier, log *zap.Logger, opts ...Option) *PlacementService {
	if log == nil {
		log = zap.NewNop()
	}
	s := &PlacementService{
		placements:  placements,
		regs:        regs,
		users:       users,
		notifier:    notifier,
		log:         log,
		now:         time.Now,
		fanoutLimit: defaultFanoutLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreatePlacementInput carries the fields of a new placement.  Location and
// Salary are optional.
type CreatePlacementInput struct {
	CompanyName         string
	JobTitle            string
	JobDescription      string
	EligibilityCriteria string
	Deadline            time.Time
	ApplicationLink     string
	Location            *string
	Salary              *string
}

func (in *CreatePlacementInput) normalize() error {
	in.CompanyName = strings.TrimSpace(in.CompanyName)
	in.JobTitle = strings.TrimSpace(in.JobTitle)
	in.JobDescription = strings.TrimSpace(in.JobDescription)
	in.EligibilityCriteria = strings.TrimSpace(in.EligibilityCriteria)
	in.ApplicationLink = strings.TrimSpace(in.ApplicationLink)

	var missing []string
	for _, f := range []struct {
		name, value string
	}{
		{"company_name", in.CompanyName},
		{"job_title", in.JobTitle},
		{"job_description", in.JobDescription},
		{"eligibility_criteria", in.EligibilityCriteria},
		{"application_link", in.ApplicationLink},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if in.Deadline.IsZero() {
		missing = append(missing, "deadline")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidInput, strings.Join(missing, ", "))
	}
	return nil
}

// PlacementView is a placement as shown to a particular actor: updates are
// filtered for that actor and RegistrationStatus reports the actor's own
// registration ("not_registered" when there is none).
type PlacementView struct {
	*model.Placement
	RegistrationStatus string `json:"registration_status"`
}

func requireActor(actor model.Actor) error {
	if actor.ID == 0 || actor.Kind == model.ActorUnknown {
		return ErrUnauthenticated
	}
	return nil
}

func (s *PlacementService) load(ctx context.Context, id uint64) (*model.Placement, error) {
	p, err := s.placements.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: placement %d", ErrNotFound, id)
	}
	return p, err
}

// managed loads a placement and checks that actor owns it.
func (s *PlacementService) managed(ctx context.Context, actor model.Actor, id uint64) (*model.Placement, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Manages(p) {
		return nil, fmt.Errorf("%w: placement %d is not managed by user %d", ErrForbidden, id, actor.ID)
	}
	return p, nil
}

// Create stores a new open placement.  Only a superadmin may create one.
func (s *PlacementService) Create(ctx context.Context, actor model.Actor, in CreatePlacementInput) (*model.Placement, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !actor.IsSuperAdmin() {
		return nil, fmt.Errorf("%w: only a superadmin can create placements", ErrForbidden)
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}
	p := &model.Placement{
		CompanyName:         in.CompanyName,
		JobTitle:            in.JobTitle,
		JobDescription:      in.JobDescription,
		EligibilityCriteria: in.EligibilityCriteria,
		Deadline:            in.Deadline.UTC(),
		ApplicationLink:     in.ApplicationLink,
		Location:            in.Location,
		Salary:              in.Salary,
		Status:              model.PlacementOpen,
		SelectedStudents:    model.StudentSet{},
		RejectedStudents:    model.StudentSet{},
		Updates:             []model.Update{},
	}
	if err := s.placements.Create(ctx, p); err != nil {
		return nil, err
	}
	s.log.Info("placement created", zap.Uint64("placement_id", p.ID), zap.Uint64("actor_id", actor.ID))
	return p, nil
}

// Delegate assigns adminID as the owner of a placement.  The target must be
// an active admin account.
func (s *PlacementService) Delegate(ctx context.Context, actor model.Actor, placementID, adminID uint64) (*model.Placement, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !actor.IsSuperAdmin() {
		return nil, fmt.Errorf("%w: only a superadmin can delegate placements", ErrForbidden)
	}
	p, err := s.load(ctx, placementID)
	if err != nil {
		return nil, err
	}
	if adminID == 0 {
		return nil, fmt.Errorf("%w: admin_id is required", ErrInvalidInput)
	}
	u, err := s.users.GetByID(ctx, adminID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("%w: user %d does not exist", ErrInvalidInput, adminID)
	case err != nil:
		return nil, err
	case !u.IsActive || u.Kind() != model.ActorAdmin:
		return nil, fmt.Errorf("%w: user %d is not an active admin", ErrInvalidInput, adminID)
	}
	if err := s.placements.AssignAdmin(ctx, placementID, adminID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: placement %d", ErrNotFound, placementID)
		}
		return nil, err
	}
	p.AssignedAdminID = &adminID
	s.log.Info("placement delegated",
		zap.Uint64("placement_id", placementID), zap.Uint64("admin_id", adminID), zap.Uint64("actor_id", actor.ID))
	return p, nil
}

// PostUpdate appends an update to a placement and notifies its audience:
// every registrant for a common update, only shortlisted students for a
// round-specific one.  Notification failures never fail the post.
func (s *PlacementService) PostUpdate(ctx context.Context, actor model.Actor, placementID uint64,
	text string, roundType model.RoundType) (*model.Update, error) {
	p, err := s.managed(ctx, actor, placementID)
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: text is required", ErrInvalidInput)
	}
	if !roundType.Valid() {
		return nil, fmt.Errorf("%w: round_type must be %q or %q", ErrInvalidInput, model.RoundCommon, model.RoundSpecific)
	}

	u := &model.Update{
		PlacementID: placementID,
		Text:        text,
		PostedBy:    actor.ID,
		PostedAt:    s.now().UTC(),
		RoundType:   roundType,
	}
	if err := s.placements.AddUpdate(ctx, u); err != nil {
		return nil, err
	}

	recipients, err := s.recipients(ctx, p, roundType)
	if err != nil {
		s.log.Error("resolve update recipients", zap.Uint64("placement_id", placementID), zap.Error(err))
		return u, nil
	}
	msg := fmt.Sprintf("A new update has been posted for the placement: %s. Please check the placement details.", p.CompanyName)
	s.fanOut(ctx, placementID, recipients, msg)
	return u, nil
}

// recipients returns the deduplicated audience of an update.
func (s *PlacementService) recipients(ctx context.Context, p *model.Placement, rt model.RoundType) ([]uint64, error) {
	var ids []uint64
	if rt == model.RoundSpecific {
		ids = p.SelectedStudents.IDs()
	} else {
		var err error
		if ids, err = s.regs.StudentIDsByPlacement(ctx, p.ID); err != nil {
			return nil, err
		}
	}
	seen := make(map[uint64]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out, nil
}

// fanOut writes one notification per recipient with at most fanoutLimit
// writes in flight.  It waits for all writes; a failed write is logged and
// does not stop the others.
func (s *PlacementService) fanOut(ctx context.Context, placementID uint64, recipients []uint64, message string) {
	if len(recipients) == 0 || s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	var g errgroup.Group
	g.SetLimit(s.fanoutLimit)
	for _, id := range recipients {
		id := id
		g.Go(func() error {
			s.notify(ctx, placementID, id, message)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *PlacementService) notify(ctx context.Context, placementID, recipientID uint64, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, recipientID, message); err != nil {
		s.log.Warn("notification dropped",
			zap.Uint64("recipient_id", recipientID), zap.Uint64("placement_id", placementID), zap.Error(err))
	}
}

func (s *PlacementService) checkAcceptsRegistrations(p *model.Placement) error {
	if p.Status != model.PlacementOpen {
		return fmt.Errorf("%w: placement %d is %s", ErrConflict, p.ID, p.Status)
	}
	if s.now().After(p.Deadline) {
		return fmt.Errorf("%w: registration deadline for placement %d has passed", ErrConflict, p.ID)
	}
	return nil
}

func validURL(field, raw string) error {
	u, err := url.Parse(raw)
	if raw == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %s must be an absolute http(s) URL", ErrInvalidInput, field)
	}
	return nil
}

// Apply registers the calling student for a placement.  A second
// application for the same placement fails with ErrConflict; the check is
// made by the store's unique key, not by a prior read.
func (s *PlacementService) Apply(ctx context.Context, actor model.Actor, placementID uint64,
	resumeURL, formURL string) (*model.Registration, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !actor.IsStudent() {
		return nil, fmt.Errorf("%w: only students can register", ErrForbidden)
	}
	resumeURL, formURL = strings.TrimSpace(resumeURL), strings.TrimSpace(formURL)
	if err := validURL("resume_url", resumeURL); err != nil {
		return nil, err
	}
	if err := validURL("form_url", formURL); err != nil {
		return nil, err
	}
	p, err := s.load(ctx, placementID)
	if err != nil {
		return nil, err
	}
	if err := s.checkAcceptsRegistrations(p); err != nil {
		return nil, err
	}

	reg := &model.Registration{
		StudentID:   actor.ID,
		PlacementID: placementID,
		ResumeURL:   resumeURL,
		FormURL:     formURL,
		Status:      model.RegistrationRegistered,
		AppliedAt:   s.now().UTC(),
	}
	if err := s.regs.Create(ctx, reg); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%w: already registered for placement %d", ErrConflict, placementID)
		}
		return nil, err
	}
	s.log.Info("student registered", zap.Uint64("placement_id", placementID), zap.Uint64("student_id", actor.ID))
	return reg, nil
}

// ApplyWithResume uploads the resume file and then registers with the
// returned URL.  Placement state is checked before the upload so that a
// closed placement does not leave orphaned files behind.
func (s *PlacementService) ApplyWithResume(ctx context.Context, actor model.Actor, placementID uint64,
	filename string, resume io.Reader, formURL string) (*model.Registration, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !actor.IsStudent() {
		return nil, fmt.Errorf("%w: only students can register", ErrForbidden)
	}
	if s.resumes == nil {
		return nil, fmt.Errorf("%w: resume upload is not available, send resume_url instead", ErrInvalidInput)
	}
	if !resumeExtensions[strings.ToLower(filepath.Ext(filename))] {
		return nil, fmt.Errorf("%w: resume must be a pdf, doc, docx or image file", ErrInvalidInput)
	}
	formURL = strings.TrimSpace(formURL)
	if err := validURL("form_url", formURL); err != nil {
		return nil, err
	}
	p, err := s.load(ctx, placementID)
	if err != nil {
		return nil, err
	}
	if err := s.checkAcceptsRegistrations(p); err != nil {
		return nil, err
	}
	if _, err := s.regs.Get(ctx, placementID, actor.ID); err == nil {
		return nil, fmt.Errorf("%w: already registered for placement %d", ErrConflict, placementID)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	resumeURL, err := s.resumes.Upload(ctx, filename, resume)
	if err != nil {
		return nil, fmt.Errorf("upload resume: %w", err)
	}
	return s.Apply(ctx, actor, placementID, resumeURL, formURL)
}

// SetStatus shortlists or rejects a registered student and notifies them.
func (s *PlacementService) SetStatus(ctx context.Context, actor model.Actor, placementID, studentID uint64,
	status model.RegistrationStatus) (*model.Registration, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !status.IsDecision() {
		return nil, fmt.Errorf("%w: status must be %q or %q", ErrInvalidInput,
			model.RegistrationShortlisted, model.RegistrationRejected)
	}
	p, err := s.managed(ctx, actor, placementID)
	if err != nil {
		return nil, err
	}
	reg, err := s.regs.UpdateStatus(ctx, placementID, studentID, status, actor.ID, s.now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: student %d is not registered for placement %d", ErrNotFound, studentID, placementID)
		}
		return nil, err
	}
	p.RecordDecision(studentID, status)
	s.log.Info("registration status changed",
		zap.Uint64("placement_id", placementID), zap.Uint64("student_id", studentID),
		zap.String("status", string(status)), zap.Uint64("actor_id", actor.ID))

	var msg string
	if status == model.RegistrationShortlisted {
		msg = "You have been shortlisted for " + p.CompanyName
	} else {
		msg = "You have been rejected for " + p.CompanyName
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	s.notify(nctx, placementID, studentID, msg)
	return reg, nil
}

// SetPlacementStatus moves a placement between open and closed, or marks it
// completed.  Completed is terminal.
func (s *PlacementService) SetPlacementStatus(ctx context.Context, actor model.Actor, placementID uint64,
	status model.PlacementStatus) (*model.Placement, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown placement status %q", ErrInvalidInput, status)
	}
	p, err := s.managed(ctx, actor, placementID)
	if err != nil {
		return nil, err
	}
	if p.Status == status {
		return p, nil
	}
	if p.Status == model.PlacementCompleted {
		return nil, fmt.Errorf("%w: placement %d is already completed", ErrConflict, placementID)
	}
	if err := s.placements.SetStatus(ctx, placementID, status); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: placement %d", ErrNotFound, placementID)
		}
		return nil, err
	}
	s.log.Info("placement status changed", zap.Uint64("placement_id", placementID),
		zap.String("from", string(p.Status)), zap.String("to", string(status)))
	p.Status = status
	return p, nil
}

// Details returns a placement with its updates filtered for actor.  Any
// authenticated actor may ask; what they see depends on their role and
// registration.
func (s *PlacementService) Details(ctx context.Context, actor model.Actor, placementID uint64) (*PlacementView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	p, err := s.load(ctx, placementID)
	if err != nil {
		return nil, err
	}
	updates, err := s.placements.ListUpdates(ctx, placementID)
	if err != nil {
		return nil, err
	}
	p.Updates = updates

	var reg *model.Registration
	status := model.NotRegistered
	if actor.IsStudent() {
		r, err := s.regs.Get(ctx, placementID, actor.ID)
		switch {
		case err == nil:
			reg = r
			status = string(r.Status)
		case !errors.Is(err, repository.ErrNotFound):
			return nil, err
		}
	}

	view := *p
	view.Updates = visibility.FilterUpdates(actor, p, reg)
	if !actor.Manages(p) {
		hideDecisions(&view)
	}
	return &PlacementView{Placement: &view, RegistrationStatus: status}, nil
}

func hideDecisions(p *model.Placement) {
	p.SelectedStudents = model.StudentSet{}
	p.RejectedStudents = model.StudentSet{}
}

// ListForStudent returns open placements annotated with the caller's own
// registration status.
func (s *PlacementService) ListForStudent(ctx context.Context, actor model.Actor) ([]PlacementView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !actor.IsStudent() {
		return nil, fmt.Errorf("%w: student listing is for students", ErrForbidden)
	}
	open := model.PlacementOpen
	ps, err := s.placements.List(ctx, repository.PlacementFilter{Status: &open})
	if err != nil {
		return nil, err
	}
	regs, err := s.regs.ListByStudent(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	statusByPlacement := make(map[uint64]model.RegistrationStatus, len(regs))
	for _, r := range regs {
		statusByPlacement[r.PlacementID] = r.Status
	}

	out := make([]PlacementView, 0, len(ps))
	for _, p := range ps {
		hideDecisions(p)
		p.Updates = []model.Update{}
		status := model.NotRegistered
		if st, ok := statusByPlacement[p.ID]; ok {
			status = string(st)
		}
		out = append(out, PlacementView{Placement: p, RegistrationStatus: status})
	}
	return out, nil
}

// ListForAdmin returns every placement for a superadmin and the delegated
// placements for an admin.
func (s *PlacementService) ListForAdmin(ctx context.Context, actor model.Actor) ([]*model.Placement, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	var f repository.PlacementFilter
	switch {
	case actor.IsSuperAdmin():
	case actor.IsAdmin():
		id := actor.ID
		f.AssignedAdminID = &id
	default:
		return nil, fmt.Errorf("%w: admin listing is for admins", ErrForbidden)
	}
	return s.placements.List(ctx, f)
}

// Delete removes a placement with its updates, decisions and
// registrations.  Deleting an absent placement succeeds.
func (s *PlacementService) Delete(ctx context.Context, actor model.Actor, placementID uint64) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if !actor.IsSuperAdmin() {
		return fmt.Errorf("%w: only a superadmin can delete placements", ErrForbidden)
	}
	if err := s.placements.Delete(ctx, placementID); err != nil {
		return err
	}
	s.log.Info("placement deleted", zap.Uint64("placement_id", placementID), zap.Uint64("actor_id", actor.ID))
	return nil
}

// RegistrationsForPlacement lists registrations with the student summary.
// Only the placement's managers may see them.
func (s *PlacementService) RegistrationsForPlacement(ctx context.Context, actor model.Actor,
	placementID uint64) ([]model.RegistrationWithStudent, error) {
	if _, err := s.managed(ctx, actor, placementID); err != nil {
		return nil, err
	}
	return s.regs.ListByPlacement(ctx, placementID)
}

// MyRegistrations lists the calling student's registrations.
func (s *PlacementService) MyRegistrations(ctx context.Context, actor model.Actor) ([]model.Registration, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !actor.IsStudent() {
		return nil, fmt.Errorf("%w: only students have registrations", ErrForbidden)
	}
	return s.regs.ListByStudent(ctx, actor.ID)
}
