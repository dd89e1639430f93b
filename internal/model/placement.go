package model

import (
	"encoding/json"
	"sort"
	"time"
)

// PlacementStatus is the lifecycle state of a placement.
type PlacementStatus string

const (
	PlacementOpen      PlacementStatus = "open"
	PlacementClosed    PlacementStatus = "closed"
	PlacementCompleted PlacementStatus = "completed"
)

func (s PlacementStatus) Valid() bool {
	switch s {
	case PlacementOpen, PlacementClosed, PlacementCompleted:
		return true
	}
	return false
}

// RoundType decides who may see an update: common updates reach every
// registered student, round-specific ones only shortlisted students.
type RoundType string

const (
	RoundCommon   RoundType = "common"
	RoundSpecific RoundType = "round-specific"
)

func (r RoundType) Valid() bool { return r == RoundCommon || r == RoundSpecific }

// Placement mirrors a row of the `placements` table together with its
// decision sets (placement_decisions) and, on detail reads, its updates
// (placement_updates).
//
// Fields:
//
//	AssignedAdminID  – the delegated admin; nil until a superadmin delegates.
//	SelectedStudents – students shortlisted for the placement.
//	RejectedStudents – students rejected for the placement.  Never overlaps
//	                   SelectedStudents.
//	Updates          – posted updates; empty on list reads.
type Placement struct {
	ID                  uint64          `json:"id"`
	CompanyName         string          `json:"company_name"`
	JobTitle            string          `json:"job_title"`
	JobDescription      string          `json:"job_description"`
	EligibilityCriteria string          `json:"eligibility_criteria"`
	Deadline            time.Time       `json:"deadline"`
	ApplicationLink     string          `json:"application_link"`
	Location            *string         `json:"location,omitempty"`
	Salary              *string         `json:"salary,omitempty"`
	Status              PlacementStatus `json:"status"`
	AssignedAdminID     *uint64         `json:"assigned_admin_id"`
	SelectedStudents    StudentSet      `json:"selected_students"`
	RejectedStudents    StudentSet      `json:"rejected_students"`
	Updates             []Update        `json:"updates"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// RecordDecision moves studentID into the selected or rejected set
// according to status, removing it from the other set.  Statuses other
// than shortlisted and rejected are ignored.
func (p *Placement) RecordDecision(studentID uint64, status RegistrationStatus) {
	if p.SelectedStudents == nil {
		p.SelectedStudents = StudentSet{}
	}
	if p.RejectedStudents == nil {
		p.RejectedStudents = StudentSet{}
	}
	switch status {
	case RegistrationShortlisted:
		p.RejectedStudents.Remove(studentID)
		p.SelectedStudents.Add(studentID)
	case RegistrationRejected:
		p.SelectedStudents.Remove(studentID)
		p.RejectedStudents.Add(studentID)
	}
}

// Update is an immutable message posted on a placement.
type Update struct {
	ID          uint64    `json:"id"`
	PlacementID uint64    `json:"placement_id"`
	Text        string    `json:"text"`
	PostedBy    uint64    `json:"posted_by"`
	PostedAt    time.Time `json:"posted_at"`
	RoundType   RoundType `json:"round_type"`
}

// StudentSet is a set of student ids.  It encodes to JSON as a sorted array.
type StudentSet map[uint64]struct{}

func NewStudentSet(ids ...uint64) StudentSet {
	s := make(StudentSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s StudentSet) Has(id uint64) bool {
	_, ok := s[id]
	return ok
}

func (s StudentSet) Add(id uint64)    { s[id] = struct{}{} }
func (s StudentSet) Remove(id uint64) { delete(s, id) }

// IDs returns the members in ascending order.
func (s StudentSet) IDs() []uint64 {
	out := make([]uint64, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s StudentSet) MarshalJSON() ([]byte, error) { return json.Marshal(s.IDs()) }

func (s *StudentSet) UnmarshalJSON(b []byte) error {
	var ids []uint64
	if err := json.Unmarshal(b, &ids); err != nil {
		return err
	}
	*s = NewStudentSet(ids...)
	return nil
}
