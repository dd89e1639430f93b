package model

import "time"

// RegistrationStatus is the state of a student's application to a placement.
type RegistrationStatus string

const (
	RegistrationRegistered  RegistrationStatus = "registered"
	RegistrationShortlisted RegistrationStatus = "shortlisted"
	RegistrationRejected    RegistrationStatus = "rejected"
)

// NotRegistered is reported in place of a status when the caller has no
// registration for a placement.
const NotRegistered = "not_registered"

// IsDecision reports whether s is a status an admin may assign.
func (s RegistrationStatus) IsDecision() bool {
	return s == RegistrationShortlisted || s == RegistrationRejected
}

// Registration records one student's application to one placement.  The
// pair (StudentID, PlacementID) is unique.
type Registration struct {
	StudentID       uint64             `json:"student_id"`
	PlacementID     uint64             `json:"placement_id"`
	ResumeURL       string             `json:"resume_url"`
	FormURL         string             `json:"external_form_url"`
	Status          RegistrationStatus `json:"status"`
	AppliedAt       time.Time          `json:"applied_at"`
	StatusUpdatedAt *time.Time         `json:"status_updated_at,omitempty"`
	StatusUpdatedBy *uint64            `json:"status_updated_by,omitempty"`
}

// RegistrationWithStudent adds the student summary shown to admins.
type RegistrationWithStudent struct {
	Registration
	StudentName  string `json:"student_name"`
	StudentEmail string `json:"student_email"`
}
