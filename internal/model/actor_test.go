package model

import (
	"encoding/json"
	"testing"
)

func TestKindFromRole(t *testing.T) {
	cases := map[string]ActorKind{
		"STUDENT":      ActorStudent,
		"admin":        ActorAdmin,
		" SuperAdmin ": ActorSuperAdmin,
	}
	for role, want := range cases {
		got, ok := KindFromRole(role)
		if !ok || got != want {
			t.Fatalf("KindFromRole(%q) = %v, %v", role, got, ok)
		}
		if got.Role() == "" {
			t.Fatalf("%v has no role name", got)
		}
	}
	if _, ok := KindFromRole("OWNER"); ok {
		t.Fatal("unknown role accepted")
	}
}

func TestManages(t *testing.T) {
	admin := uint64(10)
	delegated := &Placement{AssignedAdminID: &admin}
	undelegated := &Placement{}

	cases := []struct {
		name  string
		actor Actor
		p     *Placement
		want  bool
	}{
		{"superadmin any", Actor{ID: 1, Kind: ActorSuperAdmin}, undelegated, true},
		{"assigned admin", Actor{ID: 10, Kind: ActorAdmin}, delegated, true},
		{"other admin", Actor{ID: 11, Kind: ActorAdmin}, delegated, false},
		{"admin undelegated", Actor{ID: 10, Kind: ActorAdmin}, undelegated, false},
		{"student with admin id", Actor{ID: 10, Kind: ActorStudent}, delegated, false},
		{"nil placement", Actor{ID: 1, Kind: ActorSuperAdmin}, nil, false},
	}
	for _, tc := range cases {
		if got := tc.actor.Manages(tc.p); got != tc.want {
			t.Errorf("%s: Manages = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestRecordDecisionKeepsSetsDisjoint(t *testing.T) {
	p := &Placement{SelectedStudents: StudentSet{}, RejectedStudents: StudentSet{}}
	p.RecordDecision(5, RegistrationShortlisted)
	p.RecordDecision(5, RegistrationRejected)
	if p.SelectedStudents.Has(5) || !p.RejectedStudents.Has(5) {
		t.Fatalf("selected=%v rejected=%v", p.SelectedStudents.IDs(), p.RejectedStudents.IDs())
	}
	p.RecordDecision(5, RegistrationShortlisted)
	if !p.SelectedStudents.Has(5) || p.RejectedStudents.Has(5) {
		t.Fatalf("selected=%v rejected=%v", p.SelectedStudents.IDs(), p.RejectedStudents.IDs())
	}
}

func TestStudentSetJSONIsSorted(t *testing.T) {
	b, err := json.Marshal(NewStudentSet(30, 10, 20))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "[10,20,30]" {
		t.Fatalf("json = %s", b)
	}
}
