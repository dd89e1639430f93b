//go:build integration

package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/campus-placement/internal/database"
	"github.com/iliyamo/campus-placement/internal/model"
	"github.com/iliyamo/campus-placement/internal/repository"
)

// Run with a disposable MySQL database:
//
//	TEST_MYSQL_DSN='root:root@tcp(localhost:3307)/placement_test?charset=utf8mb4&parseTime=true&loc=UTC&clientFoundRows=true' \
//	  go test -tags integration ./internal/repository/

var testDB *sql.DB

func TestMain(m *testing.M) {
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		dsn = database.DSN("root", "root", "localhost", "3307", "placement_test")
	}
	if err := database.RunMigrations(dsn, zap.NewNop()); err != nil {
		fmt.Fprintf(os.Stderr, "migrate test database: %v\n", err)
		os.Exit(1)
	}
	var err error
	if testDB, err = sql.Open("mysql", dsn); err != nil {
		fmt.Fprintf(os.Stderr, "open test database: %v\n", err)
		os.Exit(1)
	}
	code := m.Run()
	_ = testDB.Close()
	os.Exit(code)
}

func newUser(t *testing.T, role string) uint64 {
	t.Helper()
	email := fmt.Sprintf("%s-%d@campus.test", role, time.Now().UnixNano())
	id, err := repository.NewUserRepo(testDB).Create(context.Background(), email, "Test "+role, "passw0rd!", role, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	t.Cleanup(func() { _, _ = testDB.Exec("DELETE FROM users WHERE id = ?", id) })
	return id
}

func newPlacement(t *testing.T) *model.Placement {
	t.Helper()
	// Cleanups run in reverse, so create users before placements that
	// reference them.
	repo := repository.NewPlacementRepo(testDB)
	p := &model.Placement{
		CompanyName:         fmt.Sprintf("Acme %d", time.Now().UnixNano()),
		JobTitle:            "Backend Engineer",
		JobDescription:      "Build services",
		EligibilityCriteria: "CGPA >= 7",
		Deadline:            time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second),
		ApplicationLink:     "https://acme.example/apply",
		Status:              model.PlacementOpen,
	}
	if err := repo.Create(context.Background(), p); err != nil {
		t.Fatalf("create placement: %v", err)
	}
	t.Cleanup(func() { _ = repo.Delete(context.Background(), p.ID) })
	return p
}

func register(ctx context.Context, placementID, studentID uint64) error {
	return repository.NewRegistrationRepo(testDB).Create(ctx, &model.Registration{
		StudentID:   studentID,
		PlacementID: placementID,
		ResumeURL:   "https://files.example/cv.pdf",
		FormURL:     "https://forms.example/f",
		Status:      model.RegistrationRegistered,
		AppliedAt:   time.Now().UTC(),
	})
}

func count(t *testing.T, q string, args ...any) int {
	t.Helper()
	var n int
	if err := testDB.QueryRow(q, args...).Scan(&n); err != nil {
		t.Fatalf("%s: %v", q, err)
	}
	return n
}

func TestRegistrationConcurrentDuplicateYieldsOneRow(t *testing.T) {
	student := newUser(t, model.RoleStudent)
	p := newPlacement(t)

	const attempts = 8
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		ok, dupes  int
		unexpected []error
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := register(context.Background(), p.ID, student)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, repository.ErrDuplicate):
				dupes++
			default:
				unexpected = append(unexpected, err)
			}
		}()
	}
	wg.Wait()

	if len(unexpected) > 0 {
		t.Fatalf("unexpected errors: %v", unexpected)
	}
	if ok != 1 || dupes != attempts-1 {
		t.Fatalf("ok=%d duplicates=%d, want 1 and %d", ok, dupes, attempts-1)
	}
	if n := count(t, "SELECT COUNT(*) FROM registrations WHERE placement_id = ? AND student_id = ?", p.ID, student); n != 1 {
		t.Fatalf("rows = %d, want 1", n)
	}
}

func TestUpdateStatusKeepsDecisionSetsDisjoint(t *testing.T) {
	ctx := context.Background()
	admin := newUser(t, model.RoleAdmin)
	student := newUser(t, model.RoleStudent)
	other := newUser(t, model.RoleStudent)
	p := newPlacement(t)
	regs := repository.NewRegistrationRepo(testDB)
	placements := repository.NewPlacementRepo(testDB)

	if err := register(ctx, p.ID, student); err != nil {
		t.Fatal(err)
	}
	if err := register(ctx, p.ID, other); err != nil {
		t.Fatal(err)
	}

	if _, err := regs.UpdateStatus(ctx, p.ID, student, model.RegistrationShortlisted, admin, time.Now()); err != nil {
		t.Fatalf("shortlist: %v", err)
	}
	if _, err := regs.UpdateStatus(ctx, p.ID, other, model.RegistrationShortlisted, admin, time.Now()); err != nil {
		t.Fatalf("shortlist other: %v", err)
	}
	reg, err := regs.UpdateStatus(ctx, p.ID, student, model.RegistrationRejected, admin, time.Now())
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if reg.Status != model.RegistrationRejected || reg.StatusUpdatedBy == nil || *reg.StatusUpdatedBy != admin {
		t.Fatalf("registration = %+v", reg)
	}

	got, err := placements.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.SelectedStudents.Has(student) || !got.RejectedStudents.Has(student) {
		t.Fatalf("student in selected=%v rejected=%v", got.SelectedStudents.IDs(), got.RejectedStudents.IDs())
	}
	if !got.SelectedStudents.Has(other) || got.RejectedStudents.Has(other) {
		t.Fatalf("other in selected=%v rejected=%v", got.SelectedStudents.IDs(), got.RejectedStudents.IDs())
	}
	if n := count(t, "SELECT COUNT(*) FROM placement_decisions WHERE placement_id = ? AND student_id = ?", p.ID, student); n != 1 {
		t.Fatalf("decision rows = %d, want 1", n)
	}

	stored, err := regs.Get(ctx, p.ID, student)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != model.RegistrationRejected {
		t.Fatalf("stored status = %s", stored.Status)
	}

	stranger := newUser(t, model.RoleStudent)
	if _, err := regs.UpdateStatus(ctx, p.ID, stranger, model.RegistrationShortlisted, admin, time.Now()); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("unregistered student err = %v, want ErrNotFound", err)
	}
	if n := count(t, "SELECT COUNT(*) FROM placement_decisions WHERE placement_id = ? AND student_id = ?", p.ID, stranger); n != 0 {
		t.Fatalf("decision written for unregistered student")
	}
}

func TestDeleteCascadesAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	admin := newUser(t, model.RoleAdmin)
	student := newUser(t, model.RoleStudent)
	p := newPlacement(t)
	placements := repository.NewPlacementRepo(testDB)
	regs := repository.NewRegistrationRepo(testDB)

	if err := placements.AddUpdate(ctx, &model.Update{
		PlacementID: p.ID, Text: "Round 1 on Monday", PostedBy: admin,
		PostedAt: time.Now().UTC(), RoundType: model.RoundCommon,
	}); err != nil {
		t.Fatal(err)
	}
	if err := register(ctx, p.ID, student); err != nil {
		t.Fatal(err)
	}
	if _, err := regs.UpdateStatus(ctx, p.ID, student, model.RegistrationShortlisted, admin, time.Now()); err != nil {
		t.Fatal(err)
	}

	if err := placements.Delete(ctx, p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	for _, table := range []string{"registrations", "placement_decisions", "placement_updates"} {
		if n := count(t, "SELECT COUNT(*) FROM "+table+" WHERE placement_id = ?", p.ID); n != 0 {
			t.Fatalf("%s still has %d rows", table, n)
		}
	}
	if _, err := placements.GetByID(ctx, p.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("GetByID after delete err = %v", err)
	}
	if err := placements.Delete(ctx, p.ID); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestAssignAdminCountsMatchedRows(t *testing.T) {
	ctx := context.Background()
	admin := newUser(t, model.RoleAdmin)
	p := newPlacement(t)
	placements := repository.NewPlacementRepo(testDB)

	if err := placements.AssignAdmin(ctx, p.ID, admin); err != nil {
		t.Fatal(err)
	}
	// Same value again changes nothing; clientFoundRows still reports the match.
	if err := placements.AssignAdmin(ctx, p.ID, admin); err != nil {
		t.Fatalf("repeat assign: %v", err)
	}
	if err := placements.AssignAdmin(ctx, 1<<62, admin); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("missing placement err = %v, want ErrNotFound", err)
	}

	mine, err := placements.List(ctx, repository.PlacementFilter{AssignedAdminID: &admin})
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 || mine[0].ID != p.ID {
		t.Fatalf("List by admin = %d placements", len(mine))
	}
}
