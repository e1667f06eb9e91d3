//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/healthguard/healthguard/internal/domain/account"
	"github.com/healthguard/healthguard/internal/domain/diagnosis"
	"github.com/healthguard/healthguard/internal/domain/patient"
	"github.com/healthguard/healthguard/internal/platform/apperr"
	"github.com/healthguard/healthguard/internal/platform/auth"
	"github.com/healthguard/healthguard/internal/platform/db"
)

func createUser(t *testing.T, ctx context.Context, email string, role auth.Role) *account.User {
	t.Helper()
	u := &account.User{FirstName: "Test", LastName: "User", Email: email, PasswordHash: "$2a$10$x", Role: role}
	if err := account.NewUserRepo(globalPool).Create(ctx, u); err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return u
}

func demographics(name string) *patient.Patient {
	return &patient.Patient{
		Name:        name,
		DateOfBirth: time.Date(1984, 3, 12, 0, 0, 0, 0, time.UTC),
		Gender:      "female",
		Email:       "jane@example.com",
	}
}

func TestUserRepo_UniqueEmail(t *testing.T) {
	resetData(t)
	ctx := context.Background()
	createUser(t, ctx, "dup@example.com", auth.RolePatient)

	err := account.NewUserRepo(globalPool).Create(ctx, &account.User{
		FirstName: "Other", LastName: "User", Email: "dup@example.com", PasswordHash: "$2a$10$y", Role: auth.RoleDoctor,
	})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict for duplicate email, got %v", err)
	}
}

func TestPatientRepo_UpsertKeepsOneRow(t *testing.T) {
	resetData(t)
	ctx := context.Background()
	owner := createUser(t, ctx, "jane@example.com", auth.RolePatient)
	doc := createUser(t, ctx, "house@example.com", auth.RoleDoctor)
	repo := patient.NewPatientRepo(globalPool)

	first := demographics("Jane Roe")
	first.UserID = owner.ID
	created, err := repo.UpsertByUserID(ctx, first)
	if err != nil || !created {
		t.Fatalf("first upsert: created=%v err=%v", created, err)
	}
	if err := repo.SetDoctor(ctx, first.ID, doc.ID); err != nil {
		t.Fatalf("set doctor: %v", err)
	}

	second := demographics("Jane Smith")
	second.UserID = owner.ID
	created, err = repo.UpsertByUserID(ctx, second)
	if err != nil || created {
		t.Fatalf("second upsert: created=%v err=%v", created, err)
	}
	if second.ID != first.ID {
		t.Errorf("expected the same row, got ids %d and %d", first.ID, second.ID)
	}
	if second.Name != "Jane Smith" {
		t.Errorf("expected second values to win, got %q", second.Name)
	}
	if !second.AssignedTo(doc.ID) {
		t.Errorf("expected doctor to survive the upsert, got %v", second.DoctorID)
	}

	var count int
	if err := globalPool.QueryRow(ctx, `SELECT COUNT(*) FROM patients WHERE user_id = $1`, owner.ID).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("expected one patient row, got %d", count)
	}
}

func TestPatientRepo_UpdateVersionConflict(t *testing.T) {
	resetData(t)
	ctx := context.Background()
	owner := createUser(t, ctx, "jane@example.com", auth.RolePatient)
	repo := patient.NewPatientRepo(globalPool)

	p := demographics("Jane Roe")
	p.UserID = owner.ID
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}

	stale := p.VersionID
	p.Name = "Jane Smith"
	if err := repo.Update(ctx, p); err != nil {
		t.Fatalf("update: %v", err)
	}

	p.VersionID = stale
	if err := repo.Update(ctx, p); !apperr.Is(err, apperr.KindConflict) {
		t.Errorf("expected conflict for stale version, got %v", err)
	}

	missing := demographics("Nobody")
	missing.ID = 9999
	if err := repo.Update(ctx, missing); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestDeleteUser_CascadesToPatientAndDiagnoses(t *testing.T) {
	resetData(t)
	ctx := context.Background()
	owner := createUser(t, ctx, "jane@example.com", auth.RolePatient)
	patients := patient.NewPatientRepo(globalPool)
	diagnoses := diagnosis.NewDiagnosisRepo(globalPool)

	p := demographics("Jane Roe")
	p.UserID = owner.ID
	if err := patients.Create(ctx, p); err != nil {
		t.Fatalf("create patient: %v", err)
	}
	d := &diagnosis.Diagnosis{PatientID: p.ID, Label: "Benign", Confidence: 0.95,
		Source: diagnosis.SourceImage, Status: diagnosis.StatusCompleted}
	if err := diagnoses.Create(ctx, d); err != nil {
		t.Fatalf("create diagnosis: %v", err)
	}

	if err := account.NewUserRepo(globalPool).Delete(ctx, owner.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}

	if _, err := patients.GetByID(ctx, p.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected patient to be gone, got %v", err)
	}
	if _, err := diagnoses.GetByID(ctx, d.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected diagnosis to be gone, got %v", err)
	}
}

func TestDiagnosisRepo_CreateAndReview(t *testing.T) {
	resetData(t)
	ctx := context.Background()
	owner := createUser(t, ctx, "jane@example.com", auth.RolePatient)
	doc := createUser(t, ctx, "house@example.com", auth.RoleDoctor)
	p := demographics("Jane Roe")
	p.UserID = owner.ID
	if err := patient.NewPatientRepo(globalPool).Create(ctx, p); err != nil {
		t.Fatalf("create patient: %v", err)
	}

	repo := diagnosis.NewDiagnosisRepo(globalPool)
	model := "diabetes"
	d := &diagnosis.Diagnosis{
		PatientID:  p.ID,
		Label:      "Malignant",
		Confidence: 0.62,
		Features:   map[string]float64{"glucose": 138, "bmi": 33.6},
		ModelType:  &model,
		Source:     diagnosis.SourceFeatures,
		Status:     diagnosis.StatusRequiresReview,
	}
	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("create diagnosis: %v", err)
	}
	if d.ID == 0 || d.DiagnosisDate.IsZero() {
		t.Fatal("expected id and diagnosis date from the database")
	}

	tx := db.NewTxRunner(globalPool)
	err := tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := repo.GetByIDForUpdate(ctx, d.ID); err != nil {
			return err
		}
		return repo.UpdateReview(ctx, d.ID, "Confirmed", diagnosis.StatusCompleted, doc.ID, time.Now().UTC())
	})
	if err != nil {
		t.Fatalf("review: %v", err)
	}

	got, err := repo.GetByID(ctx, d.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != diagnosis.StatusCompleted || got.DoctorNotes != "Confirmed" {
		t.Errorf("review not stored: %+v", got)
	}
	if got.ReviewedBy == nil || *got.ReviewedBy != doc.ID {
		t.Errorf("expected reviewer %d, got %v", doc.ID, got.ReviewedBy)
	}
	if got.Features["glucose"] != 138 || got.Label != "Malignant" {
		t.Errorf("prediction fields changed: %+v", got)
	}

	items, total, err := repo.ListByPatient(ctx, p.ID, 10, 0)
	if err != nil || total != 1 || len(items) != 1 {
		t.Errorf("list: items=%d total=%d err=%v", len(items), total, err)
	}
}

func TestDiagnosisRepo_UnknownPatient(t *testing.T) {
	resetData(t)
	err := diagnosis.NewDiagnosisRepo(globalPool).Create(context.Background(), &diagnosis.Diagnosis{
		PatientID: 12345, Label: "x", Confidence: 0.9, Source: diagnosis.SourceImage, Status: diagnosis.StatusCompleted,
	})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found for a missing patient, got %v", err)
	}
}

func TestUserRepo_ResetAttemptsAreBounded(t *testing.T) {
	resetData(t)
	ctx := context.Background()
	u := createUser(t, ctx, "jane@example.com", auth.RolePatient)
	repo := account.NewUserRepo(globalPool)

	if _, err := repo.ClaimResetAttempt(ctx, u.ID, 3); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found without a pending code, got %v", err)
	}

	expires := time.Now().Add(15 * time.Minute).UTC()
	if err := repo.SetResetCode(ctx, u.ID, "$2a$10$code", expires); err != nil {
		t.Fatalf("set reset code: %v", err)
	}
	for i := 1; i <= 3; i++ {
		claim, err := repo.ClaimResetAttempt(ctx, u.ID, 3)
		if err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		if claim.Attempts != i || claim.Hash != "$2a$10$code" {
			t.Errorf("attempt %d: unexpected claim %+v", i, claim)
		}
	}
	if _, err := repo.ClaimResetAttempt(ctx, u.ID, 3); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected the budget to be exhausted, got %v", err)
	}

	if err := repo.SetResetCode(ctx, u.ID, "$2a$10$fresh", expires); err != nil {
		t.Fatalf("set reset code: %v", err)
	}
	claim, err := repo.ClaimResetAttempt(ctx, u.ID, 3)
	if err != nil || claim.Attempts != 1 {
		t.Errorf("expected a fresh code to restart the count, got %+v err=%v", claim, err)
	}

	if err := repo.ClearResetCode(ctx, u.ID); err != nil {
		t.Fatalf("clear: %v", err)
	}
	stored, err := repo.GetByID(ctx, u.ID)
	if err != nil || stored.PasswordResetHash != nil {
		t.Errorf("expected the code to be cleared, got %+v err=%v", stored, err)
	}
}
