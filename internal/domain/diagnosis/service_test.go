package diagnosis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/healthguard/healthguard/internal/domain/account"
	"github.com/healthguard/healthguard/internal/domain/patient"
	"github.com/healthguard/healthguard/internal/platform/apperr"
	"github.com/healthguard/healthguard/internal/platform/auth"
	"github.com/healthguard/healthguard/internal/platform/prediction"
)

// -- Mock Diagnosis Repository --

type mockDiagnosisRepo struct {
	mu        sync.Mutex
	diagnoses map[int64]*Diagnosis
	nextID    int64
}

func newMockDiagnosisRepo() *mockDiagnosisRepo {
	return &mockDiagnosisRepo{diagnoses: make(map[int64]*Diagnosis)}
}

func (m *mockDiagnosisRepo) Create(_ context.Context, d *Diagnosis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	d.ID = m.nextID
	d.DiagnosisDate = time.Now().UTC()
	cp := *d
	m.diagnoses[d.ID] = &cp
	return nil
}

func (m *mockDiagnosisRepo) GetByID(_ context.Context, id int64) (*Diagnosis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.diagnoses[id]
	if !ok {
		return nil, apperr.NotFound("diagnosis not found")
	}
	cp := *d
	return &cp, nil
}

func (m *mockDiagnosisRepo) GetByIDForUpdate(ctx context.Context, id int64) (*Diagnosis, error) {
	return m.GetByID(ctx, id)
}

func (m *mockDiagnosisRepo) UpdateReview(_ context.Context, id int64, notes string, status Status, reviewerID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.diagnoses[id]
	if !ok {
		return apperr.NotFound("diagnosis not found")
	}
	d.DoctorNotes = notes
	d.Status = status
	d.ReviewedBy = &reviewerID
	d.ReviewedAt = &at
	return nil
}

func (m *mockDiagnosisRepo) ListByPatient(_ context.Context, patientID int64, limit, offset int) ([]*Diagnosis, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*Diagnosis
	for _, d := range m.diagnoses {
		if d.PatientID == patientID {
			cp := *d
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *mockDiagnosisRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.diagnoses)
}

// -- Mock Patients & Users --

type mockPatients map[int64]*patient.Patient

func (m mockPatients) GetByID(_ context.Context, id int64) (*patient.Patient, error) {
	p, ok := m[id]
	if !ok {
		return nil, apperr.NotFound("patient not found")
	}
	cp := *p
	return &cp, nil
}

type mockUsers map[int64]*account.User

func (m mockUsers) GetByID(_ context.Context, id int64) (*account.User, error) {
	u, ok := m[id]
	if !ok {
		return nil, apperr.NotFound("user not found")
	}
	return u, nil
}

// -- Fake Provider --

type fakeProvider struct {
	mu     sync.Mutex
	result prediction.Result
	err    error
	calls  int
}

func (f *fakeProvider) PredictFeatures(context.Context, map[string]float64, prediction.ModelType) (prediction.Result, error) {
	return f.respond()
}

func (f *fakeProvider) PredictImage(context.Context, []byte) (prediction.Result, error) {
	return f.respond()
}

func (f *fakeProvider) respond() (prediction.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.result, f.err
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// -- Recording Alerter --

type alertCall struct {
	email     string
	patientID int64
	urgency   string
	ctxErr    error
}

type recordingAlerter struct {
	mu    sync.Mutex
	calls []alertCall
	err   error
}

func (a *recordingAlerter) SendDoctorAlert(ctx context.Context, email string, patientID int64, urgency string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, alertCall{email: email, patientID: patientID, urgency: urgency, ctxErr: ctx.Err()})
	return a.err
}

func (a *recordingAlerter) sent() []alertCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]alertCall(nil), a.calls...)
}

type callTx struct{ calls int }

func (c *callTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	c.calls++
	return fn(ctx)
}

// -- Fixtures --

const (
	patientUser = int64(1)
	otherUser   = int64(2)
	doctorA     = int64(20)
	doctorB     = int64(21)
	adminUser   = int64(99)

	assignedPatientID   = int64(100)
	unassignedPatientID = int64(101)
)

var (
	asPatient = auth.Principal{UserID: patientUser, Role: auth.RolePatient}
	asOther   = auth.Principal{UserID: otherUser, Role: auth.RolePatient}
	asDoctorA = auth.Principal{UserID: doctorA, Role: auth.RoleDoctor}
	asDoctorB = auth.Principal{UserID: doctorB, Role: auth.RoleDoctor}
	asAdmin   = auth.Principal{UserID: adminUser, Role: auth.RoleAdmin}
)

// pngHeader is enough for http.DetectContentType to report image/png.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type fixture struct {
	svc      *Service
	repo     *mockDiagnosisRepo
	provider *fakeProvider
	alerter  *recordingAlerter
	tx       *callTx
}

func newFixture(result prediction.Result) *fixture {
	da := doctorA
	patients := mockPatients{
		assignedPatientID:   {ID: assignedPatientID, UserID: patientUser, DoctorID: &da, Name: "Jane Roe"},
		unassignedPatientID: {ID: unassignedPatientID, UserID: otherUser, Name: "John Doe"},
	}
	users := mockUsers{
		doctorA: {ID: doctorA, Email: "house@example.com", Role: auth.RoleDoctor},
		doctorB: {ID: doctorB, Email: "wilson@example.com", Role: auth.RoleDoctor},
	}
	f := &fixture{
		repo:     newMockDiagnosisRepo(),
		provider: &fakeProvider{result: result},
		alerter:  &recordingAlerter{},
		tx:       &callTx{},
	}
	f.svc = NewService(Deps{
		Diagnoses:     f.repo,
		Patients:      patients,
		Users:         users,
		Provider:      f.provider,
		Alerter:       f.alerter,
		Tx:            f.tx,
		Logger:        zerolog.Nop(),
		NotifyTimeout: time.Second,
	})
	return f
}

func diabetesFeatures() map[string]float64 {
	return map[string]float64{
		"pregnancies": 2, "glucose": 138, "blood_pressure": 62, "skin_thickness": 35,
		"insulin": 0, "bmi": 33.6, "diabetes_pedigree_function": 0.127, "age": 47,
	}
}

func featureInput(patientID int64) CreateInput {
	return CreateInput{PatientID: patientID, Features: diabetesFeatures(), ModelType: "diabetes"}
}

func wantKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := apperr.KindOf(err); got != kind {
		t.Fatalf("expected kind %s, got %s (%v)", kind, got, err)
	}
}

// -- CreateDiagnosis --

func TestCreateDiagnosis_HighConfidenceCompletes(t *testing.T) {
	f := newFixture(prediction.Result{Label: "Benign", Confidence: 0.95})

	d, err := f.svc.CreateDiagnosis(context.Background(), asPatient, featureInput(assignedPatientID))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Status != StatusCompleted {
		t.Errorf("expected Completed, got %s", d.Status)
	}
	if d.Label != "Benign" || d.Confidence != 0.95 {
		t.Errorf("unexpected prediction fields: %+v", d)
	}
	if d.ID == 0 || d.DiagnosisDate.IsZero() {
		t.Error("expected persisted id and diagnosis date")
	}
	if d.ModelType == nil || *d.ModelType != "diabetes" || d.Source != SourceFeatures {
		t.Errorf("unexpected model/source: %v %s", d.ModelType, d.Source)
	}
	if len(f.alerter.sent()) != 0 {
		t.Errorf("expected no alert, got %d", len(f.alerter.sent()))
	}
}

func TestCreateDiagnosis_LowConfidenceAlertsAssignedDoctorOnce(t *testing.T) {
	f := newFixture(prediction.Result{Label: "Malignant", Confidence: 0.62})

	d, err := f.svc.CreateDiagnosis(context.Background(), asPatient, featureInput(assignedPatientID))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Status != StatusRequiresReview {
		t.Errorf("expected RequiresReview, got %s", d.Status)
	}

	calls := f.alerter.sent()
	if len(calls) != 1 {
		t.Fatalf("expected exactly one alert, got %d", len(calls))
	}
	if calls[0].email != "house@example.com" || calls[0].patientID != assignedPatientID || calls[0].urgency != "High" {
		t.Errorf("unexpected alert: %+v", calls[0])
	}
}

func TestCreateDiagnosis_DoctorEmailOverridesRecipient(t *testing.T) {
	f := newFixture(prediction.Result{Label: "Malignant", Confidence: 0.4})
	in := featureInput(assignedPatientID)
	in.DoctorEmail = " OnCall@Example.com "

	if _, err := f.svc.CreateDiagnosis(context.Background(), asPatient, in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	calls := f.alerter.sent()
	if len(calls) != 1 || calls[0].email != "oncall@example.com" {
		t.Errorf("expected alert to override address, got %+v", calls)
	}
}

func TestCreateDiagnosis_AlertFailureDoesNotFail(t *testing.T) {
	f := newFixture(prediction.Result{Label: "Malignant", Confidence: 0.62})
	f.alerter.err = errors.New("smtp down")

	d, err := f.svc.CreateDiagnosis(context.Background(), asPatient, featureInput(assignedPatientID))
	if err != nil {
		t.Fatalf("alert failure must not fail the request: %v", err)
	}
	if d.Status != StatusRequiresReview {
		t.Errorf("expected RequiresReview, got %s", d.Status)
	}
	if f.repo.count() != 1 {
		t.Errorf("expected diagnosis to stay persisted, got %d rows", f.repo.count())
	}
	if len(f.alerter.sent()) != 1 {
		t.Errorf("expected exactly one attempt, got %d", len(f.alerter.sent()))
	}
}

func TestCreateDiagnosis_NoDoctorSkipsAlert(t *testing.T) {
	f := newFixture(prediction.Result{Label: "Malignant", Confidence: 0.62})

	d, err := f.svc.CreateDiagnosis(context.Background(), asOther, featureInput(unassignedPatientID))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Status != StatusRequiresReview {
		t.Errorf("expected RequiresReview, got %s", d.Status)
	}
	if len(f.alerter.sent()) != 0 {
		t.Error("expected no alert without a recipient")
	}
}

func TestCreateDiagnosis_AlertOutlivesRequestCancellation(t *testing.T) {
	f := newFixture(prediction.Result{Label: "Malignant", Confidence: 0.62})
	ctx, cancel := context.WithCancel(context.Background())

	// the fake provider ignores ctx, so cancelling only affects the alert
	cancel()
	if _, err := f.svc.CreateDiagnosis(ctx, asPatient, featureInput(assignedPatientID)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	calls := f.alerter.sent()
	if len(calls) != 1 {
		t.Fatalf("expected one alert, got %d", len(calls))
	}
	if calls[0].ctxErr != nil {
		t.Errorf("alert context must be detached from the request, got %v", calls[0].ctxErr)
	}
}

func TestCreateDiagnosis_ImageMode(t *testing.T) {
	f := newFixture(prediction.Result{Label: "Pneumonia", Confidence: 0.91})

	d, err := f.svc.CreateDiagnosis(context.Background(), asDoctorA,
		CreateInput{PatientID: assignedPatientID, Image: pngHeader})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Source != SourceImage || d.ModelType != nil {
		t.Errorf("unexpected source/model: %s %v", d.Source, d.ModelType)
	}
	if d.Features == nil || len(d.Features) != 0 {
		t.Errorf("expected empty features for image diagnosis, got %v", d.Features)
	}
}

func TestCreateDiagnosis_ThresholdRouting(t *testing.T) {
	tests := []struct {
		confidence float64
		want       Status
	}{
		{0.0, StatusRequiresReview},
		{0.79, StatusRequiresReview},
		{0.8, StatusCompleted},
		{1.0, StatusCompleted},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.confidence), func(t *testing.T) {
			f := newFixture(prediction.Result{Label: "x", Confidence: tt.confidence})
			d, err := f.svc.CreateDiagnosis(context.Background(), asPatient, featureInput(assignedPatientID))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d.Status != tt.want {
				t.Errorf("confidence %v: expected %s, got %s", tt.confidence, tt.want, d.Status)
			}
			wantAlerts := 0
			if tt.want == StatusRequiresReview {
				wantAlerts = 1
			}
			if got := len(f.alerter.sent()); got != wantAlerts {
				t.Errorf("expected %d alerts, got %d", wantAlerts, got)
			}
		})
	}
}

func TestCreateDiagnosis_ThresholdOverride(t *testing.T) {
	f := newFixture(prediction.Result{Label: "Malignant", Confidence: 0.62})
	f.svc.threshold = 0.5

	d, err := f.svc.CreateDiagnosis(context.Background(), asPatient, featureInput(assignedPatientID))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Status != StatusCompleted {
		t.Errorf("expected Completed under a 0.5 threshold, got %s", d.Status)
	}
}

func TestCreateDiagnosis_InvalidInputNeverCallsProvider(t *testing.T) {
	short := diabetesFeatures()
	delete(short, "bmi")

	tests := []struct {
		name string
		in   CreateInput
	}{
		{"neither", CreateInput{PatientID: assignedPatientID}},
		{"both", CreateInput{PatientID: assignedPatientID, Features: diabetesFeatures(), ModelType: "diabetes", Image: pngHeader}},
		{"missing model type", CreateInput{PatientID: assignedPatientID, Features: diabetesFeatures()}},
		{"unknown model", CreateInput{PatientID: assignedPatientID, Features: diabetesFeatures(), ModelType: "liver"}},
		{"wrong dimension", CreateInput{PatientID: assignedPatientID, Features: short, ModelType: "diabetes"}},
		{"not an image", CreateInput{PatientID: assignedPatientID, Image: []byte("plain text, not pixels")}},
		{"missing patient id", CreateInput{Features: diabetesFeatures(), ModelType: "diabetes"}},
		{"bad doctor email", CreateInput{PatientID: assignedPatientID, Features: diabetesFeatures(), ModelType: "diabetes", DoctorEmail: "not an address"}},
		{"doctor email with display name", CreateInput{PatientID: assignedPatientID, Image: pngHeader, DoctorEmail: "Dr House <house@example.com>"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(prediction.Result{Label: "x", Confidence: 0.9})
			_, err := f.svc.CreateDiagnosis(context.Background(), asPatient, tt.in)
			wantKind(t, err, apperr.KindValidationFailed)
			if f.provider.callCount() != 0 {
				t.Error("provider must not be called for invalid input")
			}
			if f.repo.count() != 0 {
				t.Error("nothing must be persisted")
			}
		})
	}
}

func TestCreateDiagnosis_ProviderFailurePersistsNothing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperr.Kind
	}{
		{"unavailable", fmt.Errorf("%w: %w", prediction.ErrUnavailable, prediction.ErrTransient), apperr.KindPredictionUnavailable},
		{"model not loaded", prediction.ErrModelNotLoaded, apperr.KindPredictionUnavailable},
		{"unsupported model", prediction.ErrUnsupportedModelType, apperr.KindValidationFailed},
		{"invalid image", prediction.ErrInvalidImage, apperr.KindValidationFailed},
		{"unexpected", errors.New("boom"), apperr.KindPredictionUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(prediction.Result{})
			f.provider.err = tt.err

			_, err := f.svc.CreateDiagnosis(context.Background(), asPatient, featureInput(assignedPatientID))
			wantKind(t, err, tt.want)
			if f.repo.count() != 0 {
				t.Errorf("expected no rows, got %d", f.repo.count())
			}
			if len(f.alerter.sent()) != 0 {
				t.Error("expected no alert")
			}
		})
	}
}

func TestCreateDiagnosis_OutOfRangeConfidenceRejected(t *testing.T) {
	f := newFixture(prediction.Result{Label: "Benign", Confidence: 1.7})

	_, err := f.svc.CreateDiagnosis(context.Background(), asPatient, featureInput(assignedPatientID))
	wantKind(t, err, apperr.KindPredictionUnavailable)
	if f.repo.count() != 0 {
		t.Error("nothing must be persisted")
	}
}

func TestCreateDiagnosis_Guard(t *testing.T) {
	tests := []struct {
		name      string
		p         auth.Principal
		patientID int64
		want      apperr.Kind
	}{
		{"other patient", asOther, assignedPatientID, apperr.KindNotFound},
		{"unassigned doctor", asDoctorB, assignedPatientID, apperr.KindNotFound},
		{"missing patient", asAdmin, 404, apperr.KindNotFound},
		{"unknown role", auth.Principal{UserID: 7, Role: "Nurse"}, assignedPatientID, apperr.KindForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(prediction.Result{Label: "x", Confidence: 0.9})
			_, err := f.svc.CreateDiagnosis(context.Background(), tt.p, featureInput(tt.patientID))
			wantKind(t, err, tt.want)
			if f.provider.callCount() != 0 {
				t.Error("provider must not be called when the guard denies")
			}
		})
	}

	for _, p := range []auth.Principal{asPatient, asDoctorA, asAdmin} {
		f := newFixture(prediction.Result{Label: "x", Confidence: 0.9})
		if _, err := f.svc.CreateDiagnosis(context.Background(), p, featureInput(assignedPatientID)); err != nil {
			t.Errorf("%s %d should be allowed: %v", p.Role, p.UserID, err)
		}
	}
}

// -- GetDiagnosis --

func seedDiagnosis(t *testing.T, f *fixture, patientID int64) *Diagnosis {
	t.Helper()
	d := &Diagnosis{PatientID: patientID, Label: "Malignant", Confidence: 0.62, Source: SourceFeatures, Status: StatusRequiresReview}
	if err := f.repo.Create(context.Background(), d); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return d
}

func TestGetDiagnosis_ReadRules(t *testing.T) {
	f := newFixture(prediction.Result{})
	d := seedDiagnosis(t, f, assignedPatientID)

	for _, p := range []auth.Principal{asPatient, asDoctorA, asAdmin} {
		if _, err := f.svc.GetDiagnosis(context.Background(), p, d.ID); err != nil {
			t.Errorf("%s %d should read the diagnosis: %v", p.Role, p.UserID, err)
		}
	}
	for _, p := range []auth.Principal{asOther, asDoctorB} {
		_, err := f.svc.GetDiagnosis(context.Background(), p, d.ID)
		wantKind(t, err, apperr.KindNotFound)
	}

	_, err := f.svc.GetDiagnosis(context.Background(), asAdmin, 999)
	wantKind(t, err, apperr.KindNotFound)
}

func TestGetDiagnosis_MissingOwnerIsNotFound(t *testing.T) {
	f := newFixture(prediction.Result{})
	d := seedDiagnosis(t, f, 555)

	_, err := f.svc.GetDiagnosis(context.Background(), asAdmin, d.ID)
	wantKind(t, err, apperr.KindNotFound)
	if apperr.MessageOf(err) != "diagnosis not found" {
		t.Errorf("unexpected message %q", apperr.MessageOf(err))
	}
}

// -- ReviewDiagnosis --

func TestReviewDiagnosis_AssignedDoctor(t *testing.T) {
	f := newFixture(prediction.Result{})
	d := seedDiagnosis(t, f, assignedPatientID)
	reviewedAt := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return reviewedAt }

	got, err := f.svc.ReviewDiagnosis(context.Background(), asDoctorA, d.ID,
		ReviewInput{DoctorNotes: "Confirmed on biopsy", Status: StatusCompleted})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusCompleted || got.DoctorNotes != "Confirmed on biopsy" {
		t.Errorf("review not applied: %+v", got)
	}
	if got.ReviewedBy == nil || *got.ReviewedBy != doctorA {
		t.Errorf("expected reviewer %d, got %v", doctorA, got.ReviewedBy)
	}
	if got.ReviewedAt == nil || !got.ReviewedAt.Equal(reviewedAt) {
		t.Errorf("expected reviewed_at %v, got %v", reviewedAt, got.ReviewedAt)
	}
	if got.Label != "Malignant" || got.Confidence != 0.62 {
		t.Error("prediction fields must not change on review")
	}
	if f.tx.calls != 1 {
		t.Errorf("expected review to run in one transaction, got %d", f.tx.calls)
	}

	stored, _ := f.repo.GetByID(context.Background(), d.ID)
	if stored.Status != StatusCompleted {
		t.Errorf("expected stored status Completed, got %s", stored.Status)
	}
}

func TestReviewDiagnosis_Rejections(t *testing.T) {
	tests := []struct {
		name string
		p    auth.Principal
		in   ReviewInput
		want apperr.Kind
	}{
		{"patient", asPatient, ReviewInput{Status: StatusCompleted}, apperr.KindForbidden},
		{"admin", asAdmin, ReviewInput{Status: StatusCompleted}, apperr.KindForbidden},
		{"unassigned doctor", asDoctorB, ReviewInput{Status: StatusCompleted}, apperr.KindNotFound},
		{"invalid status", asDoctorA, ReviewInput{Status: "Closed"}, apperr.KindValidationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(prediction.Result{})
			d := seedDiagnosis(t, f, assignedPatientID)

			_, err := f.svc.ReviewDiagnosis(context.Background(), tt.p, d.ID, tt.in)
			wantKind(t, err, tt.want)

			stored, _ := f.repo.GetByID(context.Background(), d.ID)
			if stored.Status != StatusRequiresReview || stored.ReviewedBy != nil {
				t.Error("rejected review must not modify the diagnosis")
			}
		})
	}
}

// -- ListPatientDiagnoses --

func TestListPatientDiagnoses(t *testing.T) {
	f := newFixture(prediction.Result{})
	first := seedDiagnosis(t, f, assignedPatientID)
	second := seedDiagnosis(t, f, assignedPatientID)
	seedDiagnosis(t, f, unassignedPatientID)

	items, total, err := f.svc.ListPatientDiagnoses(context.Background(), asPatient, assignedPatientID, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Fatalf("expected 2 diagnoses, got %d/%d", len(items), total)
	}
	if items[0].ID != second.ID || items[1].ID != first.ID {
		t.Error("expected newest first")
	}

	_, _, err = f.svc.ListPatientDiagnoses(context.Background(), asDoctorB, assignedPatientID, 20, 0)
	wantKind(t, err, apperr.KindNotFound)
}
