package diagnosis

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/healthguard/healthguard/internal/domain/patient"
	"github.com/healthguard/healthguard/internal/platform/apperr"
	"github.com/healthguard/healthguard/internal/platform/auth"
	"github.com/healthguard/healthguard/internal/platform/db"
	"github.com/healthguard/healthguard/internal/platform/notification"
	"github.com/healthguard/healthguard/internal/platform/prediction"
)

// ReviewThreshold is the confidence below which a diagnosis is routed to
// the assigned doctor.
const ReviewThreshold = 0.8

// AlertUrgency is the urgency sent with every review alert.
const AlertUrgency = "High"

const (
	defaultNotifyTimeout = 10 * time.Second
	notFoundMsg          = "diagnosis not found"
)

// PatientLookup is the read-only view of the registry the pipeline needs.
type PatientLookup interface {
	GetByID(ctx context.Context, id int64) (*patient.Patient, error)
}

// Deps groups the collaborators of Service. Registry validates feature
// vectors before Provider is called; a nil Registry uses the defaults.
type Deps struct {
	Diagnoses     DiagnosisRepository
	Patients      PatientLookup
	Users         patient.UserLookup
	Registry      *prediction.Registry
	Provider      prediction.Provider
	Alerter       notification.DoctorAlerter
	Tx            db.TxRunner
	Logger        zerolog.Logger
	NotifyTimeout time.Duration
}

type Service struct {
	diagnoses     DiagnosisRepository
	patients      PatientLookup
	users         patient.UserLookup
	registry      *prediction.Registry
	provider      prediction.Provider
	alerter       notification.DoctorAlerter
	tx            db.TxRunner
	logger        zerolog.Logger
	notifyTimeout time.Duration
	threshold     float64
	now           func() time.Time
}

func NewService(d Deps) *Service {
	if d.Registry == nil {
		d.Registry = prediction.DefaultRegistry()
	}
	if d.NotifyTimeout <= 0 {
		d.NotifyTimeout = defaultNotifyTimeout
	}
	return &Service{
		diagnoses:     d.Diagnoses,
		patients:      d.Patients,
		users:         d.Users,
		registry:      d.Registry,
		provider:      d.Provider,
		alerter:       d.Alerter,
		tx:            d.Tx,
		logger:        d.Logger.With().Str("component", "diagnosis").Logger(),
		notifyTimeout: d.NotifyTimeout,
		threshold:     ReviewThreshold,
		now:           time.Now,
	}
}

// Classify returns the status a new diagnosis with confidence gets.
func (s *Service) Classify(confidence float64) Status {
	if confidence < s.threshold {
		return StatusRequiresReview
	}
	return StatusCompleted
}

// CreateDiagnosis runs inference for a patient, persists the outcome and,
// when confidence is low, alerts the reviewing doctor. Nothing is persisted
// if inference fails.
func (s *Service) CreateDiagnosis(ctx context.Context, p auth.Principal, in CreateInput) (*Diagnosis, error) {
	source, err := in.source()
	if err != nil {
		return nil, err
	}
	override, err := in.doctorEmail()
	if err != nil {
		return nil, err
	}
	if in.PatientID <= 0 {
		return nil, apperr.Validation("patient_id is required")
	}
	if err := auth.CheckRole(auth.OpCreateDiagnosis, p); err != nil {
		return nil, err
	}

	pat, err := s.patients.GetByID(ctx, in.PatientID)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(auth.OpCreateDiagnosis, pat.Resource(), p).Err("patient not found"); err != nil {
		return nil, err
	}

	d := &Diagnosis{
		PatientID: pat.ID,
		Source:    source,
		Features:  map[string]float64{},
	}

	var result prediction.Result
	switch source {
	case SourceFeatures:
		model, err := prediction.ParseModelType(in.ModelType)
		if err != nil {
			return nil, predictionError(err)
		}
		if _, err := s.registry.Vector(model, in.Features); err != nil {
			return nil, predictionError(err)
		}
		result, err = s.provider.PredictFeatures(ctx, in.Features, model)
		if err != nil {
			return nil, predictionError(err)
		}
		mt := string(model)
		d.ModelType = &mt
		d.Features = in.Features
	case SourceImage:
		if _, err := prediction.SniffImage(in.Image); err != nil {
			return nil, predictionError(err)
		}
		result, err = s.provider.PredictImage(ctx, in.Image)
		if err != nil {
			return nil, predictionError(err)
		}
	}
	if err := result.Validate(); err != nil {
		return nil, predictionError(err)
	}

	d.Label = result.Label
	d.Confidence = result.Confidence
	d.Status = s.Classify(result.Confidence)

	if err := s.diagnoses.Create(ctx, d); err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("diagnosis_id", d.ID).
		Int64("patient_id", d.PatientID).
		Str("source", string(d.Source)).
		Str("status", string(d.Status)).
		Float64("confidence", d.Confidence).
		Msg("diagnosis recorded")

	if d.Status == StatusRequiresReview {
		s.alertDoctor(ctx, pat, override)
	}
	return d, nil
}

// alertDoctor makes one best-effort alert attempt. It outlives request
// cancellation but is bounded by notifyTimeout.
func (s *Service) alertDoctor(ctx context.Context, pat *patient.Patient, override string) {
	if s.alerter == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()

	recipient := override
	if recipient == "" && pat.DoctorID != nil {
		doc, err := s.users.GetByID(ctx, *pat.DoctorID)
		if err != nil {
			s.logger.Warn().Err(err).Int64("patient_id", pat.ID).Msg("lookup assigned doctor for review alert")
			return
		}
		recipient = doc.Email
	}
	if recipient == "" {
		s.logger.Warn().Int64("patient_id", pat.ID).Msg("no doctor to alert for diagnosis review")
		return
	}

	if err := s.alerter.SendDoctorAlert(ctx, recipient, pat.ID, AlertUrgency); err != nil {
		s.logger.Warn().Err(err).Int64("patient_id", pat.ID).Msg("doctor review alert failed")
	}
}

func (s *Service) GetDiagnosis(ctx context.Context, p auth.Principal, id int64) (*Diagnosis, error) {
	if err := auth.CheckRole(auth.OpReadDiagnosis, p); err != nil {
		return nil, err
	}
	d, err := s.diagnoses.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeFor(ctx, auth.OpReadDiagnosis, d, p); err != nil {
		return nil, err
	}
	return d, nil
}

// ReviewDiagnosis records the assigned doctor's notes and verdict. The
// prediction itself is never changed.
func (s *Service) ReviewDiagnosis(ctx context.Context, p auth.Principal, id int64, in ReviewInput) (*Diagnosis, error) {
	if err := auth.CheckRole(auth.OpReviewDiagnosis, p); err != nil {
		return nil, err
	}
	if !in.Status.Valid() {
		return nil, apperr.Validation("status must be one of Pending, Completed, RequiresReview")
	}

	var d *Diagnosis
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		d, err = s.diagnoses.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.authorizeFor(ctx, auth.OpReviewDiagnosis, d, p); err != nil {
			return err
		}
		at := s.now().UTC()
		if err := s.diagnoses.UpdateReview(ctx, id, in.DoctorNotes, in.Status, p.UserID, at); err != nil {
			return err
		}
		reviewer := p.UserID
		d.DoctorNotes = in.DoctorNotes
		d.Status = in.Status
		d.ReviewedBy = &reviewer
		d.ReviewedAt = &at
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// ListPatientDiagnoses returns a patient's diagnoses, newest first.
func (s *Service) ListPatientDiagnoses(ctx context.Context, p auth.Principal, patientID int64, limit, offset int) ([]*Diagnosis, int, error) {
	if err := auth.CheckRole(auth.OpReadDiagnosis, p); err != nil {
		return nil, 0, err
	}
	pat, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, 0, err
	}
	if err := auth.Authorize(auth.OpReadDiagnosis, pat.Resource(), p).Err("patient not found"); err != nil {
		return nil, 0, err
	}
	return s.diagnoses.ListByPatient(ctx, patientID, limit, offset)
}

// authorizeFor evaluates op against the patient owning d. A missing owner
// is reported the same way as an ownership denial.
func (s *Service) authorizeFor(ctx context.Context, op auth.Operation, d *Diagnosis, p auth.Principal) error {
	pat, err := s.patients.GetByID(ctx, d.PatientID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return apperr.NotFound(notFoundMsg)
		}
		return err
	}
	return auth.Authorize(op, pat.Resource(), p).Err(notFoundMsg)
}

// predictionError maps provider failures onto error kinds. Bad input is the
// caller's fault; everything else means the model could not answer.
func predictionError(err error) error {
	switch {
	case errors.Is(err, prediction.ErrUnsupportedModelType),
		errors.Is(err, prediction.ErrInvalidFeatures),
		errors.Is(err, prediction.ErrInvalidImage):
		return apperr.Wrap(apperr.KindValidationFailed, err.Error(), err)
	}
	return apperr.Wrap(apperr.KindPredictionUnavailable, "prediction service unavailable", err)
}
