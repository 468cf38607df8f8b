// internal/application/service.go
package application

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"freelance-lifecycle/internal/common/errors"
	"freelance-lifecycle/internal/common/logger"
	"freelance-lifecycle/internal/common/metrics"
	"freelance-lifecycle/internal/common/observability"
	"freelance-lifecycle/internal/common/validation"
	"freelance-lifecycle/internal/models"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// EventPublisher hands lifecycle events to the event channel. It never
// returns an error; the outcome is in the PublishResult.
type EventPublisher interface {
	Publish(ctx context.Context, event models.NotificationEvent) models.PublishResult
}

// StatusChangeListener is called after a successful status transition.
type StatusChangeListener interface {
	OnStatusChanged(ctx context.Context, app models.Application, previous models.ApplicationStatus)
}

type Service struct {
	cfg       Config
	store     Store
	employers EmployerResolver
	publisher EventPublisher
	validator *validation.Validator
	obs       *observability.Observability
	listeners []StatusChangeListener
	logger    logger.Logger
	now       func() time.Time
}

func NewService(cfg *Config, store Store, employers EmployerResolver, publisher EventPublisher, obs *observability.Observability, log logger.Logger) *Service {
	v := validation.NewValidator().MustRegister(createRequestSchemaName, createRequestSchema)

	return &Service{
		cfg:       cfg.withDefaults(),
		store:     store,
		employers: employers,
		publisher: publisher,
		validator: v,
		obs:       obs,
		logger:    log.WithFields(map[string]interface{}{"component": "application-service"}),
		now:       time.Now,
	}
}

func (s *Service) AddStatusChangeListener(l StatusChangeListener) {
	s.listeners = append(s.listeners, l)
}

// timestamp is truncated to what Postgres stores so the returned entity
// matches a later read.
func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Service) CreateApplication(ctx context.Context, req models.CreateApplicationRequest) (app *models.Application, err error) {
	ctx, span := s.obs.StartSpan(ctx, "application.create")
	start := time.Now()
	defer func() {
		span.End()
		s.obs.RecordOperation(ctx, "application.create", observability.Status(err), time.Since(start))
		metrics.ApplicationsCreated.WithLabelValues(observability.Status(err)).Inc()
	}()

	if err := s.validateCreate(req); err != nil {
		return nil, err
	}
	projectID, freelancerID := *req.ProjectID, *req.FreelancerID
	span.SetAttributes(
		attribute.Int64("projectId", projectID),
		attribute.Int64("freelancerId", freelancerID))

	employerID, err := s.employers.ResolveEmployer(ctx, projectID)
	if err != nil {
		return nil, err
	}

	now := s.timestamp()
	app = &models.Application{
		ProjectID:    projectID,
		FreelancerID: freelancerID,
		EmployerID:   employerID,
		Message:      req.Message,
		Status:       models.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.Insert(ctx, app); err != nil {
		return nil, errors.NewDatabaseInsertFailedError(err)
	}

	s.logger.Info("application created", map[string]interface{}{
		"applicationId": app.ID,
		"projectId":     app.ProjectID,
		"freelancerId":  app.FreelancerID,
		"employerId":    app.EmployerID,
	})

	s.publishNewApplication(ctx, app)
	return app, nil
}

func (s *Service) validateCreate(req models.CreateApplicationRequest) error {
	result, err := s.validator.Validate(createRequestSchemaName, req)
	if err != nil {
		return errors.NewInternalError(err)
	}
	if !result.Valid {
		return errors.NewValidationError(strings.Join(result.GetErrorMessages(), "; "))
	}
	return nil
}

// publishNewApplication is best effort. The application is already stored,
// so a failed publish is logged and never returned.
func (s *Service) publishNewApplication(ctx context.Context, app *models.Application) {
	event := models.NotificationEvent{
		UserID:        app.EmployerID,
		Message:       fmt.Sprintf("New application from freelancer %d for project %d", app.FreelancerID, app.ProjectID),
		Type:          models.NotificationTypeNewApplication,
		DedupKey:      models.DedupKeyFor(app.ID, models.NotificationTypeNewApplication),
		ApplicationID: app.ID,
		EventID:       uuid.NewString(),
		OccurredAt:    app.CreatedAt,
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.PublishTimeout)
	defer cancel()

	result := s.publisher.Publish(pubCtx, event)
	if !result.OK() {
		s.logger.Warn("failed to publish notification event", map[string]interface{}{
			"applicationId": app.ID,
			"eventId":       event.EventID,
			"driver":        result.Driver,
			"error":         result.Err,
		})
		return
	}

	s.logger.Debug("notification event published", map[string]interface{}{
		"applicationId": app.ID,
		"eventId":       result.EventID,
		"messageId":     result.MessageID,
	})
}

func (s *Service) GetApplication(ctx context.Context, id int64) (*models.Application, error) {
	app, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.storeError(id, "get application", err)
	}
	return app, nil
}

// UpdateStatus applies a guarded transition with compare-and-set. When a
// concurrent writer wins, the row is re-read and the transition re-checked
// against the status it now has.
func (s *Service) UpdateStatus(ctx context.Context, id int64, requested string) (app *models.Application, err error) {
	ctx, span := s.obs.StartSpan(ctx, "application.update_status",
		attribute.Int64("applicationId", id),
		attribute.String("requestedStatus", requested))
	start := time.Now()
	defer func() {
		span.End()
		s.obs.RecordOperation(ctx, "application.update_status", observability.Status(err), time.Since(start))
	}()

	next, ok := models.ParseApplicationStatus(requested)
	if !ok {
		return nil, errors.NewValidationError(fmt.Sprintf("status: unknown value %q", requested))
	}

	for attempt := 1; attempt <= s.cfg.MaxCASAttempts; attempt++ {
		current, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, s.storeError(id, "get application", err)
		}

		if err := ValidateTransition(current.Status, next); err != nil {
			metrics.StatusTransitions.WithLabelValues(string(current.Status), string(next), "rejected").Inc()
			return nil, err
		}

		updated, err := s.store.CompareAndSetStatus(ctx, id, current.Status, next, s.timestamp())
		if stderrors.Is(err, ErrStatusConflict) {
			metrics.StatusTransitions.WithLabelValues(string(current.Status), string(next), "conflict").Inc()
			s.logger.Debug("status changed concurrently, re-reading", map[string]interface{}{
				"applicationId": id,
				"expected":      current.Status,
				"attempt":       attempt,
			})
			continue
		}
		if err != nil {
			return nil, s.storeError(id, "update status", err)
		}

		metrics.StatusTransitions.WithLabelValues(string(current.Status), string(next), "applied").Inc()
		s.logger.Info("application status updated", map[string]interface{}{
			"applicationId": id,
			"from":          current.Status,
			"to":            next,
		})

		for _, l := range s.listeners {
			l.OnStatusChanged(ctx, *updated, current.Status)
		}
		return updated, nil
	}

	return nil, errors.NewConcurrentModificationError(id)
}

func (s *Service) ListByProject(ctx context.Context, projectID int64) ([]models.Application, error) {
	apps, err := s.store.ListByProject(ctx, projectID)
	if err != nil {
		return nil, errors.NewDatabaseQueryFailedError("list by project", err)
	}
	return apps, nil
}

func (s *Service) ListByFreelancer(ctx context.Context, freelancerID int64) ([]models.Application, error) {
	apps, err := s.store.ListByFreelancer(ctx, freelancerID)
	if err != nil {
		return nil, errors.NewDatabaseQueryFailedError("list by freelancer", err)
	}
	return apps, nil
}

func (s *Service) ListByEmployer(ctx context.Context, employerID int64) ([]models.Application, error) {
	apps, err := s.store.ListByEmployer(ctx, employerID)
	if err != nil {
		return nil, errors.NewDatabaseQueryFailedError("list by employer", err)
	}
	return apps, nil
}

func (s *Service) storeError(id int64, operation string, err error) error {
	if stderrors.Is(err, ErrApplicationNotFound) {
		return errors.NewApplicationNotFoundError(id)
	}
	return errors.NewDatabaseQueryFailedError(operation, err)
}
