// Package service orchestrates the three steps of the form flow: it persists
// the register step, attaches the email and mints the retrieval token, and
// resolves tokens back into stored submissions.
package service

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	jwttoken "formvault/internal/jwt_token"
	"formvault/internal/platform/metrics"
	"formvault/internal/submission/models"
	dErrors "formvault/pkg/domain-errors"
	"formvault/pkg/platform/audit"
	"formvault/pkg/platform/sentinel"
	"formvault/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, sub *models.Submission) (int64, error)
	AttachEmail(ctx context.Context, id int64, email string) error
	FindByID(ctx context.Context, id int64) (*models.Submission, error)
}

type TokenIssuer interface {
	Issue(sub *models.Submission) (string, error)
	Validate(token string) (*jwttoken.SubmissionClaims, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is safe for concurrent use; it holds no per-visitor state.
type Service struct {
	store          Store
	tokens         TokenIssuer
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

func New(store Store, tokens TokenIssuer, opts ...Option) *Service {
	s := &Service{
		store:  store,
		tokens: tokens,
		logger: slog.New(slog.DiscardHandler),
		tracer: otel.Tracer("formvault/submission"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register stores the first step and returns the new row id.
func (s *Service) Register(ctx context.Context, in models.RegisterInput) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "submission.Register")
	defer span.End()

	sub := &models.Submission{
		Name:          in.Name,
		LastName:      in.LastName,
		ImageFilename: in.ImageFilename,
		Image:         in.Image,
		PDFFilename:   in.PDFFilename,
		PDF:           in.PDF,
		Comment:       in.Comment,
		CreatedAt:     requestcontext.Now(ctx),
	}
	id, err := s.store.Create(ctx, sub)
	if err != nil {
		return 0, s.fail(span, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save submission"))
	}
	span.SetAttributes(attribute.Int64("submission.id", id))

	s.logger.InfoContext(ctx, "submission created",
		"submission_id", id,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.emit(ctx, audit.Event{Action: audit.EventSubmissionCreated, SubmissionID: id})
	if s.metrics != nil {
		s.metrics.SubmissionsCreated.Inc()
	}
	return id, nil
}

// AttachEmail completes the submission and returns its retrieval token. The
// token is minted from the row as re-read after the write.
func (s *Service) AttachEmail(ctx context.Context, id int64, email string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "submission.AttachEmail",
		trace.WithAttributes(attribute.Int64("submission.id", id)))
	defer span.End()

	if err := s.store.AttachEmail(ctx, id, email); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return "", s.fail(span, dErrors.Wrap(err, dErrors.CodeNotFound, "submission not found"))
		case errors.Is(err, sentinel.ErrAlreadyUsed):
			return "", s.fail(span, dErrors.Wrap(err, dErrors.CodeConflict, "email already attached"))
		default:
			return "", s.fail(span, dErrors.Wrap(err, dErrors.CodeInternal, "failed to attach email"))
		}
	}
	s.emit(ctx, audit.Event{Action: audit.EventEmailAttached, SubmissionID: id})
	if s.metrics != nil {
		s.metrics.EmailsAttached.Inc()
	}

	sub, err := s.find(ctx, id)
	if err != nil {
		return "", s.fail(span, err)
	}
	token, err := s.tokens.Issue(sub)
	if err != nil {
		var de *dErrors.Error
		if errors.As(err, &de) {
			return "", s.fail(span, err)
		}
		return "", s.fail(span, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token"))
	}

	s.logger.InfoContext(ctx, "token issued",
		"submission_id", id,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.emit(ctx, audit.Event{Action: audit.EventTokenIssued, SubmissionID: id})
	if s.metrics != nil {
		s.metrics.TokensIssued.Inc()
	}
	return token, nil
}

// Retrieve verifies the token and loads the submission it names. The token's
// id is authoritative; no session-held id is consulted.
func (s *Service) Retrieve(ctx context.Context, token string) (*models.Submission, error) {
	ctx, span := s.tracer.Start(ctx, "submission.Retrieve")
	defer span.End()

	sub, err := s.retrieve(ctx, token)
	if err != nil {
		return nil, s.fail(span, err)
	}
	span.SetAttributes(attribute.Int64("submission.id", sub.ID))
	return sub, nil
}

// Attachment returns one stored file for the token's submission.
func (s *Service) Attachment(ctx context.Context, token string, kind models.AttachmentKind) (*models.Attachment, error) {
	ctx, span := s.tracer.Start(ctx, "submission.Attachment",
		trace.WithAttributes(attribute.String("attachment.kind", string(kind))))
	defer span.End()

	sub, err := s.retrieve(ctx, token)
	if err != nil {
		return nil, s.fail(span, err)
	}
	att, ok := sub.Attachment(kind)
	if !ok {
		return nil, s.fail(span, dErrors.New(dErrors.CodeBadRequest, "unknown attachment kind"))
	}

	s.emit(ctx, audit.Event{
		Action:       audit.EventAttachmentDownloaded,
		SubmissionID: sub.ID,
		Subject:      string(kind),
	})
	if s.metrics != nil {
		s.metrics.IncDownload(string(kind))
	}
	return att, nil
}

// RecordSessionReset audits a visitor's session being cleared.
func (s *Service) RecordSessionReset(ctx context.Context, reason string) {
	s.emit(ctx, audit.Event{Action: audit.EventSessionReset, Reason: reason})
}

func (s *Service) retrieve(ctx context.Context, token string) (*models.Submission, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		s.logger.WarnContext(ctx, "token rejected",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		s.emit(ctx, audit.Event{Action: audit.EventTokenRejected, Reason: "invalid token"})
		if s.metrics != nil {
			s.metrics.TokensRejected.Inc()
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, jwttoken.ErrInvalidToken.Message)
	}
	return s.find(ctx, claims.ID)
}

func (s *Service) find(ctx context.Context, id int64) (*models.Submission, error) {
	sub, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "submission not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load submission")
	}
	return sub, nil
}

// emit never fails the caller: audit delivery problems are logged.
func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"error", err,
		)
	}
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
