package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,TokenIssuer,AuditPublisher

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	jwttoken "formvault/internal/jwt_token"
	"formvault/internal/platform/metrics"
	"formvault/internal/submission/models"
	"formvault/internal/submission/service/mocks"
	dErrors "formvault/pkg/domain-errors"
	"formvault/pkg/platform/audit"
	"formvault/pkg/platform/sentinel"
	"formvault/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	store   *mocks.MockStore
	tokens  *mocks.MockTokenIssuer
	audit   *mocks.MockAuditPublisher
	metrics *metrics.Metrics
	service *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = mocks.NewMockStore(s.ctrl)
	s.tokens = mocks.NewMockTokenIssuer(s.ctrl)
	s.audit = mocks.NewMockAuditPublisher(s.ctrl)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.service = New(s.store, s.tokens,
		WithAuditPublisher(s.audit),
		WithMetrics(s.metrics),
	)
}

// auditAction matches an audit.Event by action.
type auditAction audit.AuditEvent

func (a auditAction) Matches(x any) bool {
	e, ok := x.(audit.Event)
	return ok && e.Action == audit.AuditEvent(a)
}

func (a auditAction) String() string { return fmt.Sprintf("audit event %q", string(a)) }

func complete(id int64) *models.Submission {
	return &models.Submission{
		ID:          id,
		Name:        "Ann",
		LastName:    "Lee",
		PDFFilename: "a.pdf",
		PDF:         []byte("%PDF"),
		Email:       sql.NullString{String: "ann@x.com", Valid: true},
	}
}

func (s *ServiceSuite) TestRegister() {
	at := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), at)
	in := models.RegisterInput{
		Name: "Ann", LastName: "Lee", Comment: "hi",
		PDFFilename: "a.pdf", PDF: []byte("pdf"),
		ImageFilename: "a.png", Image: []byte("png"),
	}

	s.Run("stores exactly the submitted fields", func() {
		s.store.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, sub *models.Submission) (int64, error) {
				s.Equal("Ann", sub.Name)
				s.Equal("Lee", sub.LastName)
				s.Equal("hi", sub.Comment)
				s.Equal("a.pdf", sub.PDFFilename)
				s.Equal([]byte("pdf"), sub.PDF)
				s.Equal("a.png", sub.ImageFilename)
				s.Equal([]byte("png"), sub.Image)
				s.False(sub.Email.Valid)
				s.Equal(at, sub.CreatedAt)
				return 11, nil
			})
		s.audit.EXPECT().Emit(gomock.Any(), auditAction(audit.EventSubmissionCreated)).Return(nil)

		id, err := s.service.Register(ctx, in)
		s.Require().NoError(err)
		s.Equal(int64(11), id)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.SubmissionsCreated))
	})

	s.Run("store failure is internal", func() {
		s.store.EXPECT().Create(gomock.Any(), gomock.Any()).Return(int64(0), errors.New("disk full"))

		_, err := s.service.Register(ctx, in)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("audit failure does not fail the step", func() {
		s.store.EXPECT().Create(gomock.Any(), gomock.Any()).Return(int64(12), nil)
		s.audit.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("kafka down"))

		id, err := s.service.Register(ctx, in)
		s.Require().NoError(err)
		s.Equal(int64(12), id)
	})
}

func (s *ServiceSuite) TestAttachEmail() {
	ctx := context.Background()

	s.Run("attaches, reloads and mints from the stored row", func() {
		row := complete(5)
		gomock.InOrder(
			s.store.EXPECT().AttachEmail(gomock.Any(), int64(5), "ann@x.com").Return(nil),
			s.audit.EXPECT().Emit(gomock.Any(), auditAction(audit.EventEmailAttached)).Return(nil),
			s.store.EXPECT().FindByID(gomock.Any(), int64(5)).Return(row, nil),
			s.tokens.EXPECT().Issue(row).Return("signed-token", nil),
			s.audit.EXPECT().Emit(gomock.Any(), auditAction(audit.EventTokenIssued)).Return(nil),
		)

		token, err := s.service.AttachEmail(ctx, 5, "ann@x.com")
		s.Require().NoError(err)
		s.Equal("signed-token", token)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.TokensIssued))
	})

	s.Run("unknown row is not found and mints nothing", func() {
		s.store.EXPECT().AttachEmail(gomock.Any(), int64(6), gomock.Any()).
			Return(fmt.Errorf("submission 6: %w", sentinel.ErrNotFound))

		_, err := s.service.AttachEmail(ctx, 6, "ann@x.com")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("second attach is a conflict", func() {
		s.store.EXPECT().AttachEmail(gomock.Any(), int64(7), gomock.Any()).
			Return(fmt.Errorf("submission 7 email: %w", sentinel.ErrAlreadyUsed))

		_, err := s.service.AttachEmail(ctx, 7, "ann@x.com")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("signing failure is internal", func() {
		row := complete(8)
		s.store.EXPECT().AttachEmail(gomock.Any(), int64(8), gomock.Any()).Return(nil)
		s.audit.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)
		s.store.EXPECT().FindByID(gomock.Any(), int64(8)).Return(row, nil)
		s.tokens.EXPECT().Issue(row).Return("", errors.New("hmac broke"))

		_, err := s.service.AttachEmail(ctx, 8, "ann@x.com")
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *ServiceSuite) TestRetrieve() {
	ctx := context.Background()

	s.Run("loads the row named by the token", func() {
		row := complete(9)
		s.tokens.EXPECT().Validate("tok").Return(&jwttoken.SubmissionClaims{ID: 9}, nil)
		s.store.EXPECT().FindByID(gomock.Any(), int64(9)).Return(row, nil)

		got, err := s.service.Retrieve(ctx, "tok")
		s.Require().NoError(err)
		s.Same(row, got)
	})

	s.Run("invalid token is rejected and audited", func() {
		s.tokens.EXPECT().Validate("bad").Return(nil, jwttoken.ErrInvalidToken)
		s.audit.EXPECT().Emit(gomock.Any(), auditAction(audit.EventTokenRejected)).Return(nil)

		_, err := s.service.Retrieve(ctx, "bad")
		s.ErrorIs(err, jwttoken.ErrInvalidToken)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		s.Equal(1.0, testutil.ToFloat64(s.metrics.TokensRejected))
	})

	s.Run("token for a missing row is not found", func() {
		s.tokens.EXPECT().Validate("orphan").Return(&jwttoken.SubmissionClaims{ID: 404}, nil)
		s.store.EXPECT().FindByID(gomock.Any(), int64(404)).
			Return(nil, fmt.Errorf("submission 404: %w", sentinel.ErrNotFound))

		_, err := s.service.Retrieve(ctx, "orphan")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestAttachment() {
	ctx := context.Background()

	s.Run("returns the requested file under its original name", func() {
		s.tokens.EXPECT().Validate("tok").Return(&jwttoken.SubmissionClaims{ID: 9}, nil)
		s.store.EXPECT().FindByID(gomock.Any(), int64(9)).Return(complete(9), nil)
		s.audit.EXPECT().Emit(gomock.Any(), auditAction(audit.EventAttachmentDownloaded)).Return(nil)

		att, err := s.service.Attachment(ctx, "tok", models.AttachmentPDF)
		s.Require().NoError(err)
		s.Equal("a.pdf", att.Filename)
		s.Equal([]byte("%PDF"), att.Content)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.Downloads.WithLabelValues("pdf")))
	})

	s.Run("unknown kind is a bad request", func() {
		s.tokens.EXPECT().Validate("tok").Return(&jwttoken.SubmissionClaims{ID: 9}, nil)
		s.store.EXPECT().FindByID(gomock.Any(), int64(9)).Return(complete(9), nil)

		_, err := s.service.Attachment(ctx, "tok", models.AttachmentKind("exe"))
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *ServiceSuite) TestRecordSessionReset() {
	s.audit.EXPECT().Emit(gomock.Any(), auditAction(audit.EventSessionReset)).Return(nil)
	s.service.RecordSessionReset(context.Background(), "visitor request")
}

func TestServiceWithoutOptionalDependencies(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	store.EXPECT().Create(gomock.Any(), gomock.Any()).Return(int64(1), nil)

	svc := New(store, mocks.NewMockTokenIssuer(ctrl))
	id, err := svc.Register(context.Background(), models.RegisterInput{Name: "Ann", LastName: "Lee"})
	if err != nil || id != 1 {
		t.Fatalf("Register() = %d, %v", id, err)
	}
	svc.RecordSessionReset(context.Background(), "noop")
}
