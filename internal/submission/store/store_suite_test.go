package store_test

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"

	"formvault/internal/submission/models"
	"formvault/pkg/platform/sentinel"
)

type submissionStore interface {
	Create(ctx context.Context, sub *models.Submission) (int64, error)
	AttachEmail(ctx context.Context, id int64, email string) error
	FindByID(ctx context.Context, id int64) (*models.Submission, error)
}

// storeSuite holds the behaviour every submission store must share. Concrete
// suites embed it and set newStore.
type storeSuite struct {
	suite.Suite
	newStore func() submissionStore
	store    submissionStore
}

func (s *storeSuite) SetupTest() {
	s.store = s.newStore()
}

func newSubmission(name string) *models.Submission {
	return &models.Submission{
		Name:          name,
		LastName:      "Lee",
		ImageFilename: "a.png",
		Image:         []byte{0x89, 'P', 'N', 'G'},
		PDFFilename:   "a.pdf",
		PDF:           []byte("%PDF-1.4"),
		Comment:       "hi",
		CreatedAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (s *storeSuite) TestCreateAssignsIncreasingIDs() {
	ctx := context.Background()

	first, err := s.store.Create(ctx, newSubmission("Ann"))
	s.Require().NoError(err)
	second, err := s.store.Create(ctx, newSubmission("Bo"))
	s.Require().NoError(err)

	s.Positive(first)
	s.Greater(second, first)
}

func (s *storeSuite) TestCreatedRecordHasNoEmail() {
	ctx := context.Background()
	id, err := s.store.Create(ctx, newSubmission("Ann"))
	s.Require().NoError(err)

	got, err := s.store.FindByID(ctx, id)
	s.Require().NoError(err)
	s.Equal(id, got.ID)
	s.Equal("Ann", got.Name)
	s.Equal("Lee", got.LastName)
	s.Equal("a.pdf", got.PDFFilename)
	s.Equal([]byte("%PDF-1.4"), got.PDF)
	s.Equal("a.png", got.ImageFilename)
	s.Equal([]byte{0x89, 'P', 'N', 'G'}, got.Image)
	s.Equal("hi", got.Comment)
	s.False(got.Email.Valid)
	s.False(got.Complete())
}

func (s *storeSuite) TestEmptyFilesRoundTrip() {
	ctx := context.Background()
	sub := newSubmission("Ann")
	sub.PDF = nil
	sub.Image = []byte{}
	id, err := s.store.Create(ctx, sub)
	s.Require().NoError(err)

	got, err := s.store.FindByID(ctx, id)
	s.Require().NoError(err)
	s.Empty(got.PDF)
	s.Empty(got.Image)
}

func (s *storeSuite) TestAttachEmailOnce() {
	ctx := context.Background()
	id, err := s.store.Create(ctx, newSubmission("Ann"))
	s.Require().NoError(err)

	s.Require().NoError(s.store.AttachEmail(ctx, id, "ann@x.com"))

	got, err := s.store.FindByID(ctx, id)
	s.Require().NoError(err)
	s.Equal("ann@x.com", got.EmailAddress())
	s.True(got.Complete())

	err = s.store.AttachEmail(ctx, id, "other@x.com")
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)

	got, err = s.store.FindByID(ctx, id)
	s.Require().NoError(err)
	s.Equal("ann@x.com", got.EmailAddress(), "first email is kept")
}

func (s *storeSuite) TestAttachEmailUnknownID() {
	err := s.store.AttachEmail(context.Background(), 999999, "ann@x.com")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *storeSuite) TestFindByIDUnknown() {
	_, err := s.store.FindByID(context.Background(), 999999)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *storeSuite) TestConcurrentCreatesGetDistinctIDs() {
	ctx := context.Background()
	const writers = 20

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[int64]struct{}, writers)
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := s.store.Create(ctx, newSubmission("Ann"))
			if err != nil {
				s.T().Errorf("create: %v", err)
				return
			}
			mu.Lock()
			ids[id] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	s.Len(ids, writers)
}

func (s *storeSuite) TestRecordsAreIndependent() {
	ctx := context.Background()
	a, err := s.store.Create(ctx, newSubmission("Ann"))
	s.Require().NoError(err)
	b, err := s.store.Create(ctx, newSubmission("Bo"))
	s.Require().NoError(err)

	s.Require().NoError(s.store.AttachEmail(ctx, a, "ann@x.com"))

	got, err := s.store.FindByID(ctx, b)
	s.Require().NoError(err)
	s.False(got.Email.Valid)
}
