package subscription

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Verifier,Store,SettingsReader

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/jmehdipour/subscribers/internal/db"
	"github.com/jmehdipour/subscribers/internal/model"
	"github.com/jmehdipour/subscribers/internal/repository"
	"github.com/jmehdipour/subscribers/internal/service/subscription/mocks"
	"github.com/jmehdipour/subscribers/migrations"
)

type SubmitSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	store    *mocks.MockStore
	verifier *mocks.MockVerifier
	settings *mocks.MockSettingsReader
	svc      *Service
	ctx      context.Context
}

func TestSubmitSuite(t *testing.T) {
	suite.Run(t, new(SubmitSuite))
}

func (s *SubmitSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = mocks.NewMockStore(s.ctrl)
	s.verifier = mocks.NewMockVerifier(s.ctrl)
	s.settings = mocks.NewMockSettingsReader(s.ctrl)
	s.svc = New(s.store, s.verifier, s.settings, nil)
	s.ctx = context.Background()
}

func (s *SubmitSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *SubmitSuite) verificationOff() {
	s.settings.EXPECT().Verification(gomock.Any()).Return(model.VerificationSettings{}, nil)
}

func (s *SubmitSuite) verificationOn() {
	s.settings.EXPECT().Verification(gomock.Any()).
		Return(model.VerificationSettings{Enabled: true, SiteKey: "site", SecretKey: "secret"}, nil)
}

func (s *SubmitSuite) TestNewSubscriberIsInserted() {
	s.verificationOff()
	s.store.EXPECT().Exists(gomock.Any(), "jane@x.com").Return(false, nil)
	s.store.EXPECT().Insert(gomock.Any(), "Jane", "jane@x.com", model.SourceForm).
		Return(model.Subscriber{ID: 1, Name: "Jane", Email: "jane@x.com"}, nil)

	res, err := s.svc.Submit(s.ctx, Submission{Name: "Jane", Email: "jane@x.com"})
	s.Require().NoError(err)
	s.True(res.Accepted)
	s.Equal(MsgAccepted, res.Message)
	s.Empty(res.Reason)
}

func (s *SubmitSuite) TestInputIsSanitizedBeforeStore() {
	s.verificationOff()
	s.store.EXPECT().Exists(gomock.Any(), "Jane@X.com").Return(false, nil)
	s.store.EXPECT().Insert(gomock.Any(), "Jane Doe", "Jane@X.com", model.SourceForm).
		Return(model.Subscriber{ID: 1}, nil)

	res, err := s.svc.Submit(s.ctx, Submission{Name: "  <b>Jane</b>\t Doe ", Email: " Jane@X.com "})
	s.Require().NoError(err)
	s.True(res.Accepted)
}

func (s *SubmitSuite) TestExistingEmailIsAcceptedWithoutInsert() {
	s.verificationOff()
	s.store.EXPECT().Exists(gomock.Any(), "JANE@x.com").Return(true, nil)

	res, err := s.svc.Submit(s.ctx, Submission{Name: "Jane", Email: "JANE@x.com"})
	s.Require().NoError(err)
	s.True(res.Accepted)
	s.Equal(MsgAccepted, res.Message)
}

func (s *SubmitSuite) TestLostInsertRaceIsAccepted() {
	s.verificationOff()
	s.store.EXPECT().Exists(gomock.Any(), "jane@x.com").Return(false, nil)
	s.store.EXPECT().Insert(gomock.Any(), "Jane", "jane@x.com", model.SourceForm).
		Return(model.Subscriber{}, repository.ErrDuplicate)

	res, err := s.svc.Submit(s.ctx, Submission{Name: "Jane", Email: "jane@x.com"})
	s.Require().NoError(err)
	s.True(res.Accepted)
}

func (s *SubmitSuite) TestInvalidInput() {
	cases := []Submission{
		{Name: "", Email: "jane@x.com"},
		{Name: "   ", Email: "jane@x.com"},
		{Name: "<i></i>", Email: "jane@x.com"},
		{Name: "Jane", Email: ""},
		{Name: "Jane", Email: "not-an-email"},
		{Name: "Jane", Email: "jane@"},
	}
	for _, c := range cases {
		s.Run(c.Name+"/"+c.Email, func() {
			s.verificationOff()
			res, err := s.svc.Submit(s.ctx, c)
			s.Require().NoError(err)
			s.False(res.Accepted)
			s.Equal(ReasonInvalidInput, res.Reason)
			s.Equal(MsgInvalidInput, res.Message)
		})
	}
}

func (s *SubmitSuite) TestVerificationPasses() {
	s.verificationOn()
	s.verifier.EXPECT().Verify(gomock.Any(), "tok", "secret", "10.0.0.1").Return(true)
	s.store.EXPECT().Exists(gomock.Any(), "jane@x.com").Return(false, nil)
	s.store.EXPECT().Insert(gomock.Any(), "Jane", "jane@x.com", model.SourceForm).Return(model.Subscriber{ID: 1}, nil)

	res, err := s.svc.Submit(s.ctx, Submission{Name: "Jane", Email: "jane@x.com", Token: "tok", RemoteIP: "10.0.0.1"})
	s.Require().NoError(err)
	s.True(res.Accepted)
}

func (s *SubmitSuite) TestVerificationFailureLeavesStoreUntouched() {
	s.verificationOn()
	s.verifier.EXPECT().Verify(gomock.Any(), "bad", "secret", "").Return(false)
	// no store expectations: any call fails the test

	res, err := s.svc.Submit(s.ctx, Submission{Name: "Jane", Email: "jane@x.com", Token: "bad"})
	s.Require().NoError(err)
	s.False(res.Accepted)
	s.Equal(ReasonVerificationFailed, res.Reason)
	s.Equal(MsgVerificationFailed, res.Message)
}

func (s *SubmitSuite) TestVerificationRunsBeforeValidation() {
	s.verificationOn()
	s.verifier.EXPECT().Verify(gomock.Any(), "", "secret", "").Return(false)

	res, err := s.svc.Submit(s.ctx, Submission{Name: "", Email: "nope"})
	s.Require().NoError(err)
	s.Equal(ReasonVerificationFailed, res.Reason)
}

func (s *SubmitSuite) TestVerificationDisabledSkipsGate() {
	s.verificationOff()
	s.store.EXPECT().Exists(gomock.Any(), "jane@x.com").Return(true, nil)

	res, err := s.svc.Submit(s.ctx, Submission{Name: "Jane", Email: "jane@x.com", Token: "ignored"})
	s.Require().NoError(err)
	s.True(res.Accepted)
}

func (s *SubmitSuite) TestStoreFailureIsAnError() {
	s.verificationOff()
	s.store.EXPECT().Exists(gomock.Any(), "jane@x.com").Return(false, errors.New("db down"))

	_, err := s.svc.Submit(s.ctx, Submission{Name: "Jane", Email: "jane@x.com"})
	s.Error(err)
}

func (s *SubmitSuite) TestSettingsFailureIsAnError() {
	s.settings.EXPECT().Verification(gomock.Any()).Return(model.VerificationSettings{}, errors.New("db down"))

	_, err := s.svc.Submit(s.ctx, Submission{Name: "Jane", Email: "jane@x.com"})
	s.Error(err)
}

type staticSettings struct{}

func (staticSettings) Verification(context.Context) (model.VerificationSettings, error) {
	return model.VerificationSettings{}, nil
}

// Repeated and concurrent submissions of one address, in any casing, leave one row.
func TestSubmit_IdempotentAgainstRealStore(t *testing.T) {
	dbx, err := db.NewSQLiteConnection("file:"+filepath.Join(t.TempDir(), "subs.db"), db.SQLOpts{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbx.Close() })
	stmts, err := migrations.Statements(db.DriverSQLite)
	require.NoError(t, err)
	for _, q := range stmts {
		_, err := dbx.Exec(q)
		require.NoError(t, err)
	}

	store := repository.NewSubscribersRepository(dbx, repository.NewOutboxRepository(dbx))
	svc := New(store, nil, staticSettings{}, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, email := range []string{"jane@x.com", "JANE@X.COM", "Jane@x.com", " jane@x.com "} {
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func(email string) {
				defer wg.Done()
				res, err := svc.Submit(ctx, Submission{Name: "Jane", Email: email})
				assert.NoError(t, err)
				assert.True(t, res.Accepted)
			}(email)
		}
	}
	wg.Wait()

	n, err := store.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
