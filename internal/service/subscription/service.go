// Package subscription handles public sign-ups.
package subscription

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmehdipour/subscribers/internal/logger"
	"github.com/jmehdipour/subscribers/internal/metrics"
	"github.com/jmehdipour/subscribers/internal/model"
	"github.com/jmehdipour/subscribers/internal/repository"
	"github.com/jmehdipour/subscribers/internal/util"
	"go.uber.org/zap"
)

type Reason string

const (
	ReasonVerificationFailed Reason = "verification_failed"
	ReasonInvalidInput       Reason = "invalid_input"
)

const (
	MsgAccepted           = "Thank you for subscribing!"
	MsgVerificationFailed = "Verification failed. Please try again."
	MsgInvalidInput       = "Please enter your name and a valid email address."
)

type Verifier interface {
	Verify(ctx context.Context, token, secret, remoteIP string) bool
}

type Store interface {
	Exists(ctx context.Context, email string) (bool, error)
	Insert(ctx context.Context, name, email string, source model.SignupSource) (model.Subscriber, error)
}

type SettingsReader interface {
	Verification(ctx context.Context) (model.VerificationSettings, error)
}

type Submission struct {
	Name     string
	Email    string
	Token    string
	RemoteIP string
}

// Result is what the submitter sees. It never says whether the address was
// already on the list.
type Result struct {
	Accepted bool
	Reason   Reason
	Message  string
}

func accepted() Result { return Result{Accepted: true, Message: MsgAccepted} }

func rejected(r Reason) Result {
	msg := MsgInvalidInput
	if r == ReasonVerificationFailed {
		msg = MsgVerificationFailed
	}
	return Result{Reason: r, Message: msg}
}

type Service struct {
	store    Store
	verifier Verifier
	settings SettingsReader
	log      *zap.Logger
}

func New(store Store, verifier Verifier, settings SettingsReader, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, verifier: verifier, settings: settings, log: log}
}

// Submit runs one public sign-up. Verification happens before any input is
// looked at; an already-subscribed address is accepted without a write.
// The error return is reserved for store and settings failures.
func (s *Service) Submit(ctx context.Context, sub Submission) (Result, error) {
	vs, err := s.settings.Verification(ctx)
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues("error").Inc()
		return Result{}, err
	}
	if vs.Enabled && !s.verifier.Verify(ctx, sub.Token, vs.SecretKey, sub.RemoteIP) {
		metrics.SubmissionsTotal.WithLabelValues(string(ReasonVerificationFailed)).Inc()
		return rejected(ReasonVerificationFailed), nil
	}

	name := util.SanitizeText(sub.Name)
	email := util.SanitizeEmail(sub.Email)
	if !util.ValidName(name) || !util.ValidEmail(email) {
		metrics.SubmissionsTotal.WithLabelValues(string(ReasonInvalidInput)).Inc()
		return rejected(ReasonInvalidInput), nil
	}

	exists, err := s.store.Exists(ctx, email)
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues("error").Inc()
		return Result{}, fmt.Errorf("submit: %w", err)
	}
	if exists {
		metrics.SubmissionsTotal.WithLabelValues("existing").Inc()
		return accepted(), nil
	}

	created, err := s.store.Insert(ctx, name, email, model.SourceForm)
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		// lost the race to a concurrent submission of the same address
		metrics.SubmissionsTotal.WithLabelValues("existing").Inc()
		return accepted(), nil
	case err != nil:
		metrics.SubmissionsTotal.WithLabelValues("error").Inc()
		return Result{}, fmt.Errorf("submit: %w", err)
	}

	metrics.SubmissionsTotal.WithLabelValues("created").Inc()
	s.log.Info("subscriber created",
		zap.Int64("subscriber_id", created.ID),
		logger.Email("email", email),
	)
	return accepted(), nil
}
