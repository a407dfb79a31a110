package confirmation

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	apperrors "github.com/jrsteele09/go-uma-server/internal/errors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	codeDigits       = 6
	defaultExpiresIn = 5 * time.Minute
)

// ConfirmationCode is a one-time code sent out of band to Subject.
type ConfirmationCode struct {
	Value     string    `json:"value"`
	Subject   string    `json:"subject"`
	IssueAt   time.Time `json:"issue_at"`
	ExpiresIn int       `json:"expires_in"`
}

func (c *ConfirmationCode) IsExpired(now time.Time) bool {
	return !now.Before(c.IssueAt.Add(time.Duration(c.ExpiresIn) * time.Second))
}

// Repo stores confirmation codes. Remove reports
// internal/errors.ErrNotFound when the code is absent.
type Repo interface {
	Get(ctx context.Context, value string) (*ConfirmationCode, error)
	Add(ctx context.Context, code *ConfirmationCode) error
	Remove(ctx context.Context, value string) error
}

// Sender delivers a code to its subject (a phone number for sms).
type Sender interface {
	Send(ctx context.Context, subject, code string) error
}

// LogSender writes codes to the log. Used when no SMS gateway is configured.
type LogSender struct {
	Logger zerolog.Logger
}

func (s LogSender) Send(_ context.Context, subject, _ string) error {
	s.Logger.Info().Str("subject", subject).Msg("confirmation code issued")
	return nil
}

// Service issues and consumes confirmation codes.
type Service struct {
	repo      Repo
	sender    Sender
	expiresIn time.Duration
	nowFunc   func() time.Time
	logger    zerolog.Logger
}

type ServiceOption func(*Service)

func WithSender(sender Sender) ServiceOption {
	return func(s *Service) {
		s.sender = sender
	}
}

func WithExpiresIn(d time.Duration) ServiceOption {
	return func(s *Service) {
		s.expiresIn = d
	}
}

func WithNowFunc(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowFunc = now
	}
}

func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

func NewService(repo Repo, options ...ServiceOption) *Service {
	s := &Service{
		repo:      repo,
		expiresIn: defaultExpiresIn,
		nowFunc:   time.Now,
		logger:    zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}
	if s.sender == nil {
		s.sender = LogSender{Logger: s.logger}
	}
	return s
}

// Generate stores a fresh code for subject and sends it.
func (s *Service) Generate(ctx context.Context, subject string) (*ConfirmationCode, error) {
	if subject == "" {
		return nil, apperrors.MissingParameter("subject")
	}

	value, err := newNumericCode(codeDigits)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Generate] newNumericCode")
	}
	code := &ConfirmationCode{
		Value:     value,
		Subject:   subject,
		IssueAt:   s.nowFunc().UTC(),
		ExpiresIn: int(s.expiresIn / time.Second),
	}
	if err := s.repo.Add(ctx, code); err != nil {
		return nil, errors.Wrap(err, "[Service.Generate] Add")
	}
	if err := s.sender.Send(ctx, subject, value); err != nil {
		return nil, errors.Wrap(err, "[Service.Generate] Send")
	}
	return code, nil
}

// Consume reports whether value is a live code for subject and, if so,
// removes it. Only one of two concurrent consumers succeeds.
func (s *Service) Consume(ctx context.Context, subject, value string) (bool, error) {
	code, err := s.repo.Get(ctx, value)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return false, nil
		}
		return false, errors.Wrap(err, "[Service.Consume] Get")
	}
	if code.Subject != subject {
		return false, nil
	}
	if code.IsExpired(s.nowFunc()) {
		if err := s.repo.Remove(ctx, value); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			s.logger.Error().Err(err).Msg("failed to remove expired confirmation code")
		}
		return false, nil
	}

	if err := s.repo.Remove(ctx, value); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return false, nil
		}
		return false, errors.Wrap(err, "[Service.Consume] Remove")
	}
	return true, nil
}

func newNumericCode(digits int) (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", digits, n.Int64()), nil
}
