package users

import (
	"context"

	"github.com/jrsteele09/go-uma-server/confirmation"
	apperrors "github.com/jrsteele09/go-uma-server/internal/errors"
	"github.com/pkg/errors"
)

const (
	AmrPassword = "pwd"
	AmrSMS      = "sms"
)

// Authenticator verifies resource owner credentials for one authentication
// method reference (amr).
type Authenticator interface {
	Amr() string
	// Authenticate returns nil, nil when the credentials are not correct.
	Authenticate(ctx context.Context, login, password string) (*User, error)
}

// PasswordAuthenticator checks a login and bcrypt password hash.
type PasswordAuthenticator struct {
	repo Repo
}

func NewPasswordAuthenticator(repo Repo) *PasswordAuthenticator {
	return &PasswordAuthenticator{repo: repo}
}

func (a *PasswordAuthenticator) Amr() string { return AmrPassword }

func (a *PasswordAuthenticator) Authenticate(ctx context.Context, login, password string) (*User, error) {
	user, err := a.repo.GetByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "[PasswordAuthenticator.Authenticate] GetByLogin")
	}
	if !CheckPasswordHash(password, user.PasswordHash) {
		return nil, nil
	}
	return user, nil
}

// SMSAuthenticator treats the login as a phone number and the password as
// a confirmation code previously sent to it.
type SMSAuthenticator struct {
	repo          Repo
	confirmations *confirmation.Service
}

func NewSMSAuthenticator(repo Repo, confirmations *confirmation.Service) *SMSAuthenticator {
	return &SMSAuthenticator{repo: repo, confirmations: confirmations}
}

func (a *SMSAuthenticator) Amr() string { return AmrSMS }

func (a *SMSAuthenticator) Authenticate(ctx context.Context, phoneNumber, code string) (*User, error) {
	user, err := a.repo.GetByPhoneNumber(ctx, phoneNumber)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "[SMSAuthenticator.Authenticate] GetByPhoneNumber")
	}

	ok, err := a.confirmations.Consume(ctx, phoneNumber, code)
	if err != nil {
		return nil, errors.Wrap(err, "[SMSAuthenticator.Authenticate] Consume")
	}
	if !ok {
		return nil, nil
	}
	return user, nil
}

// Authenticators selects an Authenticator by the requested amr values.
type Authenticators struct {
	byAmr      map[string]Authenticator
	defaultAmr string
}

// NewAuthenticators registers authenticators; the first one is the default.
func NewAuthenticators(authenticators ...Authenticator) *Authenticators {
	a := &Authenticators{byAmr: make(map[string]Authenticator, len(authenticators))}
	for _, auth := range authenticators {
		if a.defaultAmr == "" {
			a.defaultAmr = auth.Amr()
		}
		a.byAmr[auth.Amr()] = auth
	}
	return a
}

// Authenticate uses the first registered amr of amrValues, or the default
// authenticator when none is requested. The returned amr is the one used.
func (a *Authenticators) Authenticate(ctx context.Context, amrValues []string, login, password string) (*User, string, error) {
	auth, err := a.pick(amrValues)
	if err != nil {
		return nil, "", err
	}

	user, err := auth.Authenticate(ctx, login, password)
	if err != nil {
		return nil, "", err
	}
	if user == nil || user.Blocked {
		return nil, "", apperrors.InvalidGrant("the resource owner credentials are not correct")
	}
	return user, auth.Amr(), nil
}

func (a *Authenticators) pick(amrValues []string) (Authenticator, error) {
	if len(amrValues) == 0 {
		auth, ok := a.byAmr[a.defaultAmr]
		if !ok {
			return nil, apperrors.InvalidRequest("no authentication method is configured")
		}
		return auth, nil
	}
	for _, amr := range amrValues {
		if auth, ok := a.byAmr[amr]; ok {
			return auth, nil
		}
	}
	return nil, apperrors.InvalidRequest("the amr values %v are not supported", amrValues)
}
