package config

import "time"

type OAuthConfig interface {
	GetDefaultAccessTokenExpiry() time.Duration
	GetDefaultRefreshTokenExpiry() time.Duration
	GetConfirmationCodeExpiry() time.Duration
}

type OAuth struct{}

var _ OAuthConfig = OAuth{}

func (OAuth) GetDefaultAccessTokenExpiry() time.Duration {
	return GetEnvDuration("ACCESS_TOKEN_LIFETIME", 1*time.Hour)
}

func (OAuth) GetDefaultRefreshTokenExpiry() time.Duration {
	return GetEnvDuration("REFRESH_TOKEN_LIFETIME", 7*24*time.Hour) // 7 days
}

func (OAuth) GetConfirmationCodeExpiry() time.Duration {
	return GetEnvDuration("CONFIRMATION_CODE_LIFETIME", 5*time.Minute)
}
