package config

import "time"

type SecurityConfig interface {
	GetSecretKey() string
	GetDangerousSalt() string
	GetPermanentSessionLifetime() time.Duration
	GetEmailExpiry() time.Duration
	GetEmailRevalidationWindow() time.Duration
	GetStatusPageUsername() string
	GetStatusPagePasswordHash() string
}

type Security struct{}

var _ SecurityConfig = Security{}

func (Security) GetSecretKey() string {
	return GetEnv("SECRET_KEY", "")
}

func (Security) GetDangerousSalt() string {
	return GetEnv("DANGEROUS_SALT", "")
}

// GetPermanentSessionLifetime is the sliding window applied to the session
// cookie on every request.
func (Security) GetPermanentSessionLifetime() time.Duration {
	return time.Duration(GetEnvInt("PERMANENT_SESSION_LIFETIME", 30*60)) * time.Second
}

func (Security) GetEmailExpiry() time.Duration {
	return time.Duration(GetEnvInt("EMAIL_EXPIRY_SECONDS", 3600)) * time.Second
}

// GetEmailRevalidationWindow is how long a proof of email possession stays
// fresh before the sign-in flow demands a new one.
func (Security) GetEmailRevalidationWindow() time.Duration {
	return time.Duration(GetEnvInt("EMAIL_REVALIDATION_SECONDS", 90*24*3600)) * time.Second
}

func (Security) GetStatusPageUsername() string {
	return GetEnv("STATUS_PAGE_USERNAME", "")
}

// GetStatusPagePasswordHash is a bcrypt hash; the status page compares the
// supplied basic-auth password against it.
func (Security) GetStatusPagePasswordHash() string {
	return GetEnv("STATUS_PAGE_PASSWORD_HASH", "")
}
