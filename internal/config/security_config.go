package config

import "time"

type SecurityConfig interface {
	GetSignInTimeout() time.Duration
	GetMinSecretLength() int
	GetSweepInterval() time.Duration
}

type Security struct{}

var _ SecurityConfig = Security{}

func (Security) GetSignInTimeout() time.Duration {
	return GetEnvDuration("SIGNIN_TIMEOUT", 3*time.Second)
}

func (Security) GetMinSecretLength() int {
	return GetEnvInt("MIN_SECRET_LENGTH", 5)
}

func (Security) GetSweepInterval() time.Duration {
	return GetEnvDuration("SWEEP_INTERVAL", time.Minute)
}
