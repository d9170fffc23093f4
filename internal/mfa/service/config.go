package service

import "time"

// Config is the MFA policy shared by every service. Zero fields take the
// defaults from DefaultConfig.
type Config struct {
	Issuer            string
	MaxFailedAttempts int
	PendingTTL        time.Duration
	BackupCodeCount   int
	BackupCodeLength  int
	TOTPSkew          uint
	ReplayProtection  bool
	StepUpTTL         time.Duration
	SessionTTL        time.Duration
	MinPasswordLength int
	QRSize            int
	Audience          []string
}

func DefaultConfig() Config {
	return Config{
		Issuer:            "mfagate",
		MaxFailedAttempts: 5,
		PendingTTL:        10 * time.Minute,
		BackupCodeCount:   8,
		BackupCodeLength:  10,
		TOTPSkew:          1,
		ReplayProtection:  true,
		StepUpTTL:         10 * time.Minute,
		SessionTTL:        24 * time.Hour,
		MinPasswordLength: 8,
		QRSize:            200,
	}
}

// withDefaults fills zero fields. ReplayProtection is taken as given.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Issuer == "" {
		c.Issuer = d.Issuer
	}
	if c.MaxFailedAttempts <= 0 {
		c.MaxFailedAttempts = d.MaxFailedAttempts
	}
	if c.PendingTTL <= 0 {
		c.PendingTTL = d.PendingTTL
	}
	if c.BackupCodeCount <= 0 {
		c.BackupCodeCount = d.BackupCodeCount
	}
	if c.BackupCodeLength <= 0 {
		c.BackupCodeLength = d.BackupCodeLength
	}
	if c.StepUpTTL <= 0 {
		c.StepUpTTL = d.StepUpTTL
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = d.SessionTTL
	}
	if c.MinPasswordLength <= 0 {
		c.MinPasswordLength = d.MinPasswordLength
	}
	if c.QRSize <= 0 {
		c.QRSize = d.QRSize
	}
	return c
}
