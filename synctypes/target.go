package synctypes

import (
	"fmt"
	"strings"
)

// Environment names a deployment target.
type Environment string

const (
	Dev Environment = "dev"
	Tst Environment = "tst"
	Qas Environment = "qas"
	Stg Environment = "stg"
	Prd Environment = "prd"
)

// Environments lists every valid environment in promotion order.
var Environments = []Environment{Dev, Tst, Qas, Stg, Prd}

// ParseEnvironment validates an environment name.
func ParseEnvironment(s string) (Environment, error) {
	env := Environment(strings.ToLower(strings.TrimSpace(s)))
	for _, e := range Environments {
		if e == env {
			return env, nil
		}
	}
	return "", fmt.Errorf("unknown environment %q (want one of dev, tst, qas, stg, prd)", s)
}

// Credentials are the static store credentials of a target.
type Credentials struct {
	AccessKey    string
	SecretKey    string
	SessionToken string
}

// Complete reports whether both keys are set.
func (c Credentials) Complete() bool {
	return c.AccessKey != "" && c.SecretKey != ""
}

// Redacted returns a copy safe for printing.
func (c Credentials) Redacted() Credentials {
	return Credentials{
		AccessKey:    redact(c.AccessKey, 4),
		SecretKey:    redact(c.SecretKey, 0),
		SessionToken: redact(c.SessionToken, 0),
	}
}

func redact(s string, keep int) string {
	if s == "" {
		return ""
	}
	if keep <= 0 || len(s) <= keep*2 {
		return "****"
	}
	return s[:keep] + "****"
}

// Target is the single environment a run publishes to.
// It is built once by the config loader and never mutated.
type Target struct {
	Name         Environment
	Bucket       string
	Prefix       string
	Endpoint     string
	Region       string
	Credentials  Credentials
	CacheControl string
}

// NormalizedPrefix returns the prefix without surrounding slashes or spaces.
func (t Target) NormalizedPrefix() string {
	return strings.Trim(strings.TrimSpace(t.Prefix), "/")
}

// ListPrefix returns the prefix used to list the target's objects.
func (t Target) ListPrefix() string {
	p := t.NormalizedPrefix()
	if p == "" {
		return ""
	}
	return p + "/"
}

// ObjectKey returns the bucket key for an asset key.
func (t Target) ObjectKey(key string) string {
	key = strings.TrimLeft(key, "/")
	p := t.NormalizedPrefix()
	if p == "" {
		return key
	}
	return p + "/" + key
}

// RelativeKey strips the target prefix from a bucket key. The second
// result is false when the key is outside the prefix.
func (t Target) RelativeKey(fullKey string) (string, bool) {
	lp := t.ListPrefix()
	if lp == "" {
		return fullKey, true
	}
	if !strings.HasPrefix(fullKey, lp) {
		return "", false
	}
	return strings.TrimPrefix(fullKey, lp), true
}

// String describes the target without credentials.
func (t Target) String() string {
	return fmt.Sprintf("%s (s3://%s/%s)", t.Name, t.Bucket, t.NormalizedPrefix())
}
