package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tracklab-io/tracklab/internal/platform/env"
)

type Mode string

const (
	ModeDisabled Mode = "disabled"
	ModeDev      Mode = "dev"
	ModeToken    Mode = "token"
	ModeOIDC     Mode = "oidc"
)

type Config struct {
	Mode Mode

	DevSubject string
	DevEmail   string
	DevRoles   []string

	StaticToken string

	OIDCIssuerURL string
	OIDCClientID  string
	EmailClaim    string
	RolesClaim    string
}

func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Mode:          Mode(strings.ToLower(env.String("TRACKLAB_AUTH_MODE", string(ModeDisabled)))),
		DevSubject:    env.String("TRACKLAB_DEV_AUTH_SUBJECT", "dev"),
		DevEmail:      env.String("TRACKLAB_DEV_AUTH_EMAIL", "dev@localhost"),
		StaticToken:   env.String("TRACKLAB_AUTH_TOKEN", ""),
		OIDCIssuerURL: env.String("TRACKLAB_OIDC_ISSUER_URL", ""),
		OIDCClientID:  env.String("TRACKLAB_OIDC_CLIENT_ID", ""),
		EmailClaim:    env.String("TRACKLAB_OIDC_EMAIL_CLAIM", "email"),
		RolesClaim:    env.String("TRACKLAB_OIDC_ROLES_CLAIM", "roles"),
	}
	if roles := strings.TrimSpace(env.String("TRACKLAB_DEV_AUTH_ROLES", "")); roles != "" {
		for _, role := range strings.Split(roles, ",") {
			if role = strings.TrimSpace(role); role != "" {
				cfg.DevRoles = append(cfg.DevRoles, role)
			}
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Mode {
	case ModeDisabled, ModeDev:
		return nil
	case ModeToken:
		if strings.TrimSpace(c.StaticToken) == "" {
			return errors.New("TRACKLAB_AUTH_TOKEN is required in token mode")
		}
		return nil
	case ModeOIDC:
		if strings.TrimSpace(c.OIDCIssuerURL) == "" {
			return errors.New("TRACKLAB_OIDC_ISSUER_URL is required in oidc mode")
		}
		if strings.TrimSpace(c.OIDCClientID) == "" {
			return errors.New("TRACKLAB_OIDC_CLIENT_ID is required in oidc mode")
		}
		return nil
	default:
		return fmt.Errorf("unsupported auth mode %q", c.Mode)
	}
}
