// Package gate decides whether an inbound request may use a protected route.
//
// Checks run in a fixed order and stop at the first failure:
// credentials, status, role, permissions, IP, country, time of day.
package gate

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ManuelReschke/IntegrationGate/app/models"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/access"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/config"
)

type Reason string

const (
	ReasonInvalidCredentials     Reason = "invalid_credentials"
	ReasonInactive               Reason = "inactive"
	ReasonInsufficientRole       Reason = "insufficient_role"
	ReasonInsufficientPermission Reason = "insufficient_permission"
	ReasonIPNotAllowed           Reason = "ip_not_allowed"
	ReasonGeoNotAllowed          Reason = "geo_not_allowed"
	ReasonTimeNotAllowed         Reason = "time_not_allowed"
)

// ReasonStoreUnavailable labels store failures in logs and metrics. It is
// never carried by a Verdict.
const ReasonStoreUnavailable Reason = "store_unavailable"

// HTTPStatus maps a denial reason to the status code returned to callers.
func (r Reason) HTTPStatus() int {
	switch r {
	case ReasonInvalidCredentials, ReasonInactive:
		return http.StatusUnauthorized
	case ReasonStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusForbidden
	}
}

var (
	// ErrStoreUnavailable wraps every lookup or write failure of the Store.
	ErrStoreUnavailable = errors.New("credential store unavailable")
	// ErrNotFound is returned by Store implementations for unknown records.
	ErrNotFound = errors.New("record not found")
)

// Request is what the HTTP layer extracted from one call plus the
// requirements declared by the route.
type Request struct {
	ClientID            string
	ClientSecret        string
	RequiredRole        access.Role
	RequiredPermissions []string
	CallerIP            string
	// CallerCountry is empty when no country header was present; the
	// geo check is skipped in that case.
	CallerCountry string
}

// Verdict is the outcome of one evaluation.
type Verdict struct {
	Allowed     bool
	Reason      Reason
	Integration *models.Integration
	// Secret is the child secret that authenticated the call, nil when the
	// legacy client secret matched.
	Secret *models.IntegrationSecret
}

func (v Verdict) HTTPStatus() int {
	if v.Allowed {
		return http.StatusOK
	}
	return v.Reason.HTTPStatus()
}

// Label is the reason code, or "allow".
func (v Verdict) Label() string {
	if v.Allowed {
		return "allow"
	}
	return string(v.Reason)
}

type Gate struct {
	cfg       *config.Config
	store     Store
	hierarchy access.Hierarchy
}

func New(cfg *config.Config, store Store) *Gate {
	return &Gate{cfg: cfg, store: store, hierarchy: cfg.Hierarchy()}
}

// Evaluate runs the pipeline. A non-nil error wraps ErrStoreUnavailable and
// means no verdict could be reached.
func (g *Gate) Evaluate(ctx context.Context, req Request) (Verdict, error) {
	integration, secret, err := g.authenticate(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return Verdict{}, err
	}
	if integration == nil {
		return Verdict{Reason: ReasonInvalidCredentials}, nil
	}

	verdict := Verdict{Integration: integration, Secret: secret}
	switch {
	case !integration.IsActive():
		verdict.Reason = ReasonInactive
	case !integration.HasRole(g.hierarchy, req.RequiredRole):
		verdict.Reason = ReasonInsufficientRole
	case !integration.GetPermissions().HasAll(req.RequiredPermissions):
		verdict.Reason = ReasonInsufficientPermission
	case !integration.IsIPAllowed(req.CallerIP):
		verdict.Reason = ReasonIPNotAllowed
	case req.CallerCountry != "" && !integration.IsCountryAllowed(req.CallerCountry):
		verdict.Reason = ReasonGeoNotAllowed
	case !integration.IsTimeAllowed(g.cfg.Now()):
		verdict.Reason = ReasonTimeNotAllowed
	default:
		verdict.Allowed = true
	}
	return verdict, nil
}

// Authenticate checks the credential pair only. It returns a nil integration
// for unknown clients and wrong secrets alike.
func (g *Gate) Authenticate(ctx context.Context, clientID, clientSecret string) (*models.Integration, error) {
	integration, _, err := g.authenticate(ctx, clientID, clientSecret)
	return integration, err
}

func (g *Gate) authenticate(ctx context.Context, clientID, clientSecret string) (*models.Integration, *models.IntegrationSecret, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" || clientSecret == "" {
		return nil, nil, nil
	}

	integration, err := g.store.IntegrationByClientID(ctx, clientID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("%w: lookup integration: %w", ErrStoreUnavailable, err)
	}

	if integration.ClientSecret != "" &&
		subtle.ConstantTimeCompare([]byte(integration.ClientSecret), []byte(clientSecret)) == 1 {
		return integration, nil, nil
	}

	secret, err := g.store.SecretByKey(ctx, integration.ID, clientSecret)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("%w: lookup secret: %w", ErrStoreUnavailable, err)
	}

	now := g.cfg.Now()
	if !secret.IsValid(now) {
		return nil, nil, nil
	}
	if err := g.store.MarkSecretUsed(ctx, secret.ID, now); err != nil {
		return nil, nil, fmt.Errorf("%w: mark secret used: %w", ErrStoreUnavailable, err)
	}
	secret.LastUsedAt = &now
	return integration, secret, nil
}
