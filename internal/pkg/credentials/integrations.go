package credentials

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/datatypes"

	"github.com/ManuelReschke/IntegrationGate/app/models"
	"github.com/ManuelReschke/IntegrationGate/app/repository"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/access"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/config"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/events"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/gate"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/ratelimit"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/restrictions"
)

const clientIDAttempts = 5

var (
	ErrInvalidRedirectURI = errors.New("redirect uri must be an absolute url")
	ErrInvalidIPPattern   = errors.New("invalid ip address or cidr block")
	ErrInvalidRateLimit   = errors.New("scope limit must look like N/minute, N/hour or N/day")
	ErrClientIDExhausted  = errors.New("could not generate a unique client id")
	ErrNotOwner           = errors.New("integration belongs to another user")
)

// IntegrationInput describes a new integration. Nil blocks take the
// configured defaults.
type IntegrationInput struct {
	UserID           uint
	Name             string
	Description      string
	RedirectURIs     []string
	Status           string
	Role             *string
	Permissions      access.PermissionMap
	AllowedScopes    []string
	DefaultScopes    []string
	IPWhitelist      *restrictions.IPWhitelist
	GeoRestrictions  *restrictions.GeoRestrictions
	TimeRestrictions *restrictions.TimeRestrictions
	RateLimits       *ratelimit.Limits
	Metadata         map[string]any
}

// IntegrationUpdate changes the fields that are set. The client id is never
// changed.
type IntegrationUpdate struct {
	Name             *string
	Description      *string
	RedirectURIs     []string
	Status           *string
	Role             *string
	Permissions      access.PermissionMap
	AllowedScopes    []string
	DefaultScopes    []string
	IPWhitelist      *restrictions.IPWhitelist
	GeoRestrictions  *restrictions.GeoRestrictions
	TimeRestrictions *restrictions.TimeRestrictions
	RateLimits       *ratelimit.Limits
	Metadata         map[string]any
}

// Page is one page of a listing.
type Page struct {
	Items   []models.Integration `json:"data"`
	Total   int64                `json:"total"`
	Page    int                  `json:"current_page"`
	PerPage int                  `json:"per_page"`
}

// IntegrationService creates and maintains integrations.
type IntegrationService struct {
	integrations repository.IntegrationRepository
	cfg          *config.Config
	gate         *gate.Gate
}

func NewIntegrationService(integrations repository.IntegrationRepository, secrets repository.SecretRepository, cfg *config.Config) *IntegrationService {
	return &IntegrationService{
		integrations: integrations,
		cfg:          cfg,
		gate:         gate.New(cfg, gate.NewRepositoryStore(integrations, secrets)),
	}
}

// Create fills generated credentials and defaults, validates the result
// and stores it.
func (s *IntegrationService) Create(ctx context.Context, in IntegrationInput) (*models.Integration, []events.Event, error) {
	d := s.cfg.Defaults()

	i := &models.Integration{
		UserID:      in.UserID,
		Name:        in.Name,
		Description: in.Description,
		Status:      in.Status,
		Role:        string(d.Role),
	}
	if i.Status == "" {
		i.Status = s.cfg.DefaultStatus()
	}
	if in.Role != nil {
		i.Role = *in.Role
	}
	i.RedirectURIs = datatypes.JSONSlice[string](nonNil(in.RedirectURIs))

	perms := d.Permissions
	if in.Permissions != nil {
		perms = in.Permissions.Clone()
	}
	i.Permissions = datatypes.NewJSONType(perms)

	i.AllowedScopes = datatypes.JSONSlice[string](d.AllowedScopes)
	if in.AllowedScopes != nil {
		i.AllowedScopes = datatypes.JSONSlice[string](in.AllowedScopes)
	}
	i.DefaultScopes = datatypes.JSONSlice[string](d.DefaultScopes)
	if in.DefaultScopes != nil {
		i.DefaultScopes = datatypes.JSONSlice[string](in.DefaultScopes)
	}

	i.IPWhitelist = datatypes.NewJSONType(pick(in.IPWhitelist, d.IPWhitelist))
	i.GeoRestrictions = datatypes.NewJSONType(pick(in.GeoRestrictions, d.GeoRestrictions))
	i.TimeRestrictions = datatypes.NewJSONType(pick(in.TimeRestrictions, d.TimeRestriction))
	i.RateLimits = datatypes.NewJSONType(pick(in.RateLimits, d.RateLimits))
	i.Metadata = datatypes.JSONMap(in.Metadata)
	if i.Metadata == nil {
		i.Metadata = datatypes.JSONMap{}
	}

	if err := s.validate(i); err != nil {
		return nil, nil, err
	}

	clientID, err := s.uniqueClientID(ctx)
	if err != nil {
		return nil, nil, err
	}
	i.ClientID = clientID
	if i.ClientSecret, err = RandomToken(s.cfg.ClientSecretLength()); err != nil {
		return nil, nil, err
	}

	if err := s.integrations.Create(ctx, i); err != nil {
		return nil, nil, fmt.Errorf("create integration: %w", err)
	}
	e := events.New(events.IntegrationCreated, i.ID, s.cfg.Now(), map[string]any{
		"name":      i.Name,
		"client_id": i.ClientID,
		"user_id":   i.UserID,
	})
	return i, []events.Event{e}, nil
}

// Update applies the non-nil fields of in. i is left untouched unless the
// result validates and is stored.
func (s *IntegrationService) Update(ctx context.Context, i *models.Integration, in IntegrationUpdate) ([]events.Event, error) {
	next := *i
	changed := []string{}
	mark := func(field string) { changed = append(changed, field) }

	if in.Name != nil {
		next.Name = *in.Name
		mark("name")
	}
	if in.Description != nil {
		next.Description = *in.Description
		mark("description")
	}
	if in.RedirectURIs != nil {
		next.RedirectURIs = datatypes.JSONSlice[string](in.RedirectURIs)
		mark("redirect_uris")
	}
	if in.Status != nil {
		next.Status = *in.Status
		mark("status")
	}
	if in.Role != nil {
		next.Role = *in.Role
		mark("role")
	}
	if in.Permissions != nil {
		next.Permissions = datatypes.NewJSONType(in.Permissions.Clone())
		mark("permissions")
	}
	if in.AllowedScopes != nil {
		next.AllowedScopes = datatypes.JSONSlice[string](in.AllowedScopes)
		mark("allowed_scopes")
	}
	if in.DefaultScopes != nil {
		next.DefaultScopes = datatypes.JSONSlice[string](in.DefaultScopes)
		mark("default_scopes")
	}
	if in.IPWhitelist != nil {
		next.IPWhitelist = datatypes.NewJSONType(*in.IPWhitelist)
		mark("ip_whitelist")
	}
	if in.GeoRestrictions != nil {
		next.GeoRestrictions = datatypes.NewJSONType(*in.GeoRestrictions)
		mark("geo_restrictions")
	}
	if in.TimeRestrictions != nil {
		next.TimeRestrictions = datatypes.NewJSONType(*in.TimeRestrictions)
		mark("time_restrictions")
	}
	if in.RateLimits != nil {
		next.RateLimits = datatypes.NewJSONType(*in.RateLimits)
		mark("rate_limits")
	}
	if in.Metadata != nil {
		next.Metadata = datatypes.JSONMap(in.Metadata)
		mark("metadata")
	}

	return s.save(ctx, i, next, changed...)
}

// Delete soft deletes the integration and its secrets.
func (s *IntegrationService) Delete(ctx context.Context, i *models.Integration) ([]events.Event, error) {
	if err := s.integrations.Delete(ctx, i.ID); err != nil {
		return nil, fmt.Errorf("delete integration: %w", err)
	}
	e := events.New(events.IntegrationDeleted, i.ID, s.cfg.Now(), map[string]any{"name": i.Name, "client_id": i.ClientID})
	return []events.Event{e}, nil
}

func (s *IntegrationService) Activate(ctx context.Context, i *models.Integration) ([]events.Event, error) {
	next := *i
	next.Status = models.STATUS_ACTIVE
	return s.save(ctx, i, next, "status")
}

func (s *IntegrationService) Deactivate(ctx context.Context, i *models.Integration) ([]events.Event, error) {
	next := *i
	next.Status = models.STATUS_INACTIVE
	return s.save(ctx, i, next, "status")
}

// RegenerateSecret replaces the legacy client secret and returns the new value.
func (s *IntegrationService) RegenerateSecret(ctx context.Context, i *models.Integration) (string, []events.Event, error) {
	secret, err := RandomToken(s.cfg.ClientSecretLength())
	if err != nil {
		return "", nil, err
	}
	next := *i
	next.ClientSecret = secret
	evs, err := s.save(ctx, i, next, "client_secret")
	if err != nil {
		return "", nil, err
	}
	return secret, evs, nil
}

// Get loads an integration owned by userID.
func (s *IntegrationService) Get(ctx context.Context, userID, id uint) (*models.Integration, error) {
	i, err := s.integrations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if i.UserID != userID {
		return nil, ErrNotOwner
	}
	return i, nil
}

func (s *IntegrationService) GetByClientID(ctx context.Context, clientID string) (*models.Integration, error) {
	return s.integrations.GetByClientID(ctx, clientID)
}

// ListForUser returns one page of the user's integrations. page starts at 1
// and perPage is clamped to the configured bounds.
func (s *IntegrationService) ListForUser(ctx context.Context, userID uint, status, search string, page, perPage int) (Page, error) {
	perPage = s.cfg.ClampPerPage(perPage)
	if page < 1 {
		page = 1
	}
	items, total, err := s.integrations.List(ctx, repository.IntegrationFilter{
		UserID: userID,
		Status: status,
		Search: search,
		Offset: (page - 1) * perPage,
		Limit:  perPage,
	})
	if err != nil {
		return Page{}, err
	}
	if items == nil {
		items = []models.Integration{}
	}
	return Page{Items: items, Total: total, Page: page, PerPage: perPage}, nil
}

// List returns integrations across owners, for operators.
func (s *IntegrationService) List(ctx context.Context, filter repository.IntegrationFilter) ([]models.Integration, int64, error) {
	return s.integrations.List(ctx, filter)
}

// ValidateCredentials checks a client id and secret pair without any route
// requirement. It returns nil for wrong credentials and inactive integrations.
func (s *IntegrationService) ValidateCredentials(ctx context.Context, clientID, clientSecret string) (*models.Integration, error) {
	v, err := s.gate.Evaluate(ctx, gate.Request{ClientID: clientID, ClientSecret: clientSecret})
	if err != nil {
		return nil, err
	}
	if !v.Allowed {
		return nil, nil
	}
	return v.Integration, nil
}

// save stores next and copies it into i once the write succeeded.
func (s *IntegrationService) save(ctx context.Context, i *models.Integration, next models.Integration, changed ...string) ([]events.Event, error) {
	if err := s.validate(&next); err != nil {
		return nil, err
	}
	if err := s.integrations.Update(ctx, &next); err != nil {
		return nil, fmt.Errorf("update integration: %w", err)
	}
	*i = next
	e := events.New(events.IntegrationUpdated, i.ID, s.cfg.Now(), map[string]any{"changed": changed})
	return []events.Event{e}, nil
}

// validate enforces the write-time rules: model constraints, absolute
// redirect URIs, catalog membership and well formed restriction blocks.
func (s *IntegrationService) validate(i *models.Integration) error {
	if err := i.Validate(); err != nil {
		return err
	}
	for _, uri := range i.RedirectURIs {
		if !models.IsAbsoluteURL(uri) {
			return fmt.Errorf("%w: %q", ErrInvalidRedirectURI, uri)
		}
	}

	catalog := s.cfg.Catalog()
	if err := catalog.ValidateRole(i.RoleValue()); err != nil {
		return err
	}
	if err := catalog.ValidatePermissions(i.GetPermissions()); err != nil {
		return err
	}
	if err := catalog.ValidateScopes(i.AllowedScopes); err != nil {
		return err
	}
	if err := catalog.ValidateScopes(i.DefaultScopes); err != nil {
		return err
	}

	wl := i.IPWhitelist.Data()
	for _, list := range [][]string{wl.AllowedIPs, wl.BlockedIPs} {
		for _, pattern := range list {
			if !restrictions.ValidPattern(pattern) {
				return fmt.Errorf("%w: %q", ErrInvalidIPPattern, pattern)
			}
		}
	}
	if err := i.TimeRestrictions.Data().Validate(); err != nil {
		return err
	}
	for key, raw := range i.RateLimits.Data().ScopeLimits {
		if _, _, ok := ratelimit.ParseCompact(raw).Window(); !ok {
			return fmt.Errorf("%w: %s=%q", ErrInvalidRateLimit, key, raw)
		}
	}
	return nil
}

func (s *IntegrationService) uniqueClientID(ctx context.Context) (string, error) {
	for attempt := 0; attempt < clientIDAttempts; attempt++ {
		candidate, err := RandomToken(s.cfg.ClientIDLength())
		if err != nil {
			return "", err
		}
		exists, err := s.integrations.ClientIDExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check client id: %w", err)
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", ErrClientIDExhausted
}

func pick[T any](override *T, fallback T) T {
	if override != nil {
		return *override
	}
	return fallback
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
