package access

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownRole       = errors.New("unknown role")
	ErrUnknownPermission = errors.New("unknown permission")
	ErrUnknownScope      = errors.New("unknown scope")
)

// Catalog lists the roles, resource actions and scopes that may be written
// onto an integration. The gate itself never consults it.
type Catalog struct {
	Roles     map[Role]string
	Resources map[string][]string
	Scopes    map[string]string
}

// ValidateRole accepts the empty role (unrestricted) and any catalogued role.
func (c Catalog) ValidateRole(role Role) error {
	if role == "" {
		return nil
	}
	if _, ok := c.Roles[role]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	return nil
}

func (c Catalog) ValidatePermission(resource, action string) error {
	actions, ok := c.Resources[resource]
	if !ok {
		return fmt.Errorf("%w: resource %q", ErrUnknownPermission, resource)
	}
	for _, a := range actions {
		if a == action {
			return nil
		}
	}
	return fmt.Errorf("%w: %s:%s", ErrUnknownPermission, resource, action)
}

func (c Catalog) ValidatePermissions(p PermissionMap) error {
	for _, resource := range p.Resources() {
		for _, action := range p[resource] {
			if err := c.ValidatePermission(resource, action); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c Catalog) ValidateScopes(scopes []string) error {
	for _, s := range scopes {
		if _, ok := c.Scopes[s]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownScope, s)
		}
	}
	return nil
}
