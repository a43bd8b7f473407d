package constants

import roles "cellar-backend/internal/pkg/constants"

// PermissionRoles maps each permission to the house roles allowed to perform it.
var PermissionRoles = map[string][]string{
	ViewCellar:   {roles.Viewer, roles.Editor, roles.Owner},
	EditCellar:   {roles.Editor, roles.Owner},
	ImportCellar: {roles.Editor, roles.Owner},
	DeleteWine:   {roles.Editor, roles.Owner},
}

// AllowedRole returns true if role is in the list of allowed roles for the permission.
func AllowedRole(permission, role string) bool {
	allowed, ok := PermissionRoles[permission]
	if !ok {
		return false
	}
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}
