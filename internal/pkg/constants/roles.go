package constants

const (
	Owner  = "owner"
	Editor = "editor"
	Viewer = "viewer"
)

// ValidRoles is the set of allowed values for house_members.role.
var ValidRoles = []string{Viewer, Editor, Owner}

// IsValidRole returns true if role is one of the allowed house roles.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}
