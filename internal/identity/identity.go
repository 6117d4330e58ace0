// Package identity resolves users and groups for the comment surface: the
// current user, bulk author lookups, and the well-known role groups.
package identity

// User is a resolved directory user.
type User struct {
	ID          string   `json:"id"`
	FirstName   string   `json:"firstName"`
	LastName    string   `json:"lastName"`
	DisplayName string   `json:"displayName"`
	Email       string   `json:"email,omitempty"`
	AvatarURL   string   `json:"avatarUrl"`
	GroupIDs    []string `json:"groupIds,omitempty"`
}

// Group is a named user group.
type Group struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DeletedUser is the synthetic identity rendered for comment authors that no
// longer resolve in the directory. The avatar stays empty.
func DeletedUser() User {
	return User{DisplayName: "Deleted User"}
}
