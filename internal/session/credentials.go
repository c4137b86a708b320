package session

import (
	"golang.org/x/oauth2"
)

// Role is an ERP user role.
type Role string

const (
	RoleAdmin          Role = "ADMIN"
	RoleAdministrativo Role = "ADMINISTRATIVO"
	RoleSupervisor     Role = "SUPERVISOR"
	RoleChofer         Role = "CHOFER"
	RoleOperador       Role = "OPERADOR"
)

// User is the identity record returned by the ERP on login and refresh.
type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	LastName  string `json:"lastName"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
	Roles     []Role `json:"roles"`
}

// HasRole reports whether the user holds the given role.
func (u *User) HasRole(role Role) bool {
	if u == nil {
		return false
	}
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Credentials is a snapshot of the session. Empty strings and a nil User
// mean absent. IsAuthenticated is true iff both tokens are present.
type Credentials struct {
	AccessToken     string
	RefreshToken    string
	User            *User
	IsAuthenticated bool
}

// Empty reports whether the snapshot carries no session data at all.
func (c Credentials) Empty() bool {
	return c.AccessToken == "" && c.RefreshToken == "" && c.User == nil && !c.IsAuthenticated
}

// OAuth2Token converts the snapshot to an oauth2.Token for header attachment.
// Expiry is taken from the access token's exp claim when it is a JWT.
// Returns nil when no access token is held.
func (c Credentials) OAuth2Token() *oauth2.Token {
	if c.AccessToken == "" {
		return nil
	}

	tok := &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    "Bearer",
	}
	if claims, err := ParseAccessClaims(c.AccessToken); err == nil {
		tok.Expiry = claims.ExpiresAt
	}
	return tok
}

func cloneUser(u *User) *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Roles = append([]Role(nil), u.Roles...)
	return &c
}
