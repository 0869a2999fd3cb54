package domain

type Role string

const (
	RoleClient  Role = "CLIENT"
	RoleArtist  Role = "ARTIST"
	RolePrinter Role = "PRINTER"
	RoleAdmin   Role = "ADMIN"
)

type User struct {
	ID          string `json:"id"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Role        Role   `json:"role"`
}

func (u *User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Caller is the authenticated identity on whose behalf an operation runs.
type Caller struct {
	ID   string
	Role Role
}

func (c Caller) IsAdmin() bool   { return c.Role == RoleAdmin }
func (c Caller) IsPrinter() bool { return c.Role == RolePrinter }

// SystemActorID is recorded as the actor of transitions no user initiated,
// such as provider payment confirmations.
const SystemActorID = "system"
