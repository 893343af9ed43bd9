package domain

// Role is the account role carried by an authenticated caller.
type Role string

const (
	RoleUser   Role = "user"
	RoleRider  Role = "rider"
	RoleDriver Role = "driver"
	RoleAdmin  Role = "admin"
	RoleSystem Role = "system"
)

// Actor identifies who is invoking an operation.
type Actor struct {
	UserID string
	Role   Role
	Email  string
}

// SystemActor is used by schedulers and operator tooling.
var SystemActor = Actor{UserID: "system", Role: RoleSystem}
