package models

// Roles gate the command routes. Viewers only read status and logs.
const (
	RoleOperator = "operator"
	RoleViewer   = "viewer"
)

type User struct {
	ID           int    `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	Role         string `json:"role"`
}

// Identity is what a bearer token proves about its holder.
type Identity struct {
	UserID int
	Role   string
}

func (i Identity) CanOperate() bool { return i.Role == RoleOperator }
