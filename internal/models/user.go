package models

// Role is the storefront a caller acts through.
type Role string

const (
	RoleUser            Role = "user"
	RoleSalesPartner    Role = "sales_partner"
	RoleSolutionPartner Role = "solution_partner"
	RoleDealer          Role = "dealer"
	RoleAdmin           Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleSalesPartner, RoleSolutionPartner, RoleDealer, RoleAdmin:
		return true
	}
	return false
}

// User is the billing profile of an authenticated account.
type User struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Surname  string `json:"surname"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	FCMToken string `json:"-"`
}

func (u User) FullName() string {
	if u.Surname == "" {
		return u.Name
	}
	if u.Name == "" {
		return u.Surname
	}
	return u.Name + " " + u.Surname
}
