package models

// Role names are an open set backed by the roles table; only these two are
// built in. "admin" is protected and can never be renamed or deleted.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User is one registered identity. Records created through the admin
// placeholder flow have an empty PasswordHash and cannot log in until the
// real identity registers and claims the record.
type User struct {
	BaseModel
	Email        string `json:"email" gorm:"type:varchar(255);index"`
	PasswordHash string `json:"-" gorm:"type:text;not null;default:''"`
	Role         string `json:"role" gorm:"type:varchar(50);not null;default:'user';index"`
}

func (u *User) DisplayName() string {
	for i := 0; i < len(u.Email); i++ {
		if u.Email[i] == '@' {
			return u.Email[:i]
		}
	}
	return u.Email
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

func (u *User) IsPlaceholder() bool {
	return u.PasswordHash == ""
}
