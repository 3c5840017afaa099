package models

// Role is one entry in the role registry. The registry as a whole is the
// set of rows; Name is unique and case-preserved.
type Role struct {
	BaseModel
	Name string `json:"name" gorm:"type:varchar(50);uniqueIndex;not null"`
}

func (Role) TableName() string {
	return "roles"
}

// DefaultRoles seeds the registry when it is empty.
var DefaultRoles = []string{RoleAdmin, RoleUser, "quality"}
