package model

// Business is one row of the shared directory. The directory itself has no
// tenant scope; tenancy applies to the campaigns and collections that
// reference it.
type Business struct {
	Base
	Name        string  `json:"name" db:"name"`
	Email       string  `json:"email" db:"email"`
	City        string  `json:"city" db:"city"`
	Industry    string  `json:"industry" db:"industry"`
	Description *string `json:"description,omitempty" db:"description"`
	Phone       *string `json:"phone,omitempty" db:"phone"`
	Website     *string `json:"website,omitempty" db:"website"`
}
