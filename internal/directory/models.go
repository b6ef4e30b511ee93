package directory

import "time"

// Reference schema of the user directory. Read only.

type User struct {
	ID           int64
	Username     string
	FirstName    string
	LastName     string
	EmailAddress string
	Gender       int
	IsStudent    bool
}

func (User) TableName() string { return "gum_user" }

type Institution struct {
	ID      int64
	Name    string
	Country string
}

func (Institution) TableName() string { return "gum_institution" }

type Department struct {
	ID            int64
	Name          string
	InstitutionID int64
	IsAstronomy   bool
}

func (Department) TableName() string { return "gum_department" }

// UserDepartment is a membership; a nil EndDate means it is still active.
type UserDepartment struct {
	ID           int64
	UserID       int64
	DepartmentID int64
	StartDate    time.Time
	EndDate      *time.Time
}

func (UserDepartment) TableName() string { return "gum_userdepartment" }

type UserSystem struct {
	ID       int64
	UserID   int64
	SystemID int
}

func (UserSystem) TableName() string { return "gum_usersystem" }

type Project struct {
	ID                   int64
	Code                 string
	Name                 string
	SystemID             int
	ProjectAdministrator int64
}

func (Project) TableName() string { return "gum_project" }

type UserProject struct {
	ID        int64
	UserID    int64
	ProjectID int64
}

func (UserProject) TableName() string { return "gum_userproject" }

// Models lists every table the reader touches, for fixtures and migrations.
func Models() []any {
	return []any{
		&User{}, &Institution{}, &Department{}, &UserDepartment{},
		&UserSystem{}, &Project{}, &UserProject{},
	}
}
