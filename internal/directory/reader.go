package directory

import (
	"context"
	"fmt"
	"sort"

	"gorm.io/gorm"
)

// Filterable fields and the columns they map to. Filter fields outside this
// set are rejected; values are always bound.
var filterColumns = map[string]string{
	"is_astronomy":  "d.is_astronomy",
	"gender":        "u.gender",
	"is_student":    "u.is_student",
	"department_id": "ud.department_id",
	"country":       "i.country",
}

// Filter is one equality condition on a directory user.
type Filter struct {
	Field string
	Value any
}

func Eq(field string, value any) Filter { return Filter{Field: field, Value: value} }

// UserQuery selects directory users with an active membership on SystemID.
// When LimitToUsernames is set only the listed usernames are considered.
type UserQuery struct {
	SystemID         int
	Filters          []Filter
	Usernames        []string
	LimitToUsernames bool
}

// ProjectMember links a project to one of its users.
type ProjectMember struct {
	ProjectID   int64
	ProjectCode string
	Username    string
}

// InstitutionCount is a number of users attached to an institution.
type InstitutionCount struct {
	Institution string
	Users       int64
}

// Reader reads the directory schema. It never writes.
type Reader struct {
	db *gorm.DB
}

func NewReader(db *gorm.DB) *Reader {
	return &Reader{db: db}
}

func (r *Reader) memberships(ctx context.Context, systemID int) *gorm.DB {
	onSystem := r.db.Table("gum_usersystem").Select("user_id").Where("system_id = ?", systemID)
	return r.db.WithContext(ctx).
		Table("gum_userdepartment AS ud").
		Joins("JOIN gum_user AS u ON u.id = ud.user_id").
		Joins("JOIN gum_department AS d ON d.id = ud.department_id").
		Joins("JOIN gum_institution AS i ON i.id = d.institution_id").
		Where("ud.end_date IS NULL").
		Where("u.id IN (?)", onSystem)
}

// Memberships returns every active membership of users on the system.
func (r *Reader) Memberships(ctx context.Context, systemID int) ([]Membership, error) {
	var rows []Membership
	err := r.memberships(ctx, systemID).
		Select(`ud.id AS membership_id, u.id AS user_id, u.username, u.first_name, u.last_name,
			u.gender, u.is_student, d.id AS department_id, d.name AS department_name,
			d.is_astronomy, i.id AS institution_id, i.name AS institution_name, i.country,
			ud.start_date`).
		Order("ud.id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("directory: load memberships: %w", err)
	}
	return rows, nil
}

// Users returns one entry per user on the system, affiliated with the
// institution chosen by ResolveInstitution.
func (r *Reader) Users(ctx context.Context, systemID int) ([]UserInfo, error) {
	ms, err := r.Memberships(ctx, systemID)
	if err != nil {
		return nil, err
	}
	return resolveUsers(ms), nil
}

// CountUsers counts distinct users matching every filter in q.
func (r *Reader) CountUsers(ctx context.Context, q UserQuery) (int64, error) {
	if q.LimitToUsernames && len(q.Usernames) == 0 {
		return 0, nil
	}
	tx := r.memberships(ctx, q.SystemID)
	for _, f := range q.Filters {
		col, ok := filterColumns[f.Field]
		if !ok {
			return 0, fmt.Errorf("directory: unknown filter field %q", f.Field)
		}
		tx = tx.Where(col+" = ?", f.Value)
	}
	if q.LimitToUsernames {
		tx = tx.Where("u.username IN ?", q.Usernames)
	}
	var n int64
	if err := tx.Distinct("u.id").Count(&n).Error; err != nil {
		return 0, fmt.Errorf("directory: count users: %w", err)
	}
	return n, nil
}

// Projects returns the system's projects ordered by code, optionally limited
// to codes starting with prefix.
func (r *Reader) Projects(ctx context.Context, systemID int, prefix string) ([]Project, error) {
	tx := r.db.WithContext(ctx).Where("system_id = ?", systemID)
	if prefix != "" {
		tx = tx.Where("code LIKE ?", prefix+"%")
	}
	var projects []Project
	if err := tx.Order("code").Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("directory: list projects: %w", err)
	}
	return projects, nil
}

func (r *Reader) ProjectMembers(ctx context.Context, systemID int) ([]ProjectMember, error) {
	var rows []ProjectMember
	err := r.db.WithContext(ctx).
		Table("gum_project AS p").
		Select("p.id AS project_id, p.code AS project_code, u.username").
		Joins("JOIN gum_userproject AS up ON up.project_id = p.id").
		Joins("JOIN gum_user AS u ON u.id = up.user_id").
		Where("p.system_id = ?", systemID).
		Order("p.code, up.id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("directory: load project members: %w", err)
	}
	return rows, nil
}

// AstronomersByInstitution counts users of astronomy departments per resolved
// institution, largest first.
func (r *Reader) AstronomersByInstitution(ctx context.Context, systemID int) ([]InstitutionCount, error) {
	ms, err := r.Memberships(ctx, systemID)
	if err != nil {
		return nil, err
	}
	astro := ms[:0:0]
	for _, m := range ms {
		if m.IsAstronomy {
			astro = append(astro, m)
		}
	}
	counts := make(map[string]int64)
	for _, u := range resolveUsers(astro) {
		counts[u.Institution]++
	}
	out := make([]InstitutionCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, InstitutionCount{Institution: name, Users: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Users != out[j].Users {
			return out[i].Users > out[j].Users
		}
		return out[i].Institution < out[j].Institution
	})
	return out, nil
}
