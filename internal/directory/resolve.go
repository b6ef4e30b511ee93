package directory

import (
	"time"

	"github.com/emanehab99/gstar-stats/internal/core"
)

// Membership is an active department membership joined with its user,
// department and institution.
type Membership struct {
	MembershipID    int64
	UserID          int64
	Username        string
	FirstName       string
	LastName        string
	Gender          int
	IsStudent       bool
	DepartmentID    int64
	DepartmentName  string
	IsAstronomy     bool
	InstitutionID   int64
	InstitutionName string
	Country         string
	StartDate       time.Time
}

// UserInfo is a directory user with the affiliation used for reporting.
type UserInfo struct {
	ID          int64
	Username    string
	FirstName   string
	LastName    string
	Gender      core.Gender
	IsStudent   bool
	IsAstronomy bool
	Institution string
	Country     string
	Department  int64
}

// CountryAU marks national institutions.
const CountryAU = "AU"

func (u UserInfo) National() bool { return u.Country == CountryAU }

// ResolveInstitution picks the reporting affiliation among a user's active
// memberships: the latest start date wins, and equal start dates go to the
// higher membership id.
func ResolveInstitution(ms []Membership) (Membership, bool) {
	if len(ms) == 0 {
		return Membership{}, false
	}
	best := ms[0]
	for _, m := range ms[1:] {
		switch {
		case m.StartDate.After(best.StartDate):
			best = m
		case m.StartDate.Equal(best.StartDate) && m.MembershipID > best.MembershipID:
			best = m
		}
	}
	return best, true
}

// resolveUsers groups memberships by user and resolves each one.
func resolveUsers(ms []Membership) []UserInfo {
	byUser := make(map[int64][]Membership)
	var order []int64
	for _, m := range ms {
		if _, seen := byUser[m.UserID]; !seen {
			order = append(order, m.UserID)
		}
		byUser[m.UserID] = append(byUser[m.UserID], m)
	}
	users := make([]UserInfo, 0, len(order))
	for _, id := range order {
		m, _ := ResolveInstitution(byUser[id])
		users = append(users, UserInfo{
			ID:          m.UserID,
			Username:    m.Username,
			FirstName:   m.FirstName,
			LastName:    m.LastName,
			Gender:      core.Gender(m.Gender),
			IsStudent:   m.IsStudent,
			IsAstronomy: m.IsAstronomy,
			Institution: m.InstitutionName,
			Country:     m.Country,
			Department:  m.DepartmentID,
		})
	}
	return users
}
