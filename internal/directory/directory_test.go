package directory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// newFixture builds a small directory:
//
//	alice  Swin astro (2015) then Monash astro (2018), female student
//	bob    Monash and Swin astro starting on the same day, male
//	carol  UWA physics, ended membership at Swin, female
//	dave   Oxford astro, male
//	erin   Swin astro, not registered on system 2
func newFixture(t *testing.T) *Reader {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open(filepath.Join(t.TempDir(), "directory.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ended := day(2016, time.January, 1)
	rows := []any{
		&Institution{ID: 1, Name: "Swinburne", Country: "AU"},
		&Institution{ID: 2, Name: "Monash", Country: "AU"},
		&Institution{ID: 3, Name: "UWA", Country: "AU"},
		&Institution{ID: 4, Name: "Oxford", Country: "UK"},
		&Department{ID: 6, Name: "CAS", InstitutionID: 1, IsAstronomy: true},
		&Department{ID: 7, Name: "Physics", InstitutionID: 2, IsAstronomy: true},
		&Department{ID: 8, Name: "Physics", InstitutionID: 3},
		&Department{ID: 9, Name: "Astrophysics", InstitutionID: 4, IsAstronomy: true},
		&User{ID: 1, Username: "alice", Gender: 1, IsStudent: true},
		&User{ID: 2, Username: "bob", Gender: 0},
		&User{ID: 3, Username: "carol", Gender: 1},
		&User{ID: 4, Username: "dave", Gender: 0},
		&User{ID: 5, Username: "erin", Gender: 2},
		&UserDepartment{ID: 1, UserID: 1, DepartmentID: 6, StartDate: day(2015, time.March, 1)},
		&UserDepartment{ID: 2, UserID: 1, DepartmentID: 7, StartDate: day(2018, time.March, 1)},
		&UserDepartment{ID: 3, UserID: 2, DepartmentID: 7, StartDate: day(2017, time.June, 1)},
		&UserDepartment{ID: 4, UserID: 2, DepartmentID: 6, StartDate: day(2017, time.June, 1)},
		&UserDepartment{ID: 5, UserID: 3, DepartmentID: 8, StartDate: day(2014, time.June, 1)},
		&UserDepartment{ID: 6, UserID: 3, DepartmentID: 6, StartDate: day(2015, time.June, 1), EndDate: &ended},
		&UserDepartment{ID: 7, UserID: 4, DepartmentID: 9, StartDate: day(2016, time.June, 1)},
		&UserDepartment{ID: 8, UserID: 5, DepartmentID: 6, StartDate: day(2016, time.June, 1)},
		&UserSystem{ID: 1, UserID: 1, SystemID: 2},
		&UserSystem{ID: 2, UserID: 2, SystemID: 2},
		&UserSystem{ID: 3, UserID: 3, SystemID: 2},
		&UserSystem{ID: 4, UserID: 4, SystemID: 2},
		&UserSystem{ID: 5, UserID: 5, SystemID: 1},
		&Project{ID: 1, Code: "oz001", Name: "Galaxies", SystemID: 2},
		&Project{ID: 2, Code: "oz002", Name: "Pulsars", SystemID: 2},
		&Project{ID: 3, Code: "p003", Name: "Legacy", SystemID: 2},
		&Project{ID: 4, Code: "oz900", Name: "Other system", SystemID: 1},
		&UserProject{ID: 1, UserID: 1, ProjectID: 1},
		&UserProject{ID: 2, UserID: 4, ProjectID: 1},
		&UserProject{ID: 3, UserID: 2, ProjectID: 2},
	}
	for _, row := range rows {
		if err := db.Create(row).Error; err != nil {
			t.Fatalf("insert %T: %v", row, err)
		}
	}
	return NewReader(db)
}

func TestResolveInstitution(t *testing.T) {
	tests := []struct {
		name   string
		ms     []Membership
		wantID int64
		wantOK bool
	}{
		{name: "empty"},
		{
			name:   "single",
			ms:     []Membership{{MembershipID: 3, StartDate: day(2017, 1, 1)}},
			wantID: 3, wantOK: true,
		},
		{
			name: "latest start wins",
			ms: []Membership{
				{MembershipID: 9, StartDate: day(2015, 1, 1)},
				{MembershipID: 2, StartDate: day(2018, 1, 1)},
			},
			wantID: 2, wantOK: true,
		},
		{
			name: "tie goes to higher id",
			ms: []Membership{
				{MembershipID: 4, StartDate: day(2017, 6, 1)},
				{MembershipID: 7, StartDate: day(2017, 6, 1)},
				{MembershipID: 5, StartDate: day(2017, 6, 1)},
			},
			wantID: 7, wantOK: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolveInstitution(tt.ms)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got.MembershipID != tt.wantID {
				t.Fatalf("membership = %d, want %d", got.MembershipID, tt.wantID)
			}
		})
	}
}

func TestReaderUsersResolvesInstitution(t *testing.T) {
	r := newFixture(t)
	users, err := r.Users(context.Background(), 2)
	if err != nil {
		t.Fatalf("users: %v", err)
	}
	got := make(map[string]UserInfo, len(users))
	for _, u := range users {
		got[u.Username] = u
	}
	if len(got) != 4 {
		t.Fatalf("users = %d, want 4: %+v", len(got), users)
	}
	want := map[string]string{
		"alice": "Monash",
		"bob":   "Swinburne",
		"carol": "UWA",
		"dave":  "Oxford",
	}
	for name, inst := range want {
		if got[name].Institution != inst {
			t.Errorf("%s institution = %q, want %q", name, got[name].Institution, inst)
		}
	}
	if !got["alice"].IsStudent || got["alice"].Gender != 1 {
		t.Errorf("alice = %+v", got["alice"])
	}
	if got["dave"].National() || !got["carol"].National() {
		t.Errorf("national flags wrong: dave=%v carol=%v", got["dave"].National(), got["carol"].National())
	}
}

func TestReaderCountUsers(t *testing.T) {
	r := newFixture(t)
	ctx := context.Background()
	tests := []struct {
		name string
		q    UserQuery
		want int64
	}{
		{name: "all", q: UserQuery{SystemID: 2}, want: 4},
		{name: "astronomy", q: UserQuery{SystemID: 2, Filters: []Filter{Eq("is_astronomy", true)}}, want: 3},
		{name: "female astronomy", q: UserQuery{SystemID: 2, Filters: []Filter{Eq("is_astronomy", true), Eq("gender", 1)}}, want: 1},
		{name: "students", q: UserQuery{SystemID: 2, Filters: []Filter{Eq("is_student", true)}}, want: 1},
		{name: "home department", q: UserQuery{SystemID: 2, Filters: []Filter{Eq("department_id", 6)}}, want: 2},
		{name: "country", q: UserQuery{SystemID: 2, Filters: []Filter{Eq("country", "UK")}}, want: 1},
		{name: "other system", q: UserQuery{SystemID: 1}, want: 1},
		{
			name: "limited to usernames",
			q:    UserQuery{SystemID: 2, Usernames: []string{"alice", "dave", "nobody"}, LimitToUsernames: true},
			want: 2,
		},
		{name: "empty username limit", q: UserQuery{SystemID: 2, LimitToUsernames: true}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.CountUsers(ctx, tt.q)
			if err != nil {
				t.Fatalf("count: %v", err)
			}
			if got != tt.want {
				t.Fatalf("count = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestReaderCountUsersRejectsUnknownField(t *testing.T) {
	r := newFixture(t)
	_, err := r.CountUsers(context.Background(), UserQuery{
		SystemID: 2,
		Filters:  []Filter{Eq("1=1 OR username", "x")},
	})
	if err == nil {
		t.Fatal("expected error for unknown filter field")
	}
}

func TestReaderFilterValueIsBound(t *testing.T) {
	r := newFixture(t)
	n, err := r.CountUsers(context.Background(), UserQuery{
		SystemID: 2,
		Filters:  []Filter{Eq("country", "AU' OR '1'='1")},
	})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("count = %d, want 0", n)
	}
}

func TestReaderProjects(t *testing.T) {
	r := newFixture(t)
	ctx := context.Background()

	all, err := r.Projects(ctx, 2, "")
	if err != nil {
		t.Fatalf("projects: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("projects = %d, want 3", len(all))
	}
	oz, err := r.Projects(ctx, 2, "oz")
	if err != nil {
		t.Fatalf("projects: %v", err)
	}
	if len(oz) != 2 || oz[0].Code != "oz001" || oz[1].Code != "oz002" {
		t.Fatalf("oz projects = %+v", oz)
	}
}

func TestReaderProjectMembers(t *testing.T) {
	r := newFixture(t)
	members, err := r.ProjectMembers(context.Background(), 2)
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	want := []ProjectMember{
		{ProjectID: 1, ProjectCode: "oz001", Username: "alice"},
		{ProjectID: 1, ProjectCode: "oz001", Username: "dave"},
		{ProjectID: 2, ProjectCode: "oz002", Username: "bob"},
	}
	if len(members) != len(want) {
		t.Fatalf("members = %+v", members)
	}
	for i := range want {
		if members[i] != want[i] {
			t.Errorf("member %d = %+v, want %+v", i, members[i], want[i])
		}
	}
}

func TestReaderAstronomersByInstitution(t *testing.T) {
	r := newFixture(t)
	got, err := r.AstronomersByInstitution(context.Background(), 2)
	if err != nil {
		t.Fatalf("astronomers: %v", err)
	}
	want := []InstitutionCount{
		{Institution: "Monash", Users: 1},
		{Institution: "Oxford", Users: 1},
		{Institution: "Swinburne", Users: 1},
	}
	if len(got) != len(want) {
		t.Fatalf("astronomers = %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("row %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}
