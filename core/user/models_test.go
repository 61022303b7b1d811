package user

import (
	"errors"
	"testing"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"admin", RoleAdmin, false},
		{" Teacher ", RoleTeacher, false},
		{"MANAGEMENT", RoleManagement, false},
		{"janitor", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseRole(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseRole(%q) = %q, %v; want %q, err %v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestRole_Outranks(t *testing.T) {
	tests := []struct {
		r, other Role
		want     bool
	}{
		{RoleAdmin, RoleManagement, true},
		{RoleManagement, RoleTeacher, true},
		{RoleTeacher, RoleStudent, true},
		{RoleTeacher, RoleTeacher, false},
		{RoleStudent, RoleAdmin, false},
		{RoleStudent, "janitor", true},
		{"janitor", RoleStudent, false},
	}
	for _, tt := range tests {
		if got := tt.r.Outranks(tt.other); got != tt.want {
			t.Errorf("%s.Outranks(%s) = %v; want %v", tt.r, tt.other, got, tt.want)
		}
	}
}

func TestProfile_DisplayName(t *testing.T) {
	tests := []struct {
		p    Profile
		want string
	}{
		{Profile{Name: "Ann", Email: "ann@school.io"}, "Ann"},
		{Profile{Email: "ann@school.io"}, "ann"},
		{Profile{Email: "@school.io"}, "@school.io"},
		{Profile{}, ""},
	}
	for _, tt := range tests {
		if got := tt.p.DisplayName(); got != tt.want {
			t.Errorf("DisplayName() = %q; want %q", got, tt.want)
		}
	}
}

func TestFilter(t *testing.T) {
	p := Profile{Role: RoleTeacher, Status: StatusActive, SchoolID: "s1", Email: "t@school.io"}
	s := Student{Status: StatusPending, SchoolID: "s1", Email: "k@school.io"}

	tests := []struct {
		name        string
		filter      Filter
		wantErr     bool
		wantProfile bool
		wantStudent bool
	}{
		{"everything", Filter{}, false, true, true},
		{"role", RoleFilter(RoleTeacher), false, true, false},
		{"other role", RoleFilter(RoleAdmin), false, false, false},
		{"status", Filter{Field: FieldStatus, Value: "pending"}, false, false, true},
		{"school", Filter{Field: FieldSchoolID, Value: "s1"}, false, true, true},
		{"email", Filter{Field: FieldEmail, Value: "k@school.io"}, false, false, true},
		{"unknown field", Filter{Field: "name", Value: "Ann"}, true, false, false},
		{"unknown role", Filter{Field: FieldRole, Value: "janitor"}, true, false, false},
		{"unknown status", Filter{Field: FieldStatus, Value: "banned"}, true, false, false},
		{"negative limit", Filter{Limit: -1}, true, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.filter.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v; wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidFilter) {
				t.Errorf("Validate() error = %v; want ErrInvalidFilter", err)
			}
			if got := tt.filter.Matches(p); got != tt.wantProfile {
				t.Errorf("Matches() = %v; want %v", got, tt.wantProfile)
			}
			if got := tt.filter.MatchesStudent(s); got != tt.wantStudent {
				t.Errorf("MatchesStudent() = %v; want %v", got, tt.wantStudent)
			}
		})
	}
}

func TestUpdateProfile(t *testing.T) {
	name, blank := "  Ann ", "   "
	pending, unknown := StatusPending, Status("banned")
	school, untrimmed := "s2", " s3 "

	tests := []struct {
		name    string
		uu      UpdateProfile
		wantErr bool
		want    Profile
	}{
		{"empty", UpdateProfile{}, false, Profile{Name: "Old", Status: StatusActive}},
		{"rename", UpdateProfile{Name: &name}, false, Profile{Name: "Ann", Status: StatusActive}},
		{"blank name", UpdateProfile{Name: &blank}, true, Profile{}},
		{"status", UpdateProfile{Status: &pending}, false, Profile{Name: "Old", Status: StatusPending}},
		{"unknown status", UpdateProfile{Status: &unknown}, true, Profile{}},
		{"school", UpdateProfile{SchoolID: &school}, false, Profile{Name: "Old", Status: StatusActive, SchoolID: "s2"}},
		{"untrimmed school", UpdateProfile{SchoolID: &untrimmed}, false, Profile{Name: "Old", Status: StatusActive, SchoolID: "s3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uu := tt.uu
			err := uu.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v; wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			p := Profile{Name: "Old", Status: StatusActive}
			uu.Apply(&p)
			if p != tt.want {
				t.Errorf("Apply() = %+v; want %+v", p, tt.want)
			}
		})
	}
}

func TestUpdateProfile_NameOnly(t *testing.T) {
	name, subject, roll := "Ann", "Maths", "R1"
	tests := []struct {
		name string
		uu   UpdateProfile
		want bool
	}{
		{"empty", UpdateProfile{}, true},
		{"name", UpdateProfile{Name: &name}, true},
		{"subject", UpdateProfile{Name: &name, Subject: &subject}, false},
		{"roll number", UpdateProfile{RollNumber: &roll}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.uu.NameOnly(); got != tt.want {
				t.Errorf("NameOnly() = %v; want %v", got, tt.want)
			}
		})
	}
}

func TestProfile_ManagesSchool(t *testing.T) {
	tests := []struct {
		name     string
		p        Profile
		schoolID string
		want     bool
	}{
		{"admin, any school", Profile{Role: RoleAdmin}, "s2", true},
		{"same school", Profile{Role: RoleManagement, SchoolID: "s1"}, "s1", true},
		{"other school", Profile{Role: RoleManagement, SchoolID: "s1"}, "s2", false},
		{"no school", Profile{Role: RoleManagement}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.ManagesSchool(tt.schoolID); got != tt.want {
				t.Errorf("ManagesSchool(%q) = %v; want %v", tt.schoolID, got, tt.want)
			}
		})
	}
}

func TestValidPassword(t *testing.T) {
	tests := map[string]bool{
		"":        false,
		"abcde":   false,
		"abcdef":  true,
		"ééééé":   false, // 10 bytes, 5 characters
		"éééééé":  true,
		"      ":  true,
		"secret1": true,
	}
	for pwd, want := range tests {
		if got := ValidPassword(pwd); got != want {
			t.Errorf("ValidPassword(%q) = %v; want %v", pwd, got, want)
		}
	}
}
