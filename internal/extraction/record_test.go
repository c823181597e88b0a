package extraction

import "testing"

func TestNormalize_FillsNilSlices(t *testing.T) {
	r := Normalize(Record{})

	if r.Experience == nil || len(r.Experience) != 0 {
		t.Errorf("Experience = %#v, want non-nil empty slice", r.Experience)
	}
	if r.Skills.Technical == nil || r.Skills.Soft == nil || r.Skills.Languages == nil {
		t.Errorf("Skills = %#v, want every field non-nil", r.Skills)
	}
	if r.Education == nil || len(r.Education) != 0 {
		t.Errorf("Education = %#v, want non-nil empty slice", r.Education)
	}
	if r.Projects == nil || len(r.Projects) != 0 {
		t.Errorf("Projects = %#v, want non-nil empty slice", r.Projects)
	}
	if r.Certifications == nil || len(r.Certifications) != 0 {
		t.Errorf("Certifications = %#v, want non-nil empty slice", r.Certifications)
	}
}

func TestNormalize_FillsNestedAchievementSlices(t *testing.T) {
	r := Normalize(Record{
		Experience: []Experience{{Company: "Analytical Engines Inc"}},
		Education:  []Education{{Institution: "Cambridge"}},
		Projects:   []Project{{Name: "Difference Engine"}},
	})

	if r.Experience[0].Achievements == nil {
		t.Error("Experience[0].Achievements should be non-nil")
	}
	if r.Education[0].Achievements == nil {
		t.Error("Education[0].Achievements should be non-nil")
	}
	if r.Projects[0].Technologies == nil {
		t.Error("Projects[0].Technologies should be non-nil")
	}
}

func TestNormalize_IsIdempotent(t *testing.T) {
	once := Normalize(Record{Skills: Skills{Technical: []string{"go"}}})
	twice := Normalize(once)

	if len(twice.Skills.Technical) != 1 || twice.Skills.Technical[0] != "go" {
		t.Errorf("second Normalize changed Skills.Technical: %#v", twice.Skills.Technical)
	}
	if len(twice.Experience) != 0 {
		t.Errorf("second Normalize changed Experience: %#v", twice.Experience)
	}
}

func TestNormalize_PreservesPopulatedFields(t *testing.T) {
	r := Normalize(Record{
		PersonalInfo: PersonalInfo{Name: "Ada Lovelace"},
		Experience:   []Experience{{Company: "Analytical Engines Inc"}},
	})

	if r.PersonalInfo.Name != "Ada Lovelace" {
		t.Errorf("PersonalInfo.Name = %q, want preserved", r.PersonalInfo.Name)
	}
	if len(r.Experience) != 1 || r.Experience[0].Company != "Analytical Engines Inc" {
		t.Errorf("Experience = %#v, want preserved single entry", r.Experience)
	}
}
