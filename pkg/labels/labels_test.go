package labels

import (
	"strings"
	"testing"
)

func TestDefaultRegistryLoads(t *testing.T) {
	r, err := Default()
	if err != nil {
		t.Fatalf("failed to load default registry: %v", err)
	}

	want := []string{CancerRoute, CancerStandard, CancerType, CommunityAdult, CommunityCYP, TreatmentModality}
	got := r.Names()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Names() = %v, want %v", got, want)
	}

	again, _ := Default()
	if again != r {
		t.Error("Default() should return the same registry on every call")
	}

	if _, err := r.Map("nope"); err == nil {
		t.Error("expected error for unknown map")
	}
}

func TestNormalizeMapped(t *testing.T) {
	r := MustDefault()
	adult := r.MustMap(CommunityAdult)
	cyp := r.MustMap(CommunityCYP)

	tests := []struct {
		name string
		raw  string
		m    *LabelMap
		want string
	}{
		{"exact", "Audiology", adult, "audiology"},
		{"surrounding whitespace", "  Physiotherapy \t", adult, "physiotherapy"},
		{"case and inner whitespace", "speech  and LANGUAGE therapy", adult, "speech_language_therapy"},
		{"adult prefix", "(A) Podiatry and podiatric surgery", adult, "podiatry"},
		{"cyp prefix", "(CYP)   Community paediatric service", cyp, "community_paediatrics"},
		{"alias", "MSK service", adult, "msk_service"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Normalize(tt.raw, tt.m)
			if !res.Mapped {
				t.Fatalf("Normalize(%q) not mapped, fallback %q", tt.raw, res.Key)
			}
			if res.Key != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.raw, res.Key, tt.want)
			}
		})
	}
}

func TestNormalizeOtherFamilyPrefixIsNotStripped(t *testing.T) {
	adult := MustDefault().MustMap(CommunityAdult)

	res := Normalize("(CYP) Audiology", adult)
	if res.Mapped {
		t.Fatalf("a (CYP) label must not map into the adult dictionary, got %q", res.Key)
	}
	if res.Key != "cyp_audiology" {
		t.Errorf("fallback key = %q, want cyp_audiology", res.Key)
	}
}

func TestClassify(t *testing.T) {
	r := MustDefault()
	adult := r.MustMap(CommunityAdult)
	cyp := r.MustMap(CommunityCYP)

	idx, res := Classify("(CYP) School nursing", adult, cyp)
	if idx != 1 || res.Key != "school_nursing" {
		t.Errorf("Classify = %d %q, want 1 school_nursing", idx, res.Key)
	}

	idx, res = Classify("(A) Falls services", adult, cyp)
	if idx != 0 || res.Key != "falls_services" {
		t.Errorf("Classify = %d %q, want 0 falls_services", idx, res.Key)
	}

	idx, res = Classify("Totally unknown service", adult, cyp)
	if idx != -1 || res.Mapped {
		t.Errorf("Classify unknown = %d %+v, want -1 unmapped", idx, res)
	}
}

func TestSlug(t *testing.T) {
	tests := map[string]string{
		"Café Services":           "cafe_services",
		"  Head & Neck  ":         "head_neck",
		"(A) Other -- misc.":      "a_other_misc",
		"62-Day":                  "62_day",
		"already_snake_case":      "already_snake_case",
		"":                        "",
		"!!!":                     "",
		"Children’s (age 0–18)":   "children_s_age_0_18",
		"Wheelchair, orthotics ": "wheelchair_orthotics",
	}

	for in, want := range tests {
		if got := Slug(in); got != want {
			t.Errorf("Slug(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStandardWeights(t *testing.T) {
	m := MustDefault().MustMap(CancerStandard)

	want := map[string]float64{"fds_28_day": 0.2, "dds_31_day": 0.3, "pathway_62_day": 0.5}
	for key, w := range want {
		got, ok := m.Weight(key)
		if !ok || got != w {
			t.Errorf("Weight(%s) = %v,%v want %v", key, got, ok, w)
		}
	}

	if key, ok := m.Lookup("62 Day"); !ok || key != "pathway_62_day" {
		t.Errorf("Lookup(62 Day) = %q,%v", key, ok)
	}
}

func TestParseLabelMapValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing name", "entries: [{label: A, key: a}]"},
		{"duplicate key", "name: x\nentries: [{label: A, key: a}, {label: B, key: a}]"},
		{"label on two keys", "name: x\nentries: [{label: A, key: a}, {label: B, key: b, aliases: [a]}]"},
		{"missing key", "name: x\nentries: [{label: A}]"},
		{"bad yaml", "name: [x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseLabelMap([]byte(tt.yaml)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestNewRegistryRejectsDuplicateNames(t *testing.T) {
	src := map[string][]byte{
		"a.yaml": []byte("name: dup\nentries: [{label: A, key: a}]"),
		"b.yaml": []byte("name: dup\nentries: [{label: B, key: b}]"),
	}
	if _, err := NewRegistry(src); err == nil {
		t.Error("expected duplicate map name error")
	}
}
