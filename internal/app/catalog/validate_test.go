package catalog

import "testing"

func TestValidateImageID(t *testing.T) {
	if err := ValidateImageID("7b0c2c4e-5a74-4894-9c2d-111111111111"); err != nil {
		t.Fatalf("valid uuid rejected: %v", err)
	}
	for _, bad := range []string{"", "abc", "view_count:x", "7b0c2c4e"} {
		if err := ValidateImageID(bad); err == nil {
			t.Errorf("id %q should be rejected", bad)
		}
	}
}

func TestValidateCategory(t *testing.T) {
	for _, ok := range []string{"nature", "city-life", "all", "b2b"} {
		if err := ValidateCategory(ok); err != nil {
			t.Errorf("category %q rejected: %v", ok, err)
		}
	}
	for _, bad := range []string{"", "-leading", "trailing-", "UPPER", "has space", "x"} {
		if err := ValidateCategory(bad); err == nil {
			t.Errorf("category %q should be rejected", bad)
		}
	}
}

func TestNormalizeKeywords(t *testing.T) {
	got := NormalizeKeywords([]string{" cat ", "cat", "", "dog"})
	if len(got) != 2 || got[0] != "cat" || got[1] != "dog" {
		t.Fatalf("got %v", got)
	}
}
