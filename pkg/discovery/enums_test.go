package discovery

import "testing"

func TestStatusFlag_String(t *testing.T) {
	tests := []struct {
		sf   StatusFlag
		want string
	}{
		{0, "Paired"},
		{StatusNotPaired, "NotPaired"},
		{StatusNotPaired | StatusProblemDetected, "NotPaired|ProblemDetected"},
		{StatusNotConfiguredForWiFi | 0x10, "NotConfiguredForWiFi|0x10"},
	}

	for _, tt := range tests {
		if got := tt.sf.String(); got != tt.want {
			t.Errorf("StatusFlag(%d).String() = %q, want %q", tt.sf, got, tt.want)
		}
	}
}

func TestStatusFlag_Has(t *testing.T) {
	sf := StatusNotPaired | StatusProblemDetected
	if !sf.Has(StatusNotPaired) {
		t.Error("Has(NotPaired) = false, want true")
	}
	if sf.Has(StatusNotConfiguredForWiFi) {
		t.Error("Has(NotConfiguredForWiFi) = true, want false")
	}
}

func TestCategory(t *testing.T) {
	if CategoryLightbulb.String() != "Lightbulb" {
		t.Errorf("String() = %q, want Lightbulb", CategoryLightbulb.String())
	}
	if Category(99).String() != "Category(99)" {
		t.Errorf("String() = %q, want Category(99)", Category(99).String())
	}
	if !CategoryBridge.IsValid() {
		t.Error("Bridge should be valid")
	}
	if Category(0).IsValid() {
		t.Error("0 should not be valid")
	}
}
