package core

import "testing"

func TestVerdict_String(t *testing.T) {
	tests := []struct {
		verdict  Verdict
		expected string
	}{
		{VerdictPending, "Pending"},
		{VerdictPassed, "Passed"},
		{VerdictFailed, "Failed"},
		{VerdictInvalid, "Invalid"},
		{VerdictSysCrash, "System Crash"},
		{VerdictAppCrash, "App Crash"},
		{VerdictNotExisting, "Not Exists!"},
		{VerdictWrongVersion, "Version Mismatched"},
		{Verdict(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.verdict.String(); got != tt.expected {
			t.Errorf("Verdict(%d).String() = %q, want %q", tt.verdict, got, tt.expected)
		}
	}
}

func TestVerdict_IsSuccess(t *testing.T) {
	failures := []Verdict{VerdictPending, VerdictFailed, VerdictInvalid, VerdictSysCrash,
		VerdictAppCrash, VerdictNotExisting, VerdictWrongVersion}

	if !VerdictPassed.IsSuccess() {
		t.Error("VerdictPassed.IsSuccess() = false, want true")
	}
	for _, v := range failures {
		if v.IsSuccess() {
			t.Errorf("Verdict(%s).IsSuccess() = true, want false", v)
		}
	}
}

func TestVerdict_IsTerminal(t *testing.T) {
	if VerdictPending.IsTerminal() {
		t.Error("VerdictPending.IsTerminal() = true")
	}
	if !VerdictAppCrash.IsTerminal() {
		t.Error("VerdictAppCrash.IsTerminal() = false")
	}
}

func TestVerdict_NeedsRecovery(t *testing.T) {
	if !VerdictSysCrash.NeedsRecovery() {
		t.Error("VerdictSysCrash.NeedsRecovery() = false")
	}
	if VerdictAppCrash.NeedsRecovery() {
		t.Error("VerdictAppCrash.NeedsRecovery() = true")
	}
}

func TestErrorCategory_String(t *testing.T) {
	tests := []struct {
		category ErrorCategory
		expected string
	}{
		{ErrCategoryNone, "none"},
		{ErrCategoryTrace, "trace"},
		{ErrCategoryDevice, "device"},
		{ErrCategoryApp, "app"},
		{ErrCategoryConfig, "config"},
		{ErrCategoryRecovery, "recovery"},
		{ErrorCategory(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.category.String(); got != tt.expected {
			t.Errorf("ErrorCategory(%d).String() = %q, want %q", tt.category, got, tt.expected)
		}
	}
}

func TestParseVerdict(t *testing.T) {
	for v := VerdictPending; v <= VerdictWrongVersion; v++ {
		if got := ParseVerdict(v.String()); got != v {
			t.Errorf("ParseVerdict(%q) = %v, want %v", v.String(), got, v)
		}
	}
	if got := ParseVerdict("bogus"); got != VerdictPending {
		t.Errorf("ParseVerdict(bogus) = %v", got)
	}
}
