package core

// Verdict is the outcome of one replay attempt.
type Verdict int

const (
	VerdictPending      Verdict = iota // Not yet judged
	VerdictPassed                      // Pass rate reached the threshold
	VerdictFailed                      // Pass rate below the threshold
	VerdictInvalid                     // Trace missing, empty or untranslatable
	VerdictSysCrash                    // Device became unresponsive
	VerdictAppCrash                    // Application lost focus
	VerdictNotExisting                 // Package absent and not installable
	VerdictWrongVersion                // Installed build differs from the recorded one
)

// String returns the label written to reports.
func (v Verdict) String() string {
	switch v {
	case VerdictPending:
		return "Pending"
	case VerdictPassed:
		return "Passed"
	case VerdictFailed:
		return "Failed"
	case VerdictInvalid:
		return "Invalid"
	case VerdictSysCrash:
		return "System Crash"
	case VerdictAppCrash:
		return "App Crash"
	case VerdictNotExisting:
		return "Not Exists!"
	case VerdictWrongVersion:
		return "Version Mismatched"
	default:
		return "unknown"
	}
}

// ParseVerdict is the inverse of Verdict.String. Unknown labels yield
// VerdictPending.
func ParseVerdict(s string) Verdict {
	for v := VerdictPassed; v <= VerdictWrongVersion; v++ {
		if v.String() == s {
			return v
		}
	}
	return VerdictPending
}

// IsTerminal returns true once the verdict is final.
func (v Verdict) IsTerminal() bool {
	return v != VerdictPending
}

// IsSuccess returns true only for VerdictPassed.
func (v Verdict) IsSuccess() bool {
	return v == VerdictPassed
}

// NeedsRecovery returns true when the device should be relaunched before the
// next run.
func (v Verdict) NeedsRecovery() bool {
	return v == VerdictSysCrash
}

// ErrorCategory classifies the type of error for better debugging and reporting
type ErrorCategory int

const (
	ErrCategoryNone     ErrorCategory = iota // No error
	ErrCategoryTrace                         // Recording is missing, empty or malformed
	ErrCategoryDevice                        // Device unreachable or command failed
	ErrCategoryApp                           // App crashed or not installed
	ErrCategoryConfig                        // Invalid configuration, missing required field
	ErrCategoryRecovery                      // Device relaunch failed
)

// String returns the string representation of ErrorCategory
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryNone:
		return "none"
	case ErrCategoryTrace:
		return "trace"
	case ErrCategoryDevice:
		return "device"
	case ErrCategoryApp:
		return "app"
	case ErrCategoryConfig:
		return "config"
	case ErrCategoryRecovery:
		return "recovery"
	default:
		return "unknown"
	}
}
