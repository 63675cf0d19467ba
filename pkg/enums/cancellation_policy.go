package enums

import "fmt"

// CancellationPolicy controls the refund schedule applied when a renter cancels.
type CancellationPolicy string

const (
	CancellationPolicyFlexible    CancellationPolicy = "flexible"
	CancellationPolicyModerate    CancellationPolicy = "moderate"
	CancellationPolicyStrict      CancellationPolicy = "strict"
	CancellationPolicySuperStrict CancellationPolicy = "super_strict"
)

var validCancellationPolicies = []CancellationPolicy{
	CancellationPolicyFlexible,
	CancellationPolicyModerate,
	CancellationPolicyStrict,
	CancellationPolicySuperStrict,
}

// String implements fmt.Stringer.
func (c CancellationPolicy) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CancellationPolicy.
func (c CancellationPolicy) IsValid() bool {
	for _, candidate := range validCancellationPolicies {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCancellationPolicy converts raw input into a CancellationPolicy.
func ParseCancellationPolicy(value string) (CancellationPolicy, error) {
	for _, candidate := range validCancellationPolicies {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cancellation policy %q", value)
}
