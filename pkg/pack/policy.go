package pack

import "fmt"

// Policy decides what happens when a key being written already exists.
type Policy string

const (
	// PolicyFail aborts the batch holding the duplicate.
	PolicyFail Policy = "fail"
	// PolicySkip keeps the stored value and drops the new one.
	PolicySkip Policy = "skip"
	// PolicyOverwrite replaces the stored value.
	PolicyOverwrite Policy = "overwrite"
)

// DefaultPolicy is used when none is configured.
const DefaultPolicy = PolicyFail

// ParsePolicy parses a policy name; an empty name yields DefaultPolicy.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case "":
		return DefaultPolicy, nil
	case PolicyFail, PolicySkip, PolicyOverwrite:
		return p, nil
	default:
		return "", fmt.Errorf("unknown duplicate policy %q (want fail, skip or overwrite)", s)
	}
}
