package types

import "fmt"

// ConfigError reports a bad rule definition. Raised at load, never at evaluate.
type ConfigError struct {
	RuleID string
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	switch {
	case e.RuleID != "" && e.Field != "":
		return fmt.Sprintf("config error: rule %q: %s: %s", e.RuleID, e.Field, e.Reason)
	case e.RuleID != "":
		return fmt.Sprintf("config error: rule %q: %s", e.RuleID, e.Reason)
	default:
		return fmt.Sprintf("config error: %s", e.Reason)
	}
}

// ValidationError reports malformed subject data
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s %s", e.Field, e.Reason)
}

// SnapshotTooLargeError rejects a snapshot whose payload exceeds the limit.
// Callers must summarize the input and retry; payloads are never truncated.
type SnapshotTooLargeError struct {
	TripID string
	Size   int
	Limit  int
}

func (e *SnapshotTooLargeError) Error() string {
	return fmt.Sprintf("snapshot for trip %s is %d bytes, limit is %d", e.TripID, e.Size, e.Limit)
}

// ChainIntegrityError reports a hash-chain mismatch. It requires a manual
// audit and is never repaired automatically.
type ChainIntegrityError struct {
	TripID string
	Key    string
	Reason string
}

func (e *ChainIntegrityError) Error() string {
	return fmt.Sprintf("chain integrity violation for trip %s at %s: %s", e.TripID, e.Key, e.Reason)
}

// AuthorizationError reports a decision attempted without permission
type AuthorizationError struct {
	RequestID string
	ActorID   string
	Level     ApprovalLevel
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("actor %s may not decide request %s at level %s", e.ActorID, e.RequestID, e.Level)
}

// StateError reports a transition attempted on a terminal request
type StateError struct {
	RequestID string
	Status    string
	Op        string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s request %s in terminal status %s", e.Op, e.RequestID, e.Status)
}
