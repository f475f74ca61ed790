package policy

import "fmt"

// ConfigError reports a bad or missing policy_params key, surfaced at
// Init and treated as fatal by the Cache Core.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: key %q: %s", e.Key, e.Reason)
}

// CapacityError records why an object was rejected on admission: size
// exceeds the cache's capacity (or is zero). Unlike the other types here
// it is never returned as an error value — store.ObjectStore.Admits and
// every Policy.CanInsert surface this as a plain `false`, per spec §7 —
// it exists so the rejection reason has a named, documented shape rather
// than being implicit in a bool.
type CapacityError struct {
	Size     uint64
	Capacity uint64
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("capacity error: object size %d exceeds capacity %d", e.Size, e.Capacity)
}

// InvariantViolation indicates a selected victim was not resident, or an
// eviction loop ran out of candidates while occupied_bytes > 0. Always a
// bug; the Cache Core turns this into a panic after logging.
type InvariantViolation struct {
	Detail string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation: %s", e.Detail)
}

// PluginError reports a module load failure or missing hook symbol.
type PluginError struct {
	Path   string
	Reason string
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("plugin error: %s: %s", e.Path, e.Reason)
}

// LearnerError reports a training or prediction failure in 3L-Cache. It
// is never fatal: the policy logs a warning and degrades to its
// model-less eviction path.
type LearnerError struct {
	Reason string
}

func (e *LearnerError) Error() string {
	return fmt.Sprintf("learner error: %s", e.Reason)
}
