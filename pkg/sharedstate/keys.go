package sharedstate

import "strings"

// DurableSigil marks a key as durable.
const DurableSigil = "@"

// DefaultNamespace prefixes every storage key written by a runtime.
const DefaultNamespace = "sharedstate:"

// IsDurable reports whether key is persisted to storage.
func IsDurable(key string) bool {
	return strings.HasPrefix(key, DurableSigil)
}

// storageKey maps a durable key into namespace. The sigil is stripped.
func storageKey(namespace, key string) string {
	return namespace + strings.TrimPrefix(key, DurableSigil)
}

// logicalKey maps a storage key back to its durable key.
// Returns false for keys outside namespace.
func logicalKey(namespace, skey string) (string, bool) {
	rest, ok := strings.CutPrefix(skey, namespace)
	if !ok || rest == "" {
		return "", false
	}
	return DurableSigil + rest, true
}
