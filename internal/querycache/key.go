package querycache

import "strings"

// GlobalScope addresses resources that are not tied to a single donor or campaign.
const GlobalScope = "global"

const keyPrefix = "qc:"

// Key addresses one cached read. Params is the canonical filter string, empty when unfiltered.
type Key struct {
	Resource string
	Scope    string
	Params   string
}

// NewKey builds a key; an empty scope means GlobalScope.
func NewKey(resource, scope, params string) Key {
	return Key{Resource: resource, Scope: scope, Params: params}
}

func (k Key) scope() string {
	if k.Scope == "" {
		return GlobalScope
	}
	return k.Scope
}

// String renders the storage key, e.g. "qc:donations:campaign=42:page=2&status=completed".
func (k Key) String() string {
	var b strings.Builder
	b.WriteString(scopePrefix(k.Resource, k.scope()))
	if k.Params == "" {
		b.WriteString("-")
	} else {
		b.WriteString(k.Params)
	}
	return b.String()
}

// Target selects a group of keys to invalidate: a whole resource, or one scope of it.
type Target struct {
	Resource string
	Scope    string
}

// ScopeTarget selects every key of resource under scope.
func ScopeTarget(resource, scope string) Target {
	if scope == "" {
		scope = GlobalScope
	}
	return Target{Resource: resource, Scope: scope}
}

// ResourceTarget selects every key of resource regardless of scope.
func ResourceTarget(resource string) Target {
	return Target{Resource: resource}
}

func (t Target) prefix() string {
	if t.Scope == "" {
		return resourcePrefix(t.Resource)
	}
	return scopePrefix(t.Resource, t.Scope)
}

func resourcePrefix(resource string) string {
	return keyPrefix + resource + ":"
}

func scopePrefix(resource, scope string) string {
	return resourcePrefix(resource) + scope + ":"
}
