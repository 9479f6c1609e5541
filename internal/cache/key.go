package cache

import "fmt"

type Scope string

const (
	ScopeList   Scope = "list"
	ScopeDetail Scope = "detail"
)

// Key identifies one cached result. For lists Params is the canonical
// params serialization; for details it is the record id.
type Key struct {
	Entity string
	Scope  Scope
	Params string
}

func ListKey(entity, params string) Key {
	return Key{Entity: entity, Scope: ScopeList, Params: params}
}

func DetailKey(entity, id string) Key {
	return Key{Entity: entity, Scope: ScopeDetail, Params: id}
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s", k.Entity, k.Scope, k.Params)
}

// Matcher selects keys for invalidation.
type Matcher func(Key) bool

// Lists matches every cached list of entity.
func Lists(entity string) Matcher {
	return func(k Key) bool { return k.Entity == entity && k.Scope == ScopeList }
}

// Detail matches the cached record id of entity.
func Detail(entity, id string) Matcher {
	return func(k Key) bool { return k.Entity == entity && k.Scope == ScopeDetail && k.Params == id }
}

// Entity matches everything cached for entity.
func Entity(entity string) Matcher {
	return func(k Key) bool { return k.Entity == entity }
}
