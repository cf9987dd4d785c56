/*
resource.go - Resource type registration and lookup

PURPOSE:
  Lets domain packages register their ResourceType values so storage
  adapters can turn a stored string back into the concrete type when
  reading journal entries.

USAGE:
  // In leave/types.go
  func init() {
      for _, t := range AllTypes {
          generic.RegisterResource(t)
      }
  }

  // In a store
  rt := generic.GetOrCreateResource("medical") // returns leave.Medical
*/
package generic

import (
	"sync"
)

var (
	resourceRegistry = make(map[string]ResourceType)
	registryMu       sync.RWMutex
)

// RegisterResource adds a resource type to the global registry.
func RegisterResource(r ResourceType) {
	registryMu.Lock()
	defer registryMu.Unlock()
	resourceRegistry[r.ResourceID()] = r
}

// LookupResource finds a registered resource type by ID.
// Returns nil if not found.
func LookupResource(id string) ResourceType {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return resourceRegistry[id]
}

// GetOrCreateResource returns the registered type, or a StringResource
// when nothing registered that ID (e.g. a type removed from configuration).
func GetOrCreateResource(id string) ResourceType {
	if r := LookupResource(id); r != nil {
		return r
	}
	return StringResource{ID: id, Domain: "unknown"}
}

// StringResource is a simple string-based resource type.
type StringResource struct {
	ID     string
	Domain string
}

func (r StringResource) ResourceID() string     { return r.ID }
func (r StringResource) ResourceDomain() string { return r.Domain }
