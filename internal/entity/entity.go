// Package entity defines the extracted-entity types shared across the
// request pipeline. Entities are produced by a parser capability and carry
// a per-entity confidence score used by the extraction confidence gate.
package entity

import "strings"

// Type categorizes an extracted entity.
type Type string

const (
	// TypeUser is a user principal (name or UPN).
	TypeUser Type = "user"
	// TypeMailbox is a mailbox identity.
	TypeMailbox Type = "mailbox"
	// TypeGroup is a distribution or security group.
	TypeGroup Type = "group"
	// TypeAccessRights is a permission level (FullAccess, SendAs, ...).
	TypeAccessRights Type = "access_rights"
	// TypeAction is the requested administrative action verb.
	TypeAction Type = "action"
	// TypeResource is a resource mailbox or equipment identity.
	TypeResource Type = "resource"
	// TypeDomain is an email domain.
	TypeDomain Type = "domain"
)

// Entity is a single extracted value with its confidence score.
type Entity struct {
	// Type is the entity category.
	Type Type `json:"type"`

	// Value is the normalized entity value.
	Value string `json:"value"`

	// Raw is the text as it appeared in the request, before normalization.
	Raw string `json:"raw,omitempty"`

	// Confidence is the extractor's confidence in [0,1].
	Confidence float64 `json:"confidence"`

	// Source identifies which extractor produced this entity.
	Source string `json:"source,omitempty"`
}

// Identity returns the deduplication key for an entity. Two entities with
// the same identity describe the same thing regardless of extractor.
func (e Entity) Identity() string {
	return string(e.Type) + ":" + strings.ToLower(e.Value)
}

// Collection is an ordered set of extracted entities.
type Collection struct {
	Entities []Entity `json:"entities"`
}

// Add appends an entity to the collection.
func (c *Collection) Add(e Entity) {
	c.Entities = append(c.Entities, e)
}

// Len returns the number of entities.
func (c *Collection) Len() int {
	return len(c.Entities)
}

// ByType returns all entities of the given type, in extraction order.
func (c *Collection) ByType(t Type) []Entity {
	var out []Entity
	for _, e := range c.Entities {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// First returns the first entity of the given type, if any.
func (c *Collection) First(t Type) (Entity, bool) {
	for _, e := range c.Entities {
		if e.Type == t {
			return e, true
		}
	}
	return Entity{}, false
}

// MeanConfidence returns the mean of all entity confidence scores.
// An empty collection has zero confidence: nothing extracted is not
// evidence of a good extraction.
func (c *Collection) MeanConfidence() float64 {
	if len(c.Entities) == 0 {
		return 0
	}
	var sum float64
	for _, e := range c.Entities {
		sum += e.Confidence
	}
	return sum / float64(len(c.Entities))
}

// Merge adds entities from other that are not already present, comparing by
// Identity. Existing entities always win; merge never replaces.
func (c *Collection) Merge(other Collection) int {
	seen := make(map[string]struct{}, len(c.Entities))
	for _, e := range c.Entities {
		seen[e.Identity()] = struct{}{}
	}
	added := 0
	for _, e := range other.Entities {
		if _, ok := seen[e.Identity()]; ok {
			continue
		}
		seen[e.Identity()] = struct{}{}
		c.Entities = append(c.Entities, e)
		added++
	}
	return added
}

// Clone returns a deep copy of the collection.
func (c Collection) Clone() Collection {
	out := Collection{Entities: make([]Entity, len(c.Entities))}
	copy(out.Entities, c.Entities)
	return out
}
