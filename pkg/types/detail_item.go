package types

import (
	"strconv"
	"strings"
	"time"
)

// Category is the closed set of knowledge kinds a detail item can belong to
type Category string

const (
	CategoryNPC         Category = "npc"
	CategoryLocation    Category = "location"
	CategoryMonster     Category = "monster"
	CategoryQuest       Category = "quest"
	CategoryMystery     Category = "mystery"
	CategoryMagicalItem Category = "magical_item"
)

// CategoryAll is the filter label that disables category filtering
const CategoryAll = "All"

// categoryLabels maps the UI filter vocabulary onto stored categories
var categoryLabels = map[string]Category{
	"NPCs":      CategoryNPC,
	"Locations": CategoryLocation,
	"Monsters":  CategoryMonster,
	"Quests":    CategoryQuest,
	"Mysteries": CategoryMystery,
	"Items":     CategoryMagicalItem,
}

// Valid reports whether c is one of the known categories
func (c Category) Valid() bool {
	switch c {
	case CategoryNPC, CategoryLocation, CategoryMonster, CategoryQuest, CategoryMystery, CategoryMagicalItem:
		return true
	}
	return false
}

// ResolveCategory converts a filter label ("NPCs", "All") or a raw category
// value ("npc") into a stored category. ok is false when no category
// predicate should be applied.
func ResolveCategory(label string) (Category, bool) {
	label = strings.TrimSpace(label)
	if label == "" || label == CategoryAll {
		return "", false
	}
	if c, found := categoryLabels[label]; found {
		return c, true
	}
	if c := Category(strings.ToLower(label)); c.Valid() {
		return c, true
	}
	return "", false
}

// DetailItem is a piece of derived campaign knowledge (an NPC, a location, ...)
type DetailItem struct {
	// Identification
	ID         string            `json:"id"`
	CampaignID string            `json:"campaign_id"`
	Slug       string            `json:"slug"`
	Name       string            `json:"name"`
	Category   Category          `json:"category"`
	Metadata   map[string]string `json:"metadata,omitempty"`

	// Nullable fields
	Description     *string  `json:"description,omitempty"`
	SourceSessionID *string  `json:"source_session_id,omitempty"`
	AIConfidence    *float64 `json:"ai_confidence,omitempty"`
	CreatedBy       *string  `json:"created_by,omitempty"`

	IsAIGenerated bool      `json:"is_ai_generated"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Validate checks the detail item invariants
func (d *DetailItem) Validate() error {
	if d.ID == "" {
		return ErrMissingID
	}
	if d.CampaignID == "" {
		return ErrMissingCampaignID
	}
	if !d.Category.Valid() {
		return ErrUnknownCategory
	}
	if d.AIConfidence != nil && (*d.AIConfidence < 0 || *d.AIConfidence > 1) {
		return ErrInvalidConfidence
	}
	return nil
}

// DescriptionText returns the description or an empty string when unset
func (d *DetailItem) DescriptionText() string {
	if d.Description == nil {
		return ""
	}
	return *d.Description
}

// EntityID returns the cache identity of the item
func (d DetailItem) EntityID() string { return d.ID }

// Version changes whenever the stored row is updated
func (d DetailItem) Version() string {
	return strconv.FormatInt(d.UpdatedAt.UnixNano(), 10)
}

// FieldValue exposes equality-filterable columns for change feed filtering
func (d DetailItem) FieldValue(field string) (string, bool) {
	switch field {
	case "id":
		return d.ID, true
	case "campaign_id":
		return d.CampaignID, true
	case "category":
		return string(d.Category), true
	case "slug":
		return d.Slug, true
	}
	return "", false
}

// Clone returns a deep copy so cached values never share maps or pointers
func (d DetailItem) Clone() DetailItem {
	out := d
	if d.Metadata != nil {
		out.Metadata = make(map[string]string, len(d.Metadata))
		for k, v := range d.Metadata {
			out.Metadata[k] = v
		}
	}
	out.Description = cloneString(d.Description)
	out.SourceSessionID = cloneString(d.SourceSessionID)
	out.CreatedBy = cloneString(d.CreatedBy)
	if d.AIConfidence != nil {
		v := *d.AIConfidence
		out.AIConfidence = &v
	}
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// StringPtr is a convenience for populating nullable string fields
func StringPtr(s string) *string { return &s }
