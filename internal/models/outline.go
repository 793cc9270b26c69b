package models

import "time"

// OutlineSource identifies how an outline entry was created.
type OutlineSource int

// OutlineSource constants define outline lineages.
const (
	// OutlineSourceGenerated marks entries written by the generation flow.
	OutlineSourceGenerated OutlineSource = 1
	// OutlineSourceSaved marks entries saved explicitly by the user.
	OutlineSourceSaved OutlineSource = 2
)

// Outline records a plot outline owned by a user. Entries are immutable
// once created except for deletion by their owner.
type Outline struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index"`    // Owning user ID.
	User   User   `gorm:"foreignKey:UserID"` // Owning user record.

	Source OutlineSource `gorm:"not null"` // Lineage of the entry.

	Character1 string `gorm:"type:text"` // First character description (generated lineage).
	Character2 string `gorm:"type:text"` // Second character description (generated lineage).
	PlotPrompt string `gorm:"type:text"` // Core plot prompt (generated lineage).
	Language   string `gorm:"type:text"` // Requested output language code.

	Characters string `gorm:"type:text"` // Freeform character notes (saved lineage).
	CoreScenes string `gorm:"type:text"` // Freeform core scene notes (saved lineage).

	Content string `gorm:"type:text;not null"` // Outline text.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
