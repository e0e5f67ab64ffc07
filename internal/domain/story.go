package domain

import "time"

// DesireCategory is the closed set of areas a user can manifest in.
type DesireCategory string

// Desire categories.
const (
	CategoryLove   DesireCategory = "Love"
	CategoryMoney  DesireCategory = "Money"
	CategoryCareer DesireCategory = "Career"
	CategoryHealth DesireCategory = "Health"
	CategoryHome   DesireCategory = "Home"
)

// Categories lists every desire category in display order.
var Categories = []DesireCategory{CategoryLove, CategoryMoney, CategoryCareer, CategoryHealth, CategoryHome}

// EnergyWord is the feeling a user wants their stories to carry.
type EnergyWord string

// Energy words offered during onboarding.
const (
	EnergyPowerful  EnergyWord = "Powerful"
	EnergyPeaceful  EnergyWord = "Peaceful"
	EnergyAbundant  EnergyWord = "Abundant"
	EnergyGrateful  EnergyWord = "Grateful"
	EnergyConfident EnergyWord = "Confident"
)

// Desire is a catalog row. Category is unique.
type Desire struct {
	ID       int64          `json:"id"`
	Category DesireCategory `json:"desireCategory"`
	Name     string         `json:"name"`
}

// Story is one generated chapter for a user in a category.
type Story struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	DesireID  int64     `json:"desire_id"`
	Theme     string    `json:"theme"`
	Body      string    `json:"story"`
	CreatedAt time.Time `json:"created_at"`
}

// StoryWithDesire is a story joined with its catalog display name.
type StoryWithDesire struct {
	Story
	DesireName string `json:"desire_name,omitempty"`
}
