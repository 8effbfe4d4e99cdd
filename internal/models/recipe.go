package models

import (
	"strings"
	"time"
)

// Category is a recipe cuisine
type Category string

const (
	CategoryKorean   Category = "KOREAN"
	CategoryJapanese Category = "JAPANESE"
	CategoryChinese  Category = "CHINESE"
	CategoryWestern  Category = "WESTERN"
)

// categoryDisplayNames maps categories to the labels shown in the app
var categoryDisplayNames = map[Category]string{
	CategoryKorean:   "한식",
	CategoryJapanese: "일식",
	CategoryChinese:  "중식",
	CategoryWestern:  "양식",
}

// DisplayName returns the localized label
func (c Category) DisplayName() string {
	return categoryDisplayNames[c]
}

// ParseCategory accepts either the enum name (any case) or the display name
func ParseCategory(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	upper := Category(strings.ToUpper(s))
	if _, ok := categoryDisplayNames[upper]; ok {
		return upper, true
	}
	for c, name := range categoryDisplayNames {
		if name == s {
			return c, true
		}
	}
	return "", false
}

// ValidDifficulties defines allowed difficulty labels
var ValidDifficulties = map[string]bool{
	"쉬움":  true,
	"보통":  true,
	"어려움": true,
}

// Recipe limits
const (
	MaxTitleLength   = 50
	MaxContentLength = 500
	MinSteps         = 1
	MaxSteps         = 20
)

// Recipe represents a recipe posted by a user
type Recipe struct {
	ID            string    `json:"id" db:"id"`
	Title         string    `json:"title" db:"title"`
	Category      Category  `json:"category" db:"category"`
	CookingTime   string    `json:"cookingTime" db:"cooking_time"`
	Difficulty    string    `json:"difficulty" db:"difficulty"`
	Ingredients   []string  `json:"ingredients" db:"ingredients"`
	Content       string    `json:"content" db:"content"`
	Steps         []string  `json:"steps" db:"steps"`
	ImageURL      string    `json:"imageUrl,omitempty" db:"image_url"`
	AuthorID      string    `json:"firebaseUid" db:"firebase_uid"`
	AuthorName    string    `json:"authorName,omitempty" db:"author_name"`
	IsPublic      bool      `json:"isPublic" db:"is_public"`
	LikesCount    int       `json:"likesCount" db:"likes_count"`
	CommentsCount int       `json:"commentsCount" db:"comments_count"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt" db:"updated_at"`
}

// RecipeInput is the JSON part of a create or update request
type RecipeInput struct {
	Title       string   `json:"title" validate:"notblank,max=50"`
	Category    string   `json:"category" validate:"required,category"`
	CookingTime string   `json:"cookingTime" validate:"max=50"`
	Difficulty  string   `json:"difficulty" validate:"omitempty,difficulty"`
	Ingredients []string `json:"ingredients" validate:"dive,notblank"`
	Content     string   `json:"content" validate:"max=500"`
	Steps       []string `json:"steps" validate:"min=1,max=20,dive,notblank"`
	IsPublic    *bool    `json:"isPublic"`
}

// RecipeStats holds the public counters of a recipe
type RecipeStats struct {
	LikesCount    int `json:"likes_count"`
	CommentsCount int `json:"comments_count"`
}
