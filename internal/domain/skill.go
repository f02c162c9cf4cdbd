package domain

import (
	"strings"
	"time"
)

type SkillCategory string

const (
	SkillPrimary    SkillCategory = "primary"
	SkillSecondary  SkillCategory = "secondary"
	SkillTools      SkillCategory = "tools"
	SkillSoftSkills SkillCategory = "soft-skills"
	SkillLanguages  SkillCategory = "languages"
)

func (c SkillCategory) Valid() bool {
	switch c {
	case SkillPrimary, SkillSecondary, SkillTools, SkillSoftSkills, SkillLanguages:
		return true
	}
	return false
}

const (
	MinProficiency = 1
	MaxProficiency = 5
)

type Skill struct {
	ID          string        `json:"id" gorm:"primaryKey;type:text"`
	Name        string        `json:"name" gorm:"not null"`
	Category    SkillCategory `json:"category" gorm:"not null;index"`
	Proficiency int           `json:"proficiency" gorm:"not null;check:proficiency BETWEEN 1 AND 5"`
	IconURL     *string       `json:"icon_url"`
	Color       *string       `json:"color"`
	OrderIndex  int           `json:"order_index" gorm:"not null;default:0"`
	IsFeatured  bool          `json:"is_featured" gorm:"not null;default:false"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

func (Skill) TableName() string { return TableSkills }

func (s Skill) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return invalid("name is required")
	}
	if !s.Category.Valid() {
		return invalid("category %q is not a skill category", s.Category)
	}
	if s.Proficiency < MinProficiency || s.Proficiency > MaxProficiency {
		return invalid("proficiency must be between %d and %d, got %d", MinProficiency, MaxProficiency, s.Proficiency)
	}
	if s.OrderIndex < 0 {
		return invalid("order_index must not be negative")
	}
	return nil
}
