package domain

import (
	"net/url"
	"strings"
	"time"
)

type SocialLink struct {
	ID         string    `json:"id" gorm:"primaryKey;type:text"`
	Platform   string    `json:"platform" gorm:"not null"`
	URL        string    `json:"url" gorm:"not null"`
	Username   *string   `json:"username"`
	IconName   string    `json:"icon_name" gorm:"not null"`
	Color      *string   `json:"color"`
	OrderIndex int       `json:"order_index" gorm:"not null;default:0"`
	IsActive   bool      `json:"is_active" gorm:"not null"`
	IsPrimary  bool      `json:"is_primary" gorm:"not null;default:false"`
	CreatedAt  time.Time `json:"created_at"`
}

func (SocialLink) TableName() string { return TableSocialLinks }

func (l SocialLink) Validate() error {
	if strings.TrimSpace(l.Platform) == "" {
		return invalid("platform is required")
	}
	if strings.TrimSpace(l.IconName) == "" {
		return invalid("icon_name is required")
	}
	u, err := url.Parse(l.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return invalid("url %q must be absolute", l.URL)
	}
	return nil
}
