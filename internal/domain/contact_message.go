package domain

import (
	"net/mail"
	"strings"
	"time"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type MessageSource string

const (
	SourceWebsite  MessageSource = "website"
	SourceEmail    MessageSource = "email"
	SourceLinkedIn MessageSource = "linkedin"
	SourceOther    MessageSource = "other"
)

func (s MessageSource) Valid() bool {
	switch s {
	case SourceWebsite, SourceEmail, SourceLinkedIn, SourceOther:
		return true
	}
	return false
}

const MaxMessageLength = 5000

type ContactMessage struct {
	ID        string        `json:"id" gorm:"primaryKey;type:text"`
	Name      string        `json:"name" gorm:"not null"`
	Email     string        `json:"email" gorm:"not null"`
	Subject   *string       `json:"subject"`
	Message   string        `json:"message" gorm:"not null"`
	Phone     *string       `json:"phone"`
	Company   *string       `json:"company"`
	IsRead    bool          `json:"is_read" gorm:"not null;default:false;index"`
	IsReplied bool          `json:"is_replied" gorm:"not null;default:false"`
	Priority  Priority      `json:"priority" gorm:"not null;default:normal"`
	Source    MessageSource `json:"source" gorm:"not null;default:website"`
	IPAddress *string       `json:"ip_address"`
	UserAgent *string       `json:"user_agent"`
	RepliedAt *time.Time    `json:"replied_at"`
	CreatedAt time.Time     `json:"created_at" gorm:"index"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func (ContactMessage) TableName() string { return TableContactMessages }

func (m ContactMessage) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return invalid("name is required")
	}
	if _, err := mail.ParseAddress(m.Email); err != nil {
		return invalid("email %q is not a valid address", m.Email)
	}
	msg := strings.TrimSpace(m.Message)
	if msg == "" {
		return invalid("message is required")
	}
	if len(msg) > MaxMessageLength {
		return invalid("message is longer than %d characters", MaxMessageLength)
	}
	if !m.Priority.Valid() {
		return invalid("priority %q is not a priority", m.Priority)
	}
	if !m.Source.Valid() {
		return invalid("source %q is not a message source", m.Source)
	}
	return nil
}

// AdminUser is a credential row for the self-hosted store.
type AdminUser struct {
	ID           string    `json:"id" gorm:"primaryKey;type:text"`
	Email        string    `json:"email" gorm:"not null;uniqueIndex"`
	PasswordHash string    `json:"-" gorm:"not null"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (AdminUser) TableName() string { return TableAdminUsers }
