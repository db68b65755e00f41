package entity

import (
	"encoding/json"
	"strings"
	"time"
)

// Identity представляет каноническую учетную запись, объединяющую локальный вход и внешних провайдеров
type Identity struct {
	ID               string                  `gorm:"primaryKey;type:uuid" json:"id"`
	FirstName        string                  `gorm:"size:100;not null;default:''" json:"firstname"`
	LastName         string                  `gorm:"size:100;not null;default:''" json:"lastname"`
	Username         string                  `gorm:"size:150;not null;uniqueIndex" json:"username"`
	Email            string                  `gorm:"size:255;not null;uniqueIndex" json:"email"`
	PasswordHash     string                  `gorm:"column:password_hash;size:100;not null;default:''" json:"-"`
	ExternalAccounts []ExternalAccountLink   `gorm:"foreignKey:IdentityID;constraint:OnDelete:CASCADE" json:"oauthAccounts"`
	SignupDate       time.Time               `gorm:"not null" json:"signupDate"`
	Notifications    NotificationPreferences `gorm:"embedded;embeddedPrefix:notify_" json:"notifications"`
	Subscription     json.RawMessage         `gorm:"type:jsonb" json:"subscription,omitempty"`
}

// TableName определяет имя таблицы для GORM
func (Identity) TableName() string {
	return "identities"
}

// HasLink сообщает, привязана ли к записи учетная запись провайдера с данным subject
func (i *Identity) HasLink(provider, subjectID string) bool {
	for _, link := range i.ExternalAccounts {
		if link.Provider == provider && link.SubjectID == subjectID {
			return true
		}
	}
	return false
}

// Sanitized возвращает копию без хеша пароля и внутренних полей
func (i *Identity) Sanitized() *Identity {
	out := *i
	out.PasswordHash = ""
	if i.ExternalAccounts != nil {
		out.ExternalAccounts = make([]ExternalAccountLink, len(i.ExternalAccounts))
		copy(out.ExternalAccounts, i.ExternalAccounts)
	}
	return &out
}

// PublicProfile возвращает минимальную публичную проекцию
func (i *Identity) PublicProfile() PublicProfile {
	return PublicProfile{
		ID:        i.ID,
		Username:  i.Username,
		FirstName: i.FirstName,
		LastName:  i.LastName,
	}
}

// PublicProfile содержит данные, которые можно показать любому клиенту
type PublicProfile struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
}

// ExternalAccountLink связывает Identity с учетной записью внешнего провайдера.
// Пара (Provider, SubjectID) уникальна среди всех записей.
type ExternalAccountLink struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	IdentityID string    `gorm:"type:uuid;not null;index" json:"-"`
	Provider   string    `gorm:"size:20;not null;uniqueIndex:idx_provider_subject,priority:1" json:"provider"`
	SubjectID  string    `gorm:"size:255;not null;uniqueIndex:idx_provider_subject,priority:2" json:"oauthId"`
	LinkedAt   time.Time `gorm:"not null" json:"linkedAt"`
}

// TableName определяет имя таблицы для GORM
func (ExternalAccountLink) TableName() string {
	return "identity_links"
}

// NotificationPreferences хранит согласия на каналы уведомлений
type NotificationPreferences struct {
	Email bool `gorm:"not null;default:true" json:"email"`
	SMS   bool `gorm:"not null;default:false" json:"sms"`
	Push  bool `gorm:"not null;default:true" json:"push"`
}

// DefaultNotificationPreferences возвращает настройки новой записи
func DefaultNotificationPreferences() NotificationPreferences {
	return NotificationPreferences{Email: true, SMS: false, Push: true}
}

// NewIdentity содержит поля для создания записи.
// Password передается открытым текстом, хранилище хеширует его до сохранения.
type NewIdentity struct {
	FirstName        string
	LastName         string
	Username         string
	Email            string
	Password         string
	ExternalAccounts []ExternalAccountLink
	Notifications    *NotificationPreferences
}

// NormalizeEmail приводит email к каноническому виду
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
