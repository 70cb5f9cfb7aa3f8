package domain

import "time"

// SiteSettings is the single global settings row toggled from the admin
// panel. Feature flags only; the widgets they gate live in the client.
type SiteSettings struct {
	ID             uint      `gorm:"primaryKey" json:"-"`
	ForcedTheme    string    `gorm:"size:16;default:none" json:"forced_theme"`
	ShowTranslator bool      `gorm:"default:true" json:"show_translator"`
	ShowVoiceAI    bool      `gorm:"default:true" json:"show_voice_ai"`
	ShowChatNote   bool      `gorm:"default:true" json:"show_chat_note"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (SiteSettings) TableName() string { return "site_settings" }
