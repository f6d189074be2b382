package session

import "time"

// PanelSession is the persisted form of a session. Grant tables are stored as
// the JSON text they were decoded from.
type PanelSession struct {
	ID             string     `gorm:"primaryKey;column:id" json:"id"`
	Version        int64      `gorm:"column:version;not null" json:"version"`
	UserID         string     `gorm:"column:user_id;index;not null" json:"user_id"`
	UserName       string     `gorm:"column:user_name" json:"user_name"`
	UserEmail      string     `gorm:"column:user_email" json:"user_email"`
	UserPosition   string     `gorm:"column:user_position" json:"user_position"`
	CompanyID      string     `gorm:"column:company_id" json:"company_id"`
	CompanyName    string     `gorm:"column:company_name" json:"company_name"`
	UpstreamToken  string     `gorm:"column:upstream_token;not null" json:"upstream_token"`
	TokenExpiresAt *time.Time `gorm:"column:token_expires_at" json:"token_expires_at,omitempty"`
	ButtonGrants   string     `gorm:"column:button_grants;type:text" json:"button_grants"`
	PageGrants     string     `gorm:"column:page_grants;type:text" json:"page_grants"`
	CreatedAt      time.Time  `gorm:"column:created_at" json:"created_at"`
}

func (PanelSession) TableName() string {
	return "panel_sessions"
}
