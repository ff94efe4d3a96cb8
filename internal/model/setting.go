package model

import "time"

// Setting is one key/value entry of the configuration store
type Setting struct {
	Key       string    `json:"key" gorm:"type:varchar(64);primaryKey"`
	Value     string    `json:"value" gorm:"type:text"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for Setting
func (Setting) TableName() string {
	return "settings"
}
