package domain

import "time"

// AccessCodeRecord is the secondary index that maps a student access code to
// its owning representative without scanning the representatives table. The
// row key is deterministic ("code_" + code) so lookups stay O(1); RepName is
// denormalized for display without a join.
type AccessCodeRecord struct {
	DocKey    string    `gorm:"primaryKey;size:32;column:doc_key" json:"doc_key"`
	Code      string    `gorm:"size:16;uniqueIndex;not null" json:"code"`
	RepID     string    `gorm:"size:64;index;not null" json:"rep_id"`
	RepName   string    `gorm:"size:128" json:"rep_name"`
	Stage     string    `gorm:"size:4" json:"stage"`
	CreatedAt time.Time `json:"created_at"`
}

func (AccessCodeRecord) TableName() string { return "access_codes" }

// AccessCodeDocKey derives the primary row key for a sanitized code.
func AccessCodeDocKey(code string) string { return "code_" + code }

// CodeOwner is the resolved owner of an access code.
type CodeOwner struct {
	RepID   string `json:"rep_id"`
	RepName string `json:"rep_name"`
}
