package outbound

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pitabwire/frame/data"
)

// OutboundJob is one scheduled dial attempt series for an account. A job is
// deduplicated by its idempotency key and walked through the job state
// machine by the dial worker.
type OutboundJob struct {
	data.BaseModel

	IdempotencyKey string `gorm:"type:varchar(64);not null;uniqueIndex:idx_job_idem" json:"idempotency_key"`
	CampaignID     string `gorm:"type:varchar(100);not null;index:idx_job_campaign"  json:"campaign_id"`
	AccountRef     string `gorm:"type:varchar(100);not null;index:idx_job_account"   json:"account_ref"`
	TriggerSource  string `gorm:"type:varchar(50);not null"                           json:"trigger_source"`
	PolicyName     string `gorm:"type:varchar(100);default:'default'"                 json:"policy_name"`

	State        JobState    `gorm:"type:varchar(20);not null;index:idx_job_state" json:"state"`
	ScheduledFor time.Time   `gorm:"not null;index:idx_job_sched"                  json:"scheduled_for"`
	Priority     int         `gorm:"default:0"                                     json:"priority"`
	Payload      PayloadJSON `gorm:"type:jsonb;default:'{}'"                       json:"payload"`

	DNC          bool `gorm:"default:false" json:"dnc"`
	CeaseContact bool `gorm:"default:false" json:"cease_contact"`
	LegalHold    bool `gorm:"default:false" json:"legal_hold"`

	Timezone        string `gorm:"type:varchar(64);default:'UTC'" json:"timezone"`
	DailyAttemptCap int    `gorm:"default:3"                      json:"daily_attempt_cap"`
	MinGapMinutes   int    `gorm:"default:120"                    json:"min_gap_minutes"`

	MaxAttempts   int          `gorm:"default:3"                json:"max_attempts"`
	AttemptCount  int          `gorm:"default:0"                json:"attempt_count"`
	NextAttemptAt sql.NullTime `json:"next_attempt_at,omitempty"`

	LeaseOwner     string       `gorm:"type:varchar(100)" json:"lease_owner,omitempty"`
	LeaseExpiresAt sql.NullTime `json:"lease_expires_at,omitempty"`

	Outcome       string `gorm:"type:varchar(50)" json:"outcome,omitempty"`
	FailureReason string `gorm:"type:text"        json:"failure_reason,omitempty"`
}

func (OutboundJob) TableName() string { return "outbound_jobs" }

// PayloadJSON is a custom GORM type for JSONB storage of the job's call
// context: who to reach and what the conversation is about.
type PayloadJSON struct {
	TargetName          string `json:"target_name"`
	Language            string `json:"language,omitempty"`
	AmountDue           string `json:"amount_due"`
	CreditorName        string `json:"creditor_name"`
	Reference           string `json:"reference"`
	ExpectedZip         string `json:"expected_zip,omitempty"`
	ExpectedName        string `json:"expected_name,omitempty"`
	ExpectedDOBMonthDay string `json:"expected_dob_month_day,omitempty"`
	ExpectedLast4Ref    string `json:"expected_last4_ref,omitempty"`
	ExpectedStreetNum   string `json:"expected_street_number,omitempty"`
}

func (p PayloadJSON) Value() (interface{}, error) {
	return json.Marshal(p)
}

func (p *PayloadJSON) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	default:
		*p = PayloadJSON{}
		return nil
	}
}

// ContactAttempt is the compliance-facing record of one dial decision. Only
// dialed attempts count toward the daily cap and minimum gap.
type ContactAttempt struct {
	data.BaseModel

	AccountRef string    `gorm:"type:varchar(100);not null;index:idx_att_account" json:"account_ref"`
	JobID      string    `gorm:"type:varchar(50);not null;index:idx_att_job"      json:"job_id"`
	CallID     string    `gorm:"type:varchar(50)"                                  json:"call_id,omitempty"`
	AttemptAt  time.Time `gorm:"not null"                                          json:"attempt_at"`
	LocalDay   string    `gorm:"type:varchar(10);not null;index:idx_att_day"       json:"local_day"`
	Dialed     bool      `gorm:"default:false"                                     json:"dialed"`
	ReasonCode string    `gorm:"type:varchar(50);not null"                         json:"reason_code"`
	Outcome    string    `gorm:"type:varchar(50)"                                  json:"outcome,omitempty"`
}

func (ContactAttempt) TableName() string { return "contact_attempts" }

// CallRecord is the durable summary of one completed call.
type CallRecord struct {
	data.BaseModel

	CallID     string `gorm:"type:varchar(50);not null;uniqueIndex:idx_cr_call" json:"call_id"`
	JobID      string `gorm:"type:varchar(50);index:idx_cr_job"                 json:"job_id,omitempty"`
	AccountRef string `gorm:"type:varchar(100);not null;index:idx_cr_account"   json:"account_ref"`

	Outcome   string `gorm:"type:varchar(50);not null" json:"outcome"`
	EndReason string `gorm:"type:varchar(50)"          json:"end_reason,omitempty"`
	TurnCount int    `gorm:"default:0"                 json:"turn_count"`
	Verified  bool   `gorm:"default:false"             json:"verified"`
	Escalated bool   `gorm:"default:false"             json:"escalated"`

	PTPDate      string       `gorm:"type:varchar(10)" json:"ptp_date,omitempty"`
	PTPAmount    string       `gorm:"type:varchar(20)" json:"ptp_amount,omitempty"`
	PTPConfirmed bool         `gorm:"default:false"    json:"ptp_confirmed"`
	CallbackAt   string       `gorm:"type:varchar(20)" json:"callback_at,omitempty"`
	EndedAt      sql.NullTime `json:"ended_at,omitempty"`

	// Final call state snapshot, kept for audit and replay tooling.
	StateJSON string `gorm:"type:text" json:"-"`
}

func (CallRecord) TableName() string { return "call_records" }
