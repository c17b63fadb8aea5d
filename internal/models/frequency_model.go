package models

import "time"

type FrequencyPeriod string

const (
	PeriodDaily   FrequencyPeriod = "daily"
	PeriodWeekly  FrequencyPeriod = "weekly"
	PeriodMonthly FrequencyPeriod = "monthly"
)

type FrequencyTarget struct {
	ID          int64           `db:"id" json:"id"`
	ClientID    int64           `db:"client_id" json:"client_id"`
	ClientName  string          `db:"client_name" json:"client_name"`
	Channel     Channel         `db:"channel" json:"channel"`
	Period      FrequencyPeriod `db:"period" json:"period"`
	TargetCount int             `db:"target_count" json:"target_count"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

func (p FrequencyPeriod) Valid() bool {
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
		return true
	}
	return false
}
