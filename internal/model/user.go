package model

import (
	"fmt"
	"time"
)

type AccountType string

const (
	AccountTypeFree    AccountType = "FREE"
	AccountTypePremium AccountType = "PREMIUM"
)

type User struct {
	Base
	Username              string      `json:"username" db:"username"`
	Email                 string      `json:"email" db:"email"`
	TimezoneOffsetMinutes int         `json:"timezone_offset_minutes" db:"timezone_offset_minutes"`
	AccountType           AccountType `json:"account_type" db:"account_type"`
	Active                bool        `json:"active" db:"active"`
}

// Location returns the fixed zone for the user's offset.
func (u *User) Location() *time.Location {
	return OffsetLocation(u.TimezoneOffsetMinutes)
}

// OffsetLocation builds a fixed zone for an offset in minutes east of UTC.
func OffsetLocation(offsetMinutes int) *time.Location {
	sign := '+'
	abs := offsetMinutes
	if abs < 0 {
		sign = '-'
		abs = -abs
	}
	name := fmt.Sprintf("UTC%c%02d:%02d", sign, abs/60, abs%60)
	return time.FixedZone(name, offsetMinutes*60)
}
