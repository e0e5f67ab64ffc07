package domain

import "time"

// NarrationSpeed is the playback speed a user picked for spoken stories.
type NarrationSpeed string

// Narration speeds offered by the app.
const (
	SpeedLow    NarrationSpeed = "low"
	SpeedNormal NarrationSpeed = "normal"
	SpeedFast   NarrationSpeed = "fast"
)

// Multiplier returns the speech-rate multiplier sent to the voice provider.
// Unknown values fall back to normal speed.
func (s NarrationSpeed) Multiplier() float64 {
	switch s {
	case SpeedLow:
		return 0.8
	case SpeedFast:
		return 1.2
	default:
		return 1.0
	}
}

// User is an app account. Subscription fields are owned by the billing flow,
// reminder fields by the profile screen.
type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name,omitempty"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`

	Speed    NarrationSpeed `json:"speed,omitempty"`
	VoiceID  string         `json:"voice_id,omitempty"`
	FCMToken string         `json:"-"`
	Timezone string         `json:"timezone,omitempty"`

	MorningReminderEnabled bool   `json:"morning_reminder_enabled"`
	MorningReminderTime    string `json:"morning_reminder_time,omitempty"`
	BedtimeReminderEnabled bool   `json:"bedtime_reminder_enabled"`
	BedtimeReminderTime    string `json:"bedtime_reminder_time,omitempty"`

	Subscription Subscription `json:"subscription"`
}

// HasReminders reports whether the sweep should consider this user at all.
func (u *User) HasReminders() bool {
	return u.FCMToken != "" && (u.MorningReminderEnabled || u.BedtimeReminderEnabled)
}

// UserPatch carries the optional fields a client may change on its user.
// A nil field is left untouched.
type UserPatch struct {
	Name                   *string         `json:"name,omitempty" validate:"omitempty,notblank,max=100"`
	Email                  *string         `json:"email,omitempty" validate:"omitempty,email"`
	Password               *string         `json:"password,omitempty" validate:"omitempty,min=8,max=1024"`
	Speed                  *NarrationSpeed `json:"speed,omitempty" validate:"omitempty,oneof=low normal fast"`
	Timezone               *string         `json:"timezone,omitempty" validate:"omitempty,timezone"`
	FCMToken               *string         `json:"fcm_token,omitempty"`
	MorningReminderEnabled *bool           `json:"morning_reminder_enabled,omitempty"`
	MorningReminderTime    *string         `json:"morning_reminder_time,omitempty" validate:"omitempty,clock"`
	BedtimeReminderEnabled *bool           `json:"bedtime_reminder_enabled,omitempty"`
	BedtimeReminderTime    *string         `json:"bedtime_reminder_time,omitempty" validate:"omitempty,clock"`

	// PasswordHash is set by the user service after hashing Password.
	// It is never read from a request body.
	PasswordHash *string `json:"-"`
}

// PatchField is one column assignment produced from a UserPatch.
type PatchField struct {
	Column string
	Value  any
}

// userPatchFields is the single mapping from patch fields to user columns.
// Password is absent on purpose: only its hash is ever stored.
var userPatchFields = []struct {
	column string
	get    func(p *UserPatch) (any, bool)
}{
	{"name", func(p *UserPatch) (any, bool) { return deref(p.Name) }},
	{"email", func(p *UserPatch) (any, bool) { return deref(p.Email) }},
	{"password_hash", func(p *UserPatch) (any, bool) { return deref(p.PasswordHash) }},
	{"speed", func(p *UserPatch) (any, bool) {
		if p.Speed == nil {
			return nil, false
		}
		return string(*p.Speed), true
	}},
	{"timezone", func(p *UserPatch) (any, bool) { return deref(p.Timezone) }},
	{"fcm_token", func(p *UserPatch) (any, bool) { return deref(p.FCMToken) }},
	{"morning_reminder_enabled", func(p *UserPatch) (any, bool) { return deref(p.MorningReminderEnabled) }},
	{"morning_reminder_time", func(p *UserPatch) (any, bool) { return deref(p.MorningReminderTime) }},
	{"bedtime_reminder_enabled", func(p *UserPatch) (any, bool) { return deref(p.BedtimeReminderEnabled) }},
	{"bedtime_reminder_time", func(p *UserPatch) (any, bool) { return deref(p.BedtimeReminderTime) }},
}

func deref[T any](v *T) (any, bool) {
	if v == nil {
		return nil, false
	}
	return *v, true
}

// Fields returns the column assignments for every set field, in table order.
func (p *UserPatch) Fields() []PatchField {
	fields := make([]PatchField, 0, len(userPatchFields))
	for _, f := range userPatchFields {
		if v, ok := f.get(p); ok {
			fields = append(fields, PatchField{Column: f.column, Value: v})
		}
	}
	return fields
}

// IsEmpty reports whether the patch would change nothing.
func (p *UserPatch) IsEmpty() bool {
	return p.Password == nil && len(p.Fields()) == 0
}
