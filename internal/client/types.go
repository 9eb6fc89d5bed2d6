// Package client talks to the Clique REST API. Every call goes through the
// Pipeline, which attaches the bearer token and recovers from expired tokens.
package client

import (
	"time"

	"github.com/clique/tui/internal/notify"
	"github.com/clique/tui/internal/session"
)

// Profile is another user as returned by /dating/users.
type Profile struct {
	ID          string `json:"_id"`
	Name        string `json:"name"`
	Age         int    `json:"age"`
	Gender      string `json:"gender"`
	Bio         string `json:"bio,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
	IsLikedByMe bool   `json:"isLikedByMe,omitempty"`
}

// PostUser is the author block embedded in a post.
type PostUser struct {
	ID     string `json:"_id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// Post is a feed item.
type Post struct {
	ID        string    `json:"_id"`
	User      PostUser  `json:"user"`
	Content   string    `json:"content,omitempty"`
	Image     string    `json:"image,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// NotificationRecord is a stored notification from /dating/notifications.
type NotificationRecord struct {
	ID        string         `json:"_id"`
	Sender    *notify.Sender `json:"sender,omitempty"`
	Type      string         `json:"type"`
	IsRead    bool           `json:"isRead"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Event converts the record to the shape of a realtime push.
func (r NotificationRecord) Event() notify.Event {
	return notify.Event{Type: r.Type, Sender: r.Sender}
}

// Slot is one availability window. Date is YYYY-MM-DD, times are HH:MM.
type Slot struct {
	Date      string `json:"date"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// Appointment is a confirmed meetup between two matched users.
type Appointment struct {
	ID        string   `json:"_id"`
	User1     PostUser `json:"user1"`
	User2     PostUser `json:"user2"`
	Date      string   `json:"date"`
	StartTime string   `json:"startTime"`
	EndTime   string   `json:"endTime"`
}

// Involves reports whether userID is one of the two participants.
func (a Appointment) Involves(userID string) bool {
	return a.User1.ID == userID || a.User2.ID == userID
}

// Schedule status types.
const (
	ScheduleAppointment         = "appointment"
	SchedulePendingAvailability = "pending_availability"
)

// ScheduleStatus is the state of date scheduling with one partner.
type ScheduleStatus struct {
	Type                string       `json:"type"`
	Data                *Appointment `json:"data,omitempty"`
	MyAvailability      []Slot       `json:"myAvailability,omitempty"`
	PartnerHasSubmitted bool         `json:"partnerHasSubmitted,omitempty"`
}

// AvailabilityResult is returned after submitting availability.
type AvailabilityResult struct {
	IsMatched        bool     `json:"isMatched"`
	CommonSlot       *Slot    `json:"commonSlot,omitempty"`
	ConflictWarnings []string `json:"conflictWarnings,omitempty"`
	Message          string   `json:"message,omitempty"`
}

// UploadSignature authorises a direct upload to the asset host.
type UploadSignature struct {
	Signature string `json:"signature"`
	Timestamp int64  `json:"timestamp"`
	CloudName string `json:"cloudname"`
	APIKey    string `json:"apikey"`
}

// LikeResult tells whether a like completed a match.
type LikeResult struct {
	IsMatch bool `json:"isMatch"`
}

// Registration is the payload of both OTP registration steps.
type Registration struct {
	Name            string `json:"name"`
	Age             int    `json:"age"`
	Gender          string `json:"gender"`
	Bio             string `json:"bio,omitempty"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	OTP             string `json:"otp,omitempty"`
}

// ProfileUpdate carries the editable profile fields. Nil fields are left
// unchanged by the server.
type ProfileUpdate struct {
	Name   *string `json:"name,omitempty"`
	Age    *int    `json:"age,omitempty"`
	Gender *string `json:"gender,omitempty"`
	Bio    *string `json:"bio,omitempty"`
	Avatar *string `json:"avatar,omitempty"`
}

// NewPost is the body of CreatePost.
type NewPost struct {
	Content string `json:"content,omitempty"`
	Image   string `json:"image,omitempty"`
}

type loginResponse struct {
	User        session.UserInfo `json:"user"`
	AccessToken string           `json:"access_token"`
}
