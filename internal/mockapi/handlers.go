package mockapi

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/clique/tui/internal/client"
	"github.com/clique/tui/internal/notify"
	"github.com/clique/tui/internal/session"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// --- accounts ---

func validRegistration(r client.Registration) string {
	switch {
	case strings.TrimSpace(r.Name) == "":
		return "name is required"
	case !strings.Contains(r.Email, "@"):
		return "email is invalid"
	case r.Age < 18:
		return "you must be at least 18"
	case len(r.Password) < 6:
		return "password must be at least 6 characters"
	case r.Password != r.ConfirmPassword:
		return "passwords do not match"
	}
	return ""
}

func userInfoFrom(r client.Registration) session.UserInfo {
	return session.UserInfo{Name: r.Name, Age: r.Age, Gender: r.Gender, Bio: r.Bio, Email: r.Email}
}

func (s *Server) handleSendOTP(w http.ResponseWriter, r *http.Request) {
	var reg client.Registration
	if err := decodeBody(r, &reg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if msg := validRegistration(reg); msg != "" {
		writeError(w, http.StatusUnprocessableEntity, msg)
		return
	}

	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	if s.data.accountByEmail(reg.Email) != nil {
		writeError(w, http.StatusConflict, "email already registered")
		return
	}
	s.data.pending[reg.Email] = reg
	s.log.WithField("email", reg.Email).Info("registration otp issued")
	writeResult(w, http.StatusOK, "OTP sent to your email", nil)
}

func (s *Server) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var reg client.Registration
	if err := decodeBody(r, &reg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	pending, ok := s.data.pending[reg.Email]
	if !ok {
		writeError(w, http.StatusBadRequest, "no pending registration for this email")
		return
	}
	if reg.OTP != s.otp {
		writeError(w, http.StatusBadRequest, "invalid otp")
		return
	}
	delete(s.data.pending, reg.Email)
	a := s.data.addAccount(userInfoFrom(pending), pending.Password)
	writeResult(w, http.StatusCreated, "registered", a.info)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.data.mu.Lock()
	a := s.data.accountByEmail(body.Email)
	ok := a != nil && a.password == body.Password
	var info session.UserInfo
	if ok {
		info = a.info
	}
	s.data.mu.Unlock()
	if !ok {
		writeError(w, http.StatusUnauthorized, "wrong email or password")
		return
	}

	tok, err := s.tokens.accessToken(info.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	setRefreshCookie(w, s.tokens.newRefresh(info.ID))
	s.log.WithField("user_id", info.ID).Info("user logged in")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":      "login success",
		"user":         info,
		"access_token": tok,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)

	s.mu.Lock()
	status := s.refreshStatus
	s.mu.Unlock()
	if status != 0 {
		writeError(w, status, "refresh failed")
		return
	}

	c, err := r.Cookie(refreshCookie)
	if err != nil || c.Value == "" {
		writeError(w, http.StatusUnauthorized, "refresh token missing")
		return
	}
	userID, ok := s.tokens.refreshOwner(c.Value)
	if !ok {
		clearRefreshCookie(w)
		writeError(w, http.StatusUnauthorized, "refresh token invalid")
		return
	}
	tok, err := s.tokens.accessToken(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.log.WithField("user_id", userID).Debug("access token refreshed")
	writeJSON(w, http.StatusOK, map[string]string{"access_token": tok})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(refreshCookie); err == nil {
		s.tokens.dropRefresh(c.Value)
	}
	clearRefreshCookie(w)
	writeResult(w, http.StatusOK, "logged out", nil)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.data.mu.Lock()
	info := s.data.accounts[userFrom(r.Context())].info
	s.data.mu.Unlock()
	writeResult(w, http.StatusOK, "", info)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var upd client.ProfileUpdate
	if err := decodeBody(r, &upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if upd.Age != nil && *upd.Age < 18 {
		writeError(w, http.StatusUnprocessableEntity, "you must be at least 18")
		return
	}

	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	a := s.data.accounts[userFrom(r.Context())]
	if upd.Name != nil {
		a.info.Name = *upd.Name
	}
	if upd.Age != nil {
		a.info.Age = *upd.Age
	}
	if upd.Gender != nil {
		a.info.Gender = *upd.Gender
	}
	if upd.Bio != nil {
		a.info.Bio = *upd.Bio
	}
	if upd.Avatar != nil {
		a.info.Avatar = *upd.Avatar
	}
	writeResult(w, http.StatusOK, "profile updated", a.info)
}

func (s *Server) handleUploadSignature(w http.ResponseWriter, r *http.Request) {
	ts := time.Now().Unix()
	sum := sha1.Sum([]byte(fmt.Sprintf("timestamp=%d%s", ts, s.tokens.secret)))
	writeResult(w, http.StatusOK, "", client.UploadSignature{
		Signature: hex.EncodeToString(sum[:]),
		Timestamp: ts,
		CloudName: "clique-mock",
		APIKey:    "mock-key",
	})
}

// --- profiles and likes ---

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	me := userFrom(r.Context())
	s.data.mu.Lock()
	out := s.data.profiles(me, nil)
	s.data.mu.Unlock()
	writeResult(w, http.StatusOK, "", out)
}

func (s *Server) handleMatches(w http.ResponseWriter, r *http.Request) {
	me := userFrom(r.Context())
	s.data.mu.Lock()
	out := s.data.profiles(me, func(id string) bool { return s.data.matched(me, id) })
	s.data.mu.Unlock()
	writeResult(w, http.StatusOK, "", out)
}

func (s *Server) handleLikedMe(w http.ResponseWriter, r *http.Request) {
	me := userFrom(r.Context())
	s.data.mu.Lock()
	out := s.data.profiles(me, func(id string) bool { return s.data.hasLiked(id, me) })
	s.data.mu.Unlock()
	writeResult(w, http.StatusOK, "", out)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	me := userFrom(r.Context())
	s.data.mu.Lock()
	a, ok := s.data.accounts[mux.Vars(r)["id"]]
	var p client.Profile
	if ok {
		p = s.data.profile(me, a)
	}
	s.data.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeResult(w, http.StatusOK, "", p)
}

func (s *Server) handleLike(w http.ResponseWriter, r *http.Request) {
	me := userFrom(r.Context())
	target := mux.Vars(r)["id"]
	if target == me {
		writeError(w, http.StatusBadRequest, "You cannot like yourself")
		return
	}

	s.data.mu.Lock()
	from, ok := s.data.accounts[me]
	to, exists := s.data.accounts[target]
	if !ok || !exists {
		s.data.mu.Unlock()
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if s.data.hasLiked(me, target) {
		s.data.mu.Unlock()
		writeError(w, http.StatusBadRequest, "You already liked this user")
		return
	}
	s.data.like(me, target)
	isMatch := s.data.hasLiked(target, me)
	fromSender, toSender := from.sender(), to.sender()
	s.data.mu.Unlock()

	if isMatch {
		s.notify(target, string(notify.KindMatch), fromSender)
		s.notify(me, string(notify.KindMatch), toSender)
	} else {
		s.notify(target, string(notify.KindLike), fromSender)
	}
	writeResult(w, http.StatusOK, "liked", client.LikeResult{IsMatch: isMatch})
}

func (s *Server) handleUnlike(w http.ResponseWriter, r *http.Request) {
	me := userFrom(r.Context())
	target := mux.Vars(r)["id"]

	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	if !s.data.hasLiked(me, target) {
		writeError(w, http.StatusBadRequest, "You have not liked this user")
		return
	}
	delete(s.data.likes[me], target)
	writeResult(w, http.StatusOK, "unliked", nil)
}

// --- posts ---

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var body client.NewPost
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if strings.TrimSpace(body.Content) == "" && body.Image == "" {
		writeError(w, http.StatusUnprocessableEntity, "a post needs content or an image")
		return
	}

	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	p := client.Post{
		ID:        uuid.NewString(),
		User:      s.data.accounts[userFrom(r.Context())].postUser(),
		Content:   body.Content,
		Image:     body.Image,
		CreatedAt: time.Now(),
	}
	s.data.posts = append(s.data.posts, p)
	writeResult(w, http.StatusCreated, "post created", p)
}

func (s *Server) handlePosts(w http.ResponseWriter, r *http.Request) {
	author := r.URL.Query().Get("userId")
	if author == "" {
		author = userFrom(r.Context())
	}
	s.data.mu.Lock()
	out := s.data.postsWhere(func(p client.Post) bool { return p.User.ID == author })
	s.data.mu.Unlock()
	writeResult(w, http.StatusOK, "", out)
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	me := userFrom(r.Context())
	s.data.mu.Lock()
	out := s.data.postsWhere(func(p client.Post) bool {
		return p.User.ID != me && !s.data.seen[me][p.ID]
	})
	s.data.mu.Unlock()
	writeResult(w, http.StatusOK, "", out)
}

func (s *Server) handleSeen(w http.ResponseWriter, r *http.Request) {
	s.seenReports.Add(1)
	id := mux.Vars(r)["id"]

	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	if _, ok := s.data.post(id); !ok {
		writeError(w, http.StatusNotFound, "post not found")
		return
	}
	s.data.markSeen(userFrom(r.Context()), id)
	writeResult(w, http.StatusOK, "marked as seen", nil)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	me := userFrom(r.Context())
	s.data.mu.Lock()
	list := s.data.notifications[me]
	out := make([]client.NotificationRecord, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		out = append(out, list[i])
	}
	s.data.mu.Unlock()
	writeResult(w, http.StatusOK, "", out)
}

func notificationRecord(typ string, from *notify.Sender) client.NotificationRecord {
	return client.NotificationRecord{
		ID:        uuid.NewString(),
		Sender:    from,
		Type:      typ,
		CreatedAt: time.Now(),
	}
}

// --- scheduling ---

type scheduleBody struct {
	TargetUserID string        `json:"targetUserId"`
	Slots        []client.Slot `json:"slots"`
	client.Slot
}

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	me := userFrom(r.Context())
	var body scheduleBody
	if err := decodeBody(r, &body); err != nil || len(body.Slots) == 0 {
		writeError(w, http.StatusBadRequest, "slots are required")
		return
	}

	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	if !s.data.matched(me, body.TargetUserID) {
		writeError(w, http.StatusForbidden, "You can only schedule with your matches")
		return
	}
	if _, ok := s.data.appointmentFor(me, body.TargetUserID); ok {
		writeError(w, http.StatusConflict, "An appointment already exists")
		return
	}

	key := pair(me, body.TargetUserID)
	if s.data.availability[key] == nil {
		s.data.availability[key] = make(map[string][]client.Slot)
	}
	s.data.availability[key][me] = body.Slots

	theirs, submitted := s.data.availability[key][body.TargetUserID]
	if !submitted {
		writeResult(w, http.StatusOK, "", client.AvailabilityResult{Message: "Waiting for your match to submit availability"})
		return
	}
	slot, ok := commonSlot(body.Slots, theirs)
	if !ok {
		writeResult(w, http.StatusOK, "", client.AvailabilityResult{Message: "No common time found, try other slots"})
		return
	}
	writeResult(w, http.StatusOK, "", client.AvailabilityResult{
		IsMatched:  true,
		CommonSlot: &slot,
		Message:    "Found a common slot",
	})
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	me := userFrom(r.Context())
	var body scheduleBody
	if err := decodeBody(r, &body); err != nil || body.Date == "" {
		writeError(w, http.StatusBadRequest, "slot is required")
		return
	}

	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	if !s.data.matched(me, body.TargetUserID) {
		writeError(w, http.StatusForbidden, "You can only schedule with your matches")
		return
	}
	if existing, ok := s.data.appointmentFor(me, body.TargetUserID); ok {
		writeResult(w, http.StatusOK, "appointment already confirmed", existing)
		return
	}
	a := client.Appointment{
		ID:        uuid.NewString(),
		User1:     s.data.accounts[me].postUser(),
		User2:     s.data.accounts[body.TargetUserID].postUser(),
		Date:      body.Date,
		StartTime: body.StartTime,
		EndTime:   body.EndTime,
	}
	s.data.appointments = append(s.data.appointments, a)
	delete(s.data.availability, pair(me, body.TargetUserID))
	writeResult(w, http.StatusCreated, "appointment confirmed", a)
}

func (s *Server) handleAppointments(w http.ResponseWriter, r *http.Request) {
	me := userFrom(r.Context())
	s.data.mu.Lock()
	out := []client.Appointment{}
	for _, a := range s.data.appointments {
		if a.Involves(me) {
			out = append(out, a)
		}
	}
	s.data.mu.Unlock()
	writeResult(w, http.StatusOK, "", out)
}

func (s *Server) handleScheduleStatus(w http.ResponseWriter, r *http.Request) {
	me := userFrom(r.Context())
	target := mux.Vars(r)["id"]

	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	if a, ok := s.data.appointmentFor(me, target); ok {
		writeResult(w, http.StatusOK, "", client.ScheduleStatus{Type: client.ScheduleAppointment, Data: &a})
		return
	}
	avail := s.data.availability[pair(me, target)]
	_, partner := avail[target]
	writeResult(w, http.StatusOK, "", client.ScheduleStatus{
		Type:                client.SchedulePendingAvailability,
		MyAvailability:      avail[me],
		PartnerHasSubmitted: partner,
	})
}
