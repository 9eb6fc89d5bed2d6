package mockapi

import (
	"sort"
	"sync"
	"time"

	"github.com/clique/tui/internal/client"
	"github.com/clique/tui/internal/notify"
	"github.com/clique/tui/internal/session"
	"github.com/google/uuid"
)

// DefaultPassword is the password of every seeded account.
const DefaultPassword = "password"

type account struct {
	info     session.UserInfo
	password string
}

func (a *account) sender() *notify.Sender {
	return &notify.Sender{ID: a.info.ID, Name: a.info.Name, Avatar: a.info.Avatar}
}

func (a *account) postUser() client.PostUser {
	return client.PostUser{ID: a.info.ID, Name: a.info.Name, Avatar: a.info.Avatar}
}

type pairKey struct{ a, b string }

func pair(x, y string) pairKey {
	if x > y {
		x, y = y, x
	}
	return pairKey{x, y}
}

// data is the in-memory dataset behind the mock API.
type data struct {
	mu sync.Mutex

	accounts      map[string]*account
	byEmail       map[string]string
	pending       map[string]client.Registration
	likes         map[string]map[string]bool
	posts         []client.Post
	seen          map[string]map[string]bool
	notifications map[string][]client.NotificationRecord
	availability  map[pairKey]map[string][]client.Slot
	appointments  []client.Appointment
}

func newData() *data {
	return &data{
		accounts:      make(map[string]*account),
		byEmail:       make(map[string]string),
		pending:       make(map[string]client.Registration),
		likes:         make(map[string]map[string]bool),
		seen:          make(map[string]map[string]bool),
		notifications: make(map[string][]client.NotificationRecord),
		availability:  make(map[pairKey]map[string][]client.Slot),
	}
}

type seedUser struct {
	name, email, gender, bio string
	age                      int
}

var seedUsers = []seedUser{
	{"Ana", "ana@clique.test", "female", "Climber, **bad** at chess, good at coffee.", 27},
	{"Bo", "bo@clique.test", "male", "Weekend baker. Ask me about sourdough.", 30},
	{"Cy", "cy@clique.test", "other", "Synth nerd. Night owl.", 25},
	{"Dee", "dee@clique.test", "female", "Trail runner and *terrible* punster.", 29},
}

var seedPosts = map[string][]string{
	"bo@clique.test":  {"Fresh loaf out of the oven", "Who wants to go to the farmers market?"},
	"cy@clique.test":  {"New patch on the modular tonight", "Anyone up for a gig on Friday?"},
	"dee@clique.test": {"Ran 20k this morning", "Sunrise from the ridge"},
	"ana@clique.test": {"Bouldering session was brutal"},
}

// seed fills the dataset with a few accounts and posts. Bo already likes
// Ana, so Ana liking Bo completes a match.
func (d *data) seed(now time.Time) {
	for _, u := range seedUsers {
		d.addAccount(session.UserInfo{
			Name: u.name, Email: u.email, Gender: u.gender, Bio: u.bio, Age: u.age,
		}, DefaultPassword)
	}
	i := 0
	for _, u := range seedUsers {
		author := d.accounts[d.byEmail[u.email]]
		for _, content := range seedPosts[u.email] {
			i++
			d.posts = append(d.posts, client.Post{
				ID:        uuid.NewString(),
				User:      author.postUser(),
				Content:   content,
				CreatedAt: now.Add(-time.Duration(i) * time.Hour),
			})
		}
	}
	d.like(d.byEmail["bo@clique.test"], d.byEmail["ana@clique.test"])
}

func (d *data) addAccount(info session.UserInfo, password string) *account {
	info.ID = uuid.NewString()
	a := &account{info: info, password: password}
	d.accounts[info.ID] = a
	d.byEmail[info.Email] = info.ID
	return a
}

func (d *data) accountByEmail(email string) *account {
	id, ok := d.byEmail[email]
	if !ok {
		return nil
	}
	return d.accounts[id]
}

func (d *data) like(from, to string) {
	if d.likes[from] == nil {
		d.likes[from] = make(map[string]bool)
	}
	d.likes[from][to] = true
}

func (d *data) hasLiked(from, to string) bool {
	return d.likes[from][to]
}

func (d *data) matched(x, y string) bool {
	return d.hasLiked(x, y) && d.hasLiked(y, x)
}

func (d *data) profile(viewer string, a *account) client.Profile {
	return client.Profile{
		ID:          a.info.ID,
		Name:        a.info.Name,
		Age:         a.info.Age,
		Gender:      a.info.Gender,
		Bio:         a.info.Bio,
		Avatar:      a.info.Avatar,
		IsLikedByMe: d.hasLiked(viewer, a.info.ID),
	}
}

// profiles returns every account except viewer that passes keep, sorted by
// name.
func (d *data) profiles(viewer string, keep func(id string) bool) []client.Profile {
	out := []client.Profile{}
	for id, a := range d.accounts {
		if id == viewer || (keep != nil && !keep(id)) {
			continue
		}
		out = append(out, d.profile(viewer, a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (d *data) postsWhere(keep func(client.Post) bool) []client.Post {
	out := []client.Post{}
	for _, p := range d.posts {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (d *data) post(id string) (client.Post, bool) {
	for _, p := range d.posts {
		if p.ID == id {
			return p, true
		}
	}
	return client.Post{}, false
}

func (d *data) markSeen(userID, postID string) {
	if d.seen[userID] == nil {
		d.seen[userID] = make(map[string]bool)
	}
	d.seen[userID][postID] = true
}

func (d *data) appointmentFor(x, y string) (client.Appointment, bool) {
	for _, a := range d.appointments {
		if a.Involves(x) && a.Involves(y) {
			return a, true
		}
	}
	return client.Appointment{}, false
}

// commonSlot returns the first overlap between two availability lists.
// Times are zero-padded HH:MM, so they compare as strings.
func commonSlot(mine, theirs []client.Slot) (client.Slot, bool) {
	for _, a := range mine {
		for _, b := range theirs {
			if a.Date != b.Date {
				continue
			}
			start, end := a.StartTime, a.EndTime
			if b.StartTime > start {
				start = b.StartTime
			}
			if b.EndTime < end {
				end = b.EndTime
			}
			if start < end {
				return client.Slot{Date: a.Date, StartTime: start, EndTime: end}, true
			}
		}
	}
	return client.Slot{}, false
}
