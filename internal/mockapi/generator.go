package mockapi

import (
	"context"
	"math/rand"
	"time"

	"github.com/clique/tui/internal/notify"
)

// Generator periodically pushes random like and match notifications to
// users with a live websocket, so the client has something to show.
type Generator struct {
	server   *Server
	interval time.Duration
	matchPct int
	rng      *rand.Rand
}

// NewGenerator creates a generator that fires every interval. matchPct is
// the share of pushes, out of 100, that are matches rather than likes.
func NewGenerator(s *Server, interval time.Duration, matchPct int) *Generator {
	return &Generator{
		server:   s,
		interval: interval,
		matchPct: matchPct,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start runs the generator until ctx is cancelled.
func (g *Generator) Start(ctx context.Context) {
	go g.run(ctx)
}

func (g *Generator) run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.tick()
		}
	}
}

// tick sends one notification to every registered user from a random other
// account. It returns how many were sent.
func (g *Generator) tick() int {
	sent := 0
	for _, userID := range g.server.hub.RegisteredUsers() {
		sender := g.randomSender(userID)
		if sender == nil {
			continue
		}
		typ := string(notify.KindLike)
		if g.rng.Intn(100) < g.matchPct {
			typ = string(notify.KindMatch)
		}
		g.server.notify(userID, typ, sender)
		sent++
	}
	return sent
}

func (g *Generator) randomSender(exclude string) *notify.Sender {
	d := g.server.data
	d.mu.Lock()
	defer d.mu.Unlock()

	candidates := make([]*account, 0, len(d.accounts))
	for id, a := range d.accounts {
		if id != exclude {
			candidates = append(candidates, a)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	return candidates[g.rng.Intn(len(candidates))].sender()
}
