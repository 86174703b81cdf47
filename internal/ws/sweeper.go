package ws

import (
	"time"

	"github.com/rs/zerolog/log"
)

type SweeperConfig struct {
	ConnIdleTimeout time.Duration
	RoomIdleTimeout time.Duration
	Tick            time.Duration
}

// idler is implemented by connections that track when they last spoke.
type idler interface {
	LastSeen() time.Time
}

func StartSweeper(h *Hub, cfg SweeperConfig) func() {
	stop := make(chan struct{})

	go func() {
		ticker := time.NewTicker(cfg.Tick)
		defer ticker.Stop()

		for {
			select {
			case now := <-ticker.C:
				Sweep(h, cfg, now)
			case <-stop:
				return
			}
		}
	}()
	return func() { close(stop) }
}

// Sweep runs one pass: it drops connections idle past ConnIdleTimeout and
// forgets empty rooms idle past RoomIdleTimeout.
func Sweep(h *Hub, cfg SweeperConfig, now time.Time) {
	for code, r := range h.RoomSnapshot() {
		var toClose []Conn
		r.mu.Lock()
		for uid, c := range r.conns {
			ic, ok := c.(idler)
			if !ok || now.Sub(ic.LastSeen()) <= cfg.ConnIdleTimeout {
				continue
			}
			toClose = append(toClose, c)
			delete(r.conns, uid)
			r.setConnected(uid, false)
		}
		empty := len(r.conns) == 0
		last := r.lastActivity
		r.mu.Unlock()

		for _, c := range toClose {
			log.Info().Str("user", c.UserID()).Str("room", code).Msg("sweeper: closing idle connection")
			_ = c.Close()
		}
		if len(toClose) > 0 {
			r.BroadcastPresence()
			last = r.LastActivity()
		}

		if empty && now.Sub(last) > cfg.RoomIdleTimeout {
			if h.TryDeleteEmptyRoom(code) {
				log.Debug().Str("room", code).Msg("sweeper: dropped idle room")
			}
		}
	}
}
