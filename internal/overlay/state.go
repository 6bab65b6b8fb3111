package overlay

import (
	"sync"
	"time"

	"github.com/weiawesome/wes-io-live/overlay-service/internal/reactive"
)

// State is the overlay state of one streamer. Every reactive collection
// reports its changes to the owning handle, which schedules persistence.
type State struct {
	StreamerID string

	ActiveAvatars      *reactive.Set[string]
	AvatarLastActivity *reactive.Map[string, int64] // user id -> epoch ms
	AvatarStates       *reactive.Map[string, AvatarState]
	AvatarMetrics      *reactive.Map[string, AvatarMetrics]

	Race  *Race
	Food  *Food
	Dodge *Dodge

	mu                   sync.RWMutex
	avatarTimeoutSeconds int
	defaultTimeout       int

	touch func()
}

// NewState creates an empty state. touch is called after every change that
// must reach sibling processes; it may be nil.
func NewState(streamerID string, defaultTimeoutSeconds int, touch func()) *State {
	if touch == nil {
		touch = func() {}
	}
	return &State{
		StreamerID:           streamerID,
		ActiveAvatars:        reactive.NewSet[string](touch),
		AvatarLastActivity:   reactive.NewMap[string, int64](touch),
		AvatarStates:         reactive.NewMap[string, AvatarState](touch),
		AvatarMetrics:        reactive.NewMap[string, AvatarMetrics](touch),
		Race:                 newRace(touch),
		Food:                 newFood(touch),
		Dodge:                newDodge(touch),
		avatarTimeoutSeconds: defaultTimeoutSeconds,
		defaultTimeout:       defaultTimeoutSeconds,
		touch:                touch,
	}
}

// AvatarTimeoutSeconds returns how long an avatar may stay idle before it is
// despawned. A negative value disables expiry.
func (s *State) AvatarTimeoutSeconds() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.avatarTimeoutSeconds
}

// SetAvatarTimeoutSeconds changes the idle timeout and requests persistence
// when the value changed. Zero restores the default.
func (s *State) SetAvatarTimeoutSeconds(seconds int) {
	if seconds == 0 {
		seconds = s.defaultTimeout
	}
	s.mu.Lock()
	changed := s.avatarTimeoutSeconds != seconds
	s.avatarTimeoutSeconds = seconds
	s.mu.Unlock()

	if changed {
		s.touch()
	}
}

// MarkAvatarActive records activity for userID, spawning the avatar when it
// was not active. It reports whether the avatar was spawned.
func (s *State) MarkAvatarActive(userID string, now time.Time) bool {
	spawned := s.ActiveAvatars.Add(userID)
	s.AvatarLastActivity.Set(userID, now.UnixMilli())
	s.AvatarStates.Update(userID, func(current AvatarState, ok bool) AvatarState {
		if ok {
			return current
		}
		return AvatarIdle
	})
	return spawned
}

// RemoveAvatar despawns userID and forgets everything tracked for it. It
// reports whether the avatar was active.
func (s *State) RemoveAvatar(userID string) bool {
	removed := s.ActiveAvatars.Delete(userID)
	s.AvatarLastActivity.Delete(userID)
	s.AvatarStates.Delete(userID)
	s.AvatarMetrics.Delete(userID)
	return removed
}

// IdleAvatars returns the active avatars whose last activity is older than the
// idle timeout. Avatars without recorded activity count as idle.
func (s *State) IdleAvatars(now time.Time) []string {
	timeout := s.AvatarTimeoutSeconds()
	if timeout <= 0 {
		return nil
	}
	cutoff := now.Add(-time.Duration(timeout) * time.Second).UnixMilli()

	var idle []string
	s.ActiveAvatars.Range(func(userID string) bool {
		last, ok := s.AvatarLastActivity.Get(userID)
		if !ok || last < cutoff {
			idle = append(idle, userID)
		}
		return true
	})
	return idle
}

// Snapshot returns the serialisable projection of the state. Entries holding
// NaN or infinite coordinates are left out so the result always encodes.
func (s *State) Snapshot() *Snapshot {
	snap := &Snapshot{
		ActiveAvatars:        s.ActiveAvatars.Values(),
		AvatarLastActivity:   s.AvatarLastActivity.Entries(),
		AvatarStates:         s.AvatarStates.Entries(),
		AvatarTimeoutSeconds: s.AvatarTimeoutSeconds(),
		AvatarMetrics:        s.AvatarMetrics.Entries(),
		Race:                 s.Race.snapshot(),
		Food:                 s.Food.snapshot(),
		Dodge:                s.Dodge.snapshot(),
	}

	id := s.StreamerID
	snap.AvatarMetrics = finiteEntries(id, "avatarMetrics", snap.AvatarMetrics, AvatarMetrics.finite)
	snap.Race.Positions = finiteEntries(id, "race.positions", snap.Race.Positions, finiteFloat)
	snap.Race.Speeds = finiteEntries(id, "race.speeds", snap.Race.Speeds, finiteFloat)
	snap.Food.Items = finiteEntries(id, "food.foods", snap.Food.Items, Point.finite)
	snap.Dodge.Positions = finiteEntries(id, "dodge.positions", snap.Dodge.Positions, Point.finite)
	snap.Dodge.Obstacles = finiteEntries(id, "dodge.obstacles", snap.Dodge.Obstacles, Obstacle.finite)
	return snap
}

// ApplySnapshot replaces the whole state with snap. It never requests
// persistence: it is used for hydration and for snapshots received from
// sibling processes.
func (s *State) ApplySnapshot(snap *Snapshot) {
	s.ActiveAvatars.ReplaceAll(snap.ActiveAvatars)
	s.AvatarLastActivity.ReplaceAll(snap.AvatarLastActivity)
	s.AvatarStates.ReplaceAll(snap.AvatarStates)
	s.AvatarMetrics.ReplaceAll(snap.AvatarMetrics)

	timeout := snap.AvatarTimeoutSeconds
	if timeout == 0 {
		timeout = s.defaultTimeout
	}
	s.mu.Lock()
	s.avatarTimeoutSeconds = timeout
	s.mu.Unlock()

	s.Race.apply(snap.Race)
	s.Food.apply(snap.Food)
	s.Dodge.apply(snap.Dodge)
}
