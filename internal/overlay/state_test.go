package overlay

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateMutationsRequestPersistence(t *testing.T) {
	touches := 0
	s := NewState("42", 300, func() { touches++ })

	tests := []struct {
		name   string
		mutate func()
		want   int
	}{
		{"add avatar", func() { s.ActiveAvatars.Add("u1") }, 1},
		{"add present avatar", func() { s.ActiveAvatars.Add("u1") }, 0},
		{"set metrics", func() { s.AvatarMetrics.Set("u1", AvatarMetrics{Width: 64, Height: 64}) }, 1},
		{"same metrics", func() { s.AvatarMetrics.Set("u1", AvatarMetrics{Width: 64, Height: 64}) }, 0},
		{"race participant", func() { s.Race.Participants.Add("u1") }, 1},
		{"food score", func() { s.Food.AddScore("u1", 3) }, 1},
		{"dodge obstacle", func() { s.Dodge.Obstacles.Set("o1", Obstacle{X: 1, Speed: 2}) }, 1},
		{"game flags", func() { s.Race.UpdateFlags(func(f *GameFlags) { f.Active = true }) }, 0},
		{"timeout unchanged", func() { s.SetAvatarTimeoutSeconds(300) }, 0},
		{"timeout changed", func() { s.SetAvatarTimeoutSeconds(60) }, 1},
		{"apply snapshot", func() { s.ApplySnapshot(&Snapshot{ActiveAvatars: []string{"u9"}}) }, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := touches
			tt.mutate()
			assert.Equal(t, tt.want, touches-before)
		})
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	src := NewState("42", 300, nil)
	now := time.UnixMilli(1_700_000_000_000)

	src.MarkAvatarActive("u1", now)
	src.MarkAvatarActive("u2", now)
	src.AvatarStates.Set("u2", AvatarWalking)
	src.AvatarMetrics.Set("u1", AvatarMetrics{Width: 32, Height: 48, OffsetY: -4})
	src.SetAvatarTimeoutSeconds(120)
	src.Race.Participants.Add("u1")
	src.Race.Positions.Set("u1", 12.5)
	src.Race.UpdateFlags(func(f *GameFlags) {
		f.Active = true
		f.StartTime = now.UnixMilli()
	})
	src.Food.Items.Set("f1", Point{X: 10, Y: 20})
	src.Food.Directions.Set("u2", DirectionLeft)
	src.Dodge.Participants.Add("u1")
	src.Dodge.Eliminated.Add("u1")

	data, err := json.Marshal(src.Snapshot())
	require.NoError(t, err)

	snap, err := DecodeSnapshot(data)
	require.NoError(t, err)

	dst := NewState("42", 300, func() { t.Fatal("apply must not request persistence") })
	dst.ApplySnapshot(snap)

	assert.Equal(t, src.Snapshot(), dst.Snapshot())
	assert.Equal(t, []string{"u1", "u2"}, dst.ActiveAvatars.Values())
	assert.Equal(t, 120, dst.AvatarTimeoutSeconds())
	assert.True(t, dst.Race.Flags().Active)
}

func TestSnapshotJSONShape(t *testing.T) {
	s := NewState("42", 300, nil)
	s.ActiveAvatars.Add("u1")
	s.AvatarStates.Set("u1", AvatarSleeping)

	data, err := json.Marshal(s.Snapshot())
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.JSONEq(t, `["u1"]`, string(raw["activeAvatars"]))
	assert.JSONEq(t, `[["u1","sleeping"]]`, string(raw["avatarStates"]))
	assert.JSONEq(t, `[]`, string(raw["avatarMetrics"]))
	assert.JSONEq(t, `300`, string(raw["avatarTimeoutSeconds"]))
	assert.Contains(t, string(raw["race"]), `"participants":[]`)
	assert.Contains(t, string(raw["food"]), `"foods":[]`)
}

func TestSnapshotSkipsNonFiniteValues(t *testing.T) {
	s := NewState("42", 300, nil)
	s.ActiveAvatars.Add("u1")
	s.AvatarMetrics.Set("u1", AvatarMetrics{Width: math.Inf(1)})
	s.AvatarMetrics.Set("u2", AvatarMetrics{Width: 32})
	s.Race.Positions.Set("u1", math.NaN())
	s.Race.Positions.Set("u2", 4)
	s.Race.Speeds.Set("u1", math.Inf(-1))
	s.Food.Items.Set("f1", Point{X: math.NaN()})
	s.Dodge.Positions.Set("u2", Point{X: math.Inf(1)})
	s.Dodge.Obstacles.Set("o1", Obstacle{Speed: math.NaN()})
	s.Dodge.Obstacles.Set("o2", Obstacle{Speed: 3})

	data, err := json.Marshal(s.Snapshot())
	require.NoError(t, err)

	snap, err := DecodeSnapshot(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, snap.ActiveAvatars)
	require.Len(t, snap.AvatarMetrics, 1)
	assert.Equal(t, "u2", snap.AvatarMetrics[0].Key)
	require.Len(t, snap.Race.Positions, 1)
	assert.Equal(t, "u2", snap.Race.Positions[0].Key)
	assert.Empty(t, snap.Race.Speeds)
	assert.Empty(t, snap.Food.Items)
	assert.Empty(t, snap.Dodge.Positions)
	require.Len(t, snap.Dodge.Obstacles, 1)
	assert.Equal(t, "o2", snap.Dodge.Obstacles[0].Key)

	// The live state is left untouched.
	assert.Equal(t, 2, s.Race.Positions.Len())
}

func TestApplySnapshotKeepsDefaultTimeout(t *testing.T) {
	s := NewState("42", 300, nil)
	s.SetAvatarTimeoutSeconds(30)

	s.ApplySnapshot(&Snapshot{})
	assert.Equal(t, 300, s.AvatarTimeoutSeconds())
}

func TestIdleAvatars(t *testing.T) {
	now := time.Now()
	s := NewState("42", 60, nil)

	s.MarkAvatarActive("fresh", now.Add(-10*time.Second))
	s.MarkAvatarActive("stale", now.Add(-2*time.Minute))
	s.ActiveAvatars.Add("unknown")

	assert.Equal(t, []string{"stale", "unknown"}, s.IdleAvatars(now))

	s.SetAvatarTimeoutSeconds(-1)
	assert.Empty(t, s.IdleAvatars(now))
}

func TestMarkAndRemoveAvatar(t *testing.T) {
	now := time.Now()
	s := NewState("42", 60, nil)

	assert.True(t, s.MarkAvatarActive("u1", now))
	s.AvatarStates.Set("u1", AvatarCelebrating)
	assert.False(t, s.MarkAvatarActive("u1", now.Add(time.Second)))

	state, _ := s.AvatarStates.Get("u1")
	assert.Equal(t, AvatarCelebrating, state, "activity keeps the current state")

	assert.True(t, s.RemoveAvatar("u1"))
	assert.False(t, s.RemoveAvatar("u1"))
	assert.False(t, s.AvatarLastActivity.Has("u1"))
	assert.False(t, s.AvatarStates.Has("u1"))
}

func TestGameReset(t *testing.T) {
	s := NewState("42", 60, nil)
	s.Dodge.Participants.Add("a")
	s.Dodge.Participants.Add("b")
	s.Dodge.Eliminated.Add("a")
	s.Dodge.UpdateFlags(func(f *GameFlags) { f.Started = true })

	assert.Equal(t, []string{"b"}, s.Dodge.Survivors())

	s.Dodge.Reset()
	assert.Equal(t, 0, s.Dodge.Participants.Len())
	assert.Equal(t, GameFlags{}, s.Dodge.Flags())
}

func TestAvatarStateValid(t *testing.T) {
	assert.True(t, AvatarWalking.Valid())
	assert.False(t, AvatarState("flying").Valid())
}
