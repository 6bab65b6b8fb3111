package overlay

import (
	"sync"

	"github.com/weiawesome/wes-io-live/overlay-service/internal/reactive"
)

type gameFlags struct {
	mu sync.RWMutex
	v  GameFlags
}

// Flags returns a copy of the game flags.
func (f *gameFlags) Flags() GameFlags {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.v
}

// UpdateFlags mutates the flags in place. It does not request persistence;
// call Handle.Touch afterwards to replicate the change.
func (f *gameFlags) UpdateFlags(fn func(*GameFlags)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(&f.v)
}

func (f *gameFlags) setFlags(v GameFlags) {
	f.mu.Lock()
	f.v = v
	f.mu.Unlock()
}

// Race is the race mini-game.
type Race struct {
	gameFlags
	Participants *reactive.Set[string]
	Positions    *reactive.Map[string, float64]
	Speeds       *reactive.Map[string, float64]
}

func newRace(onChange func()) *Race {
	return &Race{
		Participants: reactive.NewSet[string](onChange),
		Positions:    reactive.NewMap[string, float64](onChange),
		Speeds:       reactive.NewMap[string, float64](onChange),
	}
}

// Reset clears the game back to its initial state.
func (g *Race) Reset() {
	g.setFlags(GameFlags{})
	g.Participants.Clear()
	g.Positions.Clear()
	g.Speeds.Clear()
}

// RaceSnapshot is the serialised form of Race.
type RaceSnapshot struct {
	GameFlags
	Participants []string                          `json:"participants"`
	Positions    []reactive.Entry[string, float64] `json:"positions"`
	Speeds       []reactive.Entry[string, float64] `json:"speeds"`
}

func (g *Race) snapshot() RaceSnapshot {
	return RaceSnapshot{
		GameFlags:    g.Flags(),
		Participants: g.Participants.Values(),
		Positions:    g.Positions.Entries(),
		Speeds:       g.Speeds.Entries(),
	}
}

func (g *Race) apply(s RaceSnapshot) {
	g.setFlags(s.GameFlags)
	g.Participants.ReplaceAll(s.Participants)
	g.Positions.ReplaceAll(s.Positions)
	g.Speeds.ReplaceAll(s.Speeds)
}

// Food is the food-collecting mini-game.
type Food struct {
	gameFlags
	Participants *reactive.Set[string]
	Scores       *reactive.Map[string, int]
	Directions   *reactive.Map[string, Direction]
	Items        *reactive.Map[string, Point]
}

func newFood(onChange func()) *Food {
	return &Food{
		Participants: reactive.NewSet[string](onChange),
		Scores:       reactive.NewMap[string, int](onChange),
		Directions:   reactive.NewMap[string, Direction](onChange),
		Items:        reactive.NewMap[string, Point](onChange),
	}
}

// Reset clears the game back to its initial state.
func (g *Food) Reset() {
	g.setFlags(GameFlags{})
	g.Participants.Clear()
	g.Scores.Clear()
	g.Directions.Clear()
	g.Items.Clear()
}

// AddScore adds delta to a participant's score.
func (g *Food) AddScore(userID string, delta int) bool {
	return g.Scores.Update(userID, func(current int, _ bool) int {
		return current + delta
	})
}

// FoodSnapshot is the serialised form of Food.
type FoodSnapshot struct {
	GameFlags
	Participants []string                            `json:"participants"`
	Scores       []reactive.Entry[string, int]       `json:"scores"`
	Directions   []reactive.Entry[string, Direction] `json:"directions"`
	Items        []reactive.Entry[string, Point]     `json:"foods"`
}

func (g *Food) snapshot() FoodSnapshot {
	return FoodSnapshot{
		GameFlags:    g.Flags(),
		Participants: g.Participants.Values(),
		Scores:       g.Scores.Entries(),
		Directions:   g.Directions.Entries(),
		Items:        g.Items.Entries(),
	}
}

func (g *Food) apply(s FoodSnapshot) {
	g.setFlags(s.GameFlags)
	g.Participants.ReplaceAll(s.Participants)
	g.Scores.ReplaceAll(s.Scores)
	g.Directions.ReplaceAll(s.Directions)
	g.Items.ReplaceAll(s.Items)
}

// Dodge is the obstacle-avoidance mini-game.
type Dodge struct {
	gameFlags
	Participants *reactive.Set[string]
	Positions    *reactive.Map[string, Point]
	Obstacles    *reactive.Map[string, Obstacle]
	Eliminated   *reactive.Set[string]
}

func newDodge(onChange func()) *Dodge {
	return &Dodge{
		Participants: reactive.NewSet[string](onChange),
		Positions:    reactive.NewMap[string, Point](onChange),
		Obstacles:    reactive.NewMap[string, Obstacle](onChange),
		Eliminated:   reactive.NewSet[string](onChange),
	}
}

// Reset clears the game back to its initial state.
func (g *Dodge) Reset() {
	g.setFlags(GameFlags{})
	g.Participants.Clear()
	g.Positions.Clear()
	g.Obstacles.Clear()
	g.Eliminated.Clear()
}

// Survivors returns the participants not yet eliminated, in join order.
func (g *Dodge) Survivors() []string {
	var out []string
	g.Participants.Range(func(id string) bool {
		if !g.Eliminated.Has(id) {
			out = append(out, id)
		}
		return true
	})
	return out
}

// DodgeSnapshot is the serialised form of Dodge.
type DodgeSnapshot struct {
	GameFlags
	Participants []string                           `json:"participants"`
	Positions    []reactive.Entry[string, Point]    `json:"positions"`
	Obstacles    []reactive.Entry[string, Obstacle] `json:"obstacles"`
	Eliminated   []string                           `json:"eliminated"`
}

func (g *Dodge) snapshot() DodgeSnapshot {
	return DodgeSnapshot{
		GameFlags:    g.Flags(),
		Participants: g.Participants.Values(),
		Positions:    g.Positions.Entries(),
		Obstacles:    g.Obstacles.Entries(),
		Eliminated:   g.Eliminated.Values(),
	}
}

func (g *Dodge) apply(s DodgeSnapshot) {
	g.setFlags(s.GameFlags)
	g.Participants.ReplaceAll(s.Participants)
	g.Positions.ReplaceAll(s.Positions)
	g.Obstacles.ReplaceAll(s.Obstacles)
	g.Eliminated.ReplaceAll(s.Eliminated)
}
