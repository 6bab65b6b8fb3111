package overlay

// AvatarState is the animation state of one avatar.
type AvatarState string

const (
	AvatarIdle        AvatarState = "idle"
	AvatarWalking     AvatarState = "walking"
	AvatarSleeping    AvatarState = "sleeping"
	AvatarCelebrating AvatarState = "celebrating"
)

// Valid reports whether s is a known avatar state.
func (s AvatarState) Valid() bool {
	switch s {
	case AvatarIdle, AvatarWalking, AvatarSleeping, AvatarCelebrating:
		return true
	}
	return false
}

// AvatarMetrics is the rendered size and offset of an avatar sprite.
type AvatarMetrics struct {
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	OffsetX float64 `json:"offsetX"`
	OffsetY float64 `json:"offsetY"`
}

// Point is a position on the overlay canvas.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Direction is a heading in the food game.
type Direction string

const (
	DirectionUp    Direction = "up"
	DirectionDown  Direction = "down"
	DirectionLeft  Direction = "left"
	DirectionRight Direction = "right"
)

// Obstacle is a falling obstacle in the dodge game.
type Obstacle struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Speed  float64 `json:"speed"`
}

// GameFlags are the plain scalar fields shared by every mini-game. They are
// not reactive: changing them does not schedule persistence.
type GameFlags struct {
	Active    bool   `json:"active"`
	Started   bool   `json:"started"`
	Finished  bool   `json:"finished"`
	Winner    string `json:"winner"`
	StartTime int64  `json:"startTime"`
}
