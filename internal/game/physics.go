package game

import (
	"github.com/go-gl/mathgl/mgl64"
)

const (
	Gravity          = 30.0
	JumpForce        = 12.0
	MoveSpeed        = 8.0
	SprintMultiplier = 1.5
	GroundY          = 0.0
	PlayerHeight     = 1.0
)

// Input is the held movement keys for one frame.
type Input struct {
	Forward bool `json:"forward"`
	Back    bool `json:"back"`
	Left    bool `json:"left"`
	Right   bool `json:"right"`
	Sprint  bool `json:"sprint"`
	Jump    bool `json:"jump"`
}

// Body is the player's kinematic state.
type Body struct {
	Position mgl64.Vec3 `json:"position"`
	Velocity mgl64.Vec3 `json:"velocity"`
	Grounded bool       `json:"grounded"`
}

// restY is the body centre height when standing on the ground plane.
const restY = GroundY + PlayerHeight/2

// StepPlayer integrates one frame of movement on the flat ground plane.
// Forward is -Z. Diagonal input is normalised so it is not faster.
func StepPlayer(body Body, in Input, dt float64) Body {
	if dt <= 0 {
		return body
	}

	dir := mgl64.Vec3{}
	if in.Forward {
		dir[2]--
	}
	if in.Back {
		dir[2]++
	}
	if in.Left {
		dir[0]--
	}
	if in.Right {
		dir[0]++
	}
	speed := MoveSpeed
	if in.Sprint {
		speed *= SprintMultiplier
	}
	horizontal := mgl64.Vec3{}
	if dir.Len() > 0 {
		horizontal = dir.Normalize().Mul(speed)
	}
	body.Velocity[0] = horizontal[0]
	body.Velocity[2] = horizontal[2]

	if in.Jump && body.Grounded {
		body.Velocity[1] = JumpForce
		body.Grounded = false
	}
	if !body.Grounded {
		body.Velocity[1] -= Gravity * dt
	}

	body.Position = body.Position.Add(body.Velocity.Mul(dt))
	if body.Position[1] <= restY {
		body.Position[1] = restY
		body.Velocity[1] = 0
		body.Grounded = true
	}
	return body
}
