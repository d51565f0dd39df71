package game

import (
	"fmt"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
)

// ActionType enumerates the reducers a client may dispatch.
type ActionType string

const (
	ActionTick               ActionType = "tick"
	ActionTogglePause        ActionType = "togglePause"
	ActionSetPlayerPosition  ActionType = "setPlayerPosition"
	ActionDamage             ActionType = "damage"
	ActionHeal               ActionType = "heal"
	ActionCollect            ActionType = "collect"
	ActionToggleAimIndicator ActionType = "toggleAimIndicator"
	ActionSetTarget          ActionType = "setTarget"
	ActionReset              ActionType = "reset"
	ActionMove               ActionType = "move"
)

// Action is one state change request. Only the fields used by Type are
// read.
type Action struct {
	Type     ActionType  `json:"type"`
	Delta    float64     `json:"delta,omitempty"`
	Amount   float64     `json:"amount,omitempty"`
	Loot     LootKind    `json:"loot,omitempty"`
	Position *mgl64.Vec3 `json:"position,omitempty"`
	Input    *Input      `json:"input,omitempty"`
}

// Apply runs the reducer named by the action against s.
func Apply(s State, a Action) (State, error) {
	switch a.Type {
	case ActionTick:
		return Tick(s, a.Delta), nil
	case ActionTogglePause:
		return TogglePause(s), nil
	case ActionSetPlayerPosition:
		if a.Position == nil {
			return s, fmt.Errorf("%s: position is required", a.Type)
		}
		return SetPlayerPosition(s, *a.Position), nil
	case ActionDamage:
		return Damage(s, a.Amount), nil
	case ActionHeal:
		return Heal(s, a.Amount), nil
	case ActionCollect:
		return Collect(s, a.Loot, int(a.Amount))
	case ActionToggleAimIndicator:
		return ToggleAimIndicator(s), nil
	case ActionSetTarget:
		return SetTarget(s, a.Position), nil
	case ActionReset:
		return Reset(s), nil
	}
	return s, fmt.Errorf("unknown action %q", a.Type)
}

// Controller owns one session's state. All changes go through Dispatch
// or Step so readers always see a consistent snapshot.
type Controller struct {
	mu    sync.RWMutex
	state State
	body  Body
}

func NewController() *Controller {
	return &Controller{
		state: Initial(),
		body:  Body{Position: SpawnPosition, Grounded: true},
	}
}

// Dispatch applies one action and returns the resulting snapshot. A failed
// action leaves the state untouched.
func (c *Controller) Dispatch(a Action) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if a.Type == ActionMove {
		if a.Input == nil {
			return c.snapshotLocked(), fmt.Errorf("%s: input is required", a.Type)
		}
		c.stepLocked(*a.Input, a.Delta)
		return c.snapshotLocked(), nil
	}

	next, err := Apply(c.state, a)
	if err != nil {
		return c.snapshotLocked(), err
	}
	if a.Type == ActionSetPlayerPosition || a.Type == ActionReset {
		c.body = Body{Position: next.Player.Position, Grounded: next.Player.Position[1] <= restY}
	}
	c.state = next
	return c.snapshotLocked(), nil
}

// Step advances one frame: physics first, then the clock. Paused sessions
// do not move.
func (c *Controller) Step(in Input, dt float64) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stepLocked(in, dt)
	return c.snapshotLocked()
}

func (c *Controller) stepLocked(in Input, dt float64) {
	if c.state.Paused {
		return
	}
	c.body = StepPlayer(c.body, in, dt)
	c.state = SetPlayerPosition(c.state, c.body.Position)
	c.state = Tick(c.state, dt)
}

func (c *Controller) Snapshot() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

// snapshotLocked copies the state so callers cannot reach the target.
func (c *Controller) snapshotLocked() State {
	s := c.state
	if s.Target != nil {
		t := *s.Target
		s.Target = &t
	}
	return s
}

func (c *Controller) Body() Body {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.body
}
