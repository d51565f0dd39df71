// Package game holds the session state shared by the HUD and the loop:
// elapsed time, pause flag, targeting and the player's vitals and loot.
//
// State values are immutable snapshots. Reducers return a new State and
// never modify their input; the Controller owns the current snapshot.
package game

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

var ErrUnknownLoot = errors.New("unknown loot kind")

// LootKind names a collectible counter on the player.
type LootKind string

const (
	LootOptimizationOrbs LootKind = "optimizationOrbs"
	LootDataFragments    LootKind = "dataFragments"
	LootTextureShards    LootKind = "textureShards"
)

const (
	DefaultMaxHealth = 100
)

// SpawnPosition is where the player starts: on the ground plane with the
// body's half height above it.
var SpawnPosition = mgl64.Vec3{0, GroundY + PlayerHeight/2, 0}

type Player struct {
	Position         mgl64.Vec3 `json:"position"`
	Health           float64    `json:"health"`
	MaxHealth        float64    `json:"maxHealth"`
	OptimizationOrbs int        `json:"optimizationOrbs"`
	DataFragments    int        `json:"dataFragments"`
	TextureShards    int        `json:"textureShards"`
}

type State struct {
	// ElapsedTime is total game time in seconds.
	ElapsedTime      float64     `json:"elapsedTime"`
	Paused           bool        `json:"isPaused"`
	ShowAimIndicator bool        `json:"showAimIndicator"`
	Target           *mgl64.Vec3 `json:"targetPosition"`
	Player           Player      `json:"player"`
}

func initialPlayer() Player {
	return Player{
		Position:  SpawnPosition,
		Health:    DefaultMaxHealth,
		MaxHealth: DefaultMaxHealth,
	}
}

// Initial returns the state of a fresh session.
func Initial() State {
	return State{
		ShowAimIndicator: true,
		Player:           initialPlayer(),
	}
}

// Tick advances elapsed time. Paused sessions do not advance.
func Tick(s State, delta float64) State {
	if s.Paused || delta <= 0 {
		return s
	}
	s.ElapsedTime += delta
	return s
}

func TogglePause(s State) State {
	s.Paused = !s.Paused
	return s
}

func SetPlayerPosition(s State, pos mgl64.Vec3) State {
	s.Player.Position = pos
	return s
}

// Damage lowers health, never below zero.
func Damage(s State, amount float64) State {
	s.Player.Health -= amount
	if s.Player.Health < 0 {
		s.Player.Health = 0
	}
	return s
}

// Heal raises health, never above MaxHealth.
func Heal(s State, amount float64) State {
	s.Player.Health += amount
	if s.Player.Health > s.Player.MaxHealth {
		s.Player.Health = s.Player.MaxHealth
	}
	return s
}

// Collect adds amount to the named loot counter. An amount of zero counts
// as one pickup.
func Collect(s State, kind LootKind, amount int) (State, error) {
	if amount == 0 {
		amount = 1
	}
	if amount < 0 {
		return s, fmt.Errorf("collect %s: negative amount %d", kind, amount)
	}
	switch kind {
	case LootOptimizationOrbs:
		s.Player.OptimizationOrbs += amount
	case LootDataFragments:
		s.Player.DataFragments += amount
	case LootTextureShards:
		s.Player.TextureShards += amount
	default:
		return s, fmt.Errorf("%w %q", ErrUnknownLoot, kind)
	}
	return s, nil
}

func ToggleAimIndicator(s State) State {
	s.ShowAimIndicator = !s.ShowAimIndicator
	return s
}

// SetTarget sets the movement destination; nil clears it.
func SetTarget(s State, target *mgl64.Vec3) State {
	if target == nil {
		s.Target = nil
		return s
	}
	t := *target
	s.Target = &t
	return s
}

// Reset restores time, pause and player. Display preferences (aim
// indicator, target) survive a reset.
func Reset(s State) State {
	s.ElapsedTime = 0
	s.Paused = false
	s.Player = initialPlayer()
	return s
}
