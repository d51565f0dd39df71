package game

import (
	"encoding/json"
	"math"
	"sync"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func TestControllerDispatch(t *testing.T) {
	c := NewController()

	steps := []struct {
		action Action
		check  func(State) bool
	}{
		{Action{Type: ActionDamage, Amount: 40}, func(s State) bool { return s.Player.Health == 60 }},
		{Action{Type: ActionHeal, Amount: 15}, func(s State) bool { return s.Player.Health == 75 }},
		{Action{Type: ActionCollect, Loot: LootDataFragments, Amount: 2}, func(s State) bool { return s.Player.DataFragments == 2 }},
		{Action{Type: ActionTick, Delta: 0.5}, func(s State) bool { return s.ElapsedTime == 0.5 }},
		{Action{Type: ActionToggleAimIndicator}, func(s State) bool { return !s.ShowAimIndicator }},
		{Action{Type: ActionSetTarget, Position: &mgl64.Vec3{3, 0, 3}}, func(s State) bool { return s.Target != nil && s.Target[0] == 3 }},
		{Action{Type: ActionTogglePause}, func(s State) bool { return s.Paused }},
		{Action{Type: ActionReset}, func(s State) bool { return s.Player.Health == 100 && !s.Paused && s.ElapsedTime == 0 }},
	}
	for _, step := range steps {
		got, err := c.Dispatch(step.action)
		if err != nil {
			t.Fatalf("Dispatch(%s): %v", step.action.Type, err)
		}
		if !step.check(got) {
			t.Fatalf("after %s state = %+v", step.action.Type, got)
		}
		if snap := c.Snapshot(); !step.check(snap) {
			t.Fatalf("snapshot after %s = %+v", step.action.Type, snap)
		}
	}
}

func TestControllerRejectsBadActions(t *testing.T) {
	c := NewController()
	before := c.Snapshot()
	bad := []Action{
		{Type: "fly"},
		{Type: ActionCollect, Loot: "gold"},
		{Type: ActionSetPlayerPosition},
		{Type: ActionMove},
	}
	for _, a := range bad {
		if _, err := c.Dispatch(a); err == nil {
			t.Fatalf("Dispatch(%+v) succeeded", a)
		}
	}
	if after := c.Snapshot(); after != before {
		t.Fatalf("failed actions changed state: %+v", after)
	}
}

func TestControllerActionsFromJSON(t *testing.T) {
	var a Action
	if err := json.Unmarshal([]byte(`{"type":"setPlayerPosition","position":[5,2,-3]}`), &a); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	c := NewController()
	s, err := c.Dispatch(a)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if s.Player.Position != (mgl64.Vec3{5, 2, -3}) {
		t.Fatalf("position = %v", s.Player.Position)
	}
	if c.Body().Grounded {
		t.Fatalf("body above ground reported grounded")
	}
}

func TestControllerStepMovesAndTicks(t *testing.T) {
	c := NewController()
	s := c.Step(Input{Right: true}, 0.5)
	if math.Abs(s.Player.Position[0]-MoveSpeed*0.5) > 1e-9 {
		t.Fatalf("x = %v", s.Player.Position[0])
	}
	if s.ElapsedTime != 0.5 {
		t.Fatalf("ElapsedTime = %v", s.ElapsedTime)
	}

	c.Dispatch(Action{Type: ActionTogglePause})
	paused := c.Step(Input{Right: true}, 0.5)
	if paused.Player.Position != s.Player.Position || paused.ElapsedTime != s.ElapsedTime {
		t.Fatalf("paused step changed state")
	}
}

func TestControllerConcurrentDispatch(t *testing.T) {
	c := NewController()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Dispatch(Action{Type: ActionCollect, Loot: LootOptimizationOrbs, Amount: 1})
			_ = c.Snapshot()
		}()
	}
	wg.Wait()
	if got := c.Snapshot().Player.OptimizationOrbs; got != 50 {
		t.Fatalf("OptimizationOrbs = %d, want 50", got)
	}
}
