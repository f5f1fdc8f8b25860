package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewRodDriver_Defaults(t *testing.T) {
	d := NewRodDriver(RodConfig{})
	if d.Name() != "rod" {
		t.Errorf("Name() = %q, want rod", d.Name())
	}
	if d.cfg.StableWait != 300*time.Millisecond {
		t.Errorf("StableWait = %v, want 300ms", d.cfg.StableWait)
	}
	if got := NewRodDriver(RodConfig{StableWait: time.Second}).cfg.StableWait; got != time.Second {
		t.Errorf("explicit StableWait overridden: %v", got)
	}
}

func TestRodDriver_LaunchExpiredContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), -time.Second)
	defer cancel()
	if _, err := NewRodDriver(RodConfig{}).Launch(ctx, LaunchOptions{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Launch past its deadline: err = %v, want DeadlineExceeded", err)
	}
}
