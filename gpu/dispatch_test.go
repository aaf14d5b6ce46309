package gpu

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestWorkgroups(t *testing.T) {
	tests := []struct{ n, wg, want uint32 }{
		{1, 64, 1},
		{64, 64, 1},
		{65, 64, 2},
		{16, 64, 1},
		{640 * 480, 64, 4800},
		{5, 0, 0},
	}
	for _, tt := range tests {
		if got := Workgroups(tt.n, tt.wg); got != tt.want {
			t.Errorf("Workgroups(%d, %d) = %d, want %d", tt.n, tt.wg, got, tt.want)
		}
	}
}

func TestExecuteSinglePixel(t *testing.T) {
	p := newFakePlatform(1)
	c := readyContext(t, p, 1, 1)

	if err := c.Execute(t.Context()); err != nil {
		t.Fatal(err)
	}
	if p.invoked != 1 {
		t.Errorf("kernel invoked %d times, want 1", p.invoked)
	}
	if c.Frames() != 1 {
		t.Errorf("frames = %d, want 1", c.Frames())
	}
}

func TestExecuteRequiresAllSlots(t *testing.T) {
	p := newFakePlatform(1)
	c := newTestContext(t, p, 2, 2)
	if err := c.SetupBuffers(nil); err != nil {
		t.Fatal(err)
	}

	err := c.Execute(t.Context())
	if !errors.Is(err, ErrDispatch) {
		t.Fatalf("Execute = %v, want ErrDispatch", err)
	}
	if !strings.Contains(err.Error(), "4:camera") {
		t.Errorf("error does not name the unbound slot: %v", err)
	}
	if p.calls["Dispatch"] != 0 {
		t.Error("dispatch submitted with unbound slots")
	}
	if !c.Valid() || len(c.Failures()) != 0 {
		t.Error("dispatch refusal changed the construction state")
	}
}

func TestExecuteSubmitFailure(t *testing.T) {
	p := newFakePlatform(1)
	c := readyContext(t, p, 2, 2)
	p.dispatchErr = errors.New("device lost")

	err := c.Execute(t.Context())
	var f *Failure
	if !errors.As(err, &f) || f.Kind != KindDispatch {
		t.Fatalf("Execute = %v, want a dispatch Failure", err)
	}
	if !errors.Is(err, p.dispatchErr) {
		t.Error("cause not wrapped")
	}
	if c.Frames() != 0 {
		t.Errorf("frames = %d after a failed dispatch", c.Frames())
	}

	p.dispatchErr = nil
	if err := c.Execute(t.Context()); err != nil {
		t.Errorf("retry after dispatch failure: %v", err)
	}
}

func TestExecuteWorkgroupLimit(t *testing.T) {
	p := newFakePlatform(1)
	p.devices[0].(*fakeDevice).report.Limits.MaxComputeWorkgroupsPerDimension = 1
	c := readyContext(t, p, 16, 8)

	if err := c.Execute(t.Context()); !errors.Is(err, ErrDispatch) {
		t.Errorf("Execute = %v, want ErrDispatch", err)
	}
	if p.calls["Dispatch"] != 0 {
		t.Error("oversized dispatch submitted")
	}
}

func TestExecuteCancelled(t *testing.T) {
	c := readyContext(t, newFakePlatform(1), 2, 2)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	if err := c.Execute(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Execute = %v, want context.Canceled", err)
	}
}

func TestExecuteRefusedWhileMapped(t *testing.T) {
	c := readyContext(t, newFakePlatform(1), 2, 2)
	m, err := c.MapPixels(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	err = c.Execute(t.Context())
	if !errors.Is(err, ErrPixelsMapped) || !errors.Is(err, ErrDispatch) {
		t.Errorf("Execute while mapped = %v, want ErrPixelsMapped", err)
	}
	if err := c.UnmapPixels(m); err != nil {
		t.Fatal(err)
	}
	if err := c.Execute(t.Context()); err != nil {
		t.Errorf("Execute after unmap: %v", err)
	}
}
