package gpu

import (
	"context"
	"fmt"
)

// Workgroups returns the number of workgroups covering n invocations.
func Workgroups(n, workgroupSize uint32) uint32 {
	if workgroupSize == 0 {
		return 0
	}
	return (n + workgroupSize - 1) / workgroupSize
}

// Execute runs the kernel once over width*height invocations and blocks
// until it has completed. Every slot must be bound, including the
// collaborator slots.
func (c *Context) Execute(ctx context.Context) error {
	if err := c.usable(); err != nil {
		return err
	}
	if c.mapped != nil {
		return ErrPixelsMapped
	}

	bindings, err := c.kernel.bindings()
	if err != nil {
		return &Failure{Step: "dispatch", Kind: KindDispatch, Err: err}
	}

	n := uint32(c.PixelCount())
	wg := c.kernel.workgroup
	groups := Workgroups(n, wg)
	if lim := c.devices[0].Info().Limits.MaxComputeWorkgroupsPerDimension; lim != 0 && groups > lim {
		return &Failure{
			Step:    "dispatch",
			Kind:    KindDispatch,
			Message: fmt.Sprintf("%d workgroups exceed the device limit of %d per dimension", groups, lim),
		}
	}

	if err := c.queue.Dispatch(ctx, c.kernel.pipeline, bindings, n, wg); err != nil {
		return &Failure{Step: "dispatch", Kind: KindDispatch, Err: err}
	}
	c.frames++
	c.log.WithField("frame", c.frames).Debugf("dispatched %d invocations in %d workgroups", n, groups)
	return nil
}
