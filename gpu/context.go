package gpu

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/openfluke/lumen/detector"
	"github.com/openfluke/lumen/logging"
)

// Context owns the device set association, the compiled program, the kernel
// handle, the command queue and every device buffer. It is not safe for
// concurrent use.
//
// Construction never aborts: every step is attempted and failures are
// recorded. Once any construction or allocation step has failed the context
// stays invalid and device-touching operations return ErrNotUsable.
type Context struct {
	session string
	log     logrus.FieldLogger
	opts    options

	width  int
	height int

	devices []Device
	runtime Runtime
	module  Module
	kernel  *Kernel
	queue   Queue

	buffers [numRoles]*Buffer
	mapped  *PixelMap
	frames  uint64

	valid    bool
	closed   bool
	failures []*Failure
}

// Option configures NewContext.
type Option func(*options)

type options struct {
	seed    uint64
	seeded  bool
	strict  bool
	logger  logrus.FieldLogger
	session string
}

// WithSeed makes the per-pixel random seeds reproducible.
func WithSeed(seed uint64) Option {
	return func(o *options) { o.seed, o.seeded = seed, true }
}

// WithStrictValidation turns WGSL pre-validation diagnostics into build failures.
func WithStrictValidation() Option {
	return func(o *options) { o.strict = true }
}

// WithLogger replaces the diagnostic logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) { o.logger = l }
}

// WithSessionID tags every diagnostic of the context.
func WithSessionID(id string) Option {
	return func(o *options) { o.session = id }
}

// NewContext enumerates the devices of platform, creates the execution
// context, builds source, extracts the "main" kernel and opens a queue on the
// first device. The dispatch workgroup size is the @workgroup_size declared
// on "main". The result is always non-nil; check Valid or Err.
func NewContext(platform Platform, source string, width, height int, opts ...Option) *Context {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.Get()
	}
	if o.session == "" {
		o.session = newSessionID()
	}

	c := &Context{
		session: o.session,
		log:     o.logger.WithField("session", o.session),
		opts:    o,
		width:   width,
		height:  height,
		valid:   true,
	}

	if width <= 0 || height <= 0 {
		c.fail("dimensions", KindArgument, fmt.Sprintf("image must be at least 1x1, got %dx%d", width, height), nil)
	}
	if platform == nil {
		c.fail("devices", KindNoDevices, "no platform supplied", nil)
		return c
	}

	c.log.Infof("Platform: %s", platform.Name())

	// Each step runs when the objects it needs exist, regardless of
	// failures recorded by independent earlier steps.
	c.enumerateDevices(platform)
	if len(c.devices) > 0 {
		c.createRuntime(platform)
	}
	if c.runtime != nil {
		c.buildProgram(source)
	}
	if c.module != nil {
		c.extractKernel(source)
	}
	if c.runtime != nil {
		c.createQueue()
	}

	if c.valid {
		c.log.WithFields(logrus.Fields{
			"width":  width,
			"height": height,
			"device": c.devices[0].Info().Name,
		}).Info("compute context ready")
	}
	return c
}

func newSessionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (c *Context) enumerateDevices(platform Platform) {
	devices, err := platform.Devices()
	if err != nil {
		c.fail("devices", KindNoDevices, "device enumeration failed", err)
		return
	}
	if len(devices) == 0 {
		c.fail("devices", KindNoDevices, "No devices found!", nil)
		return
	}
	c.devices = devices

	for i, d := range devices {
		info := d.Info()
		c.log.WithFields(logrus.Fields{
			"index":              i,
			"backend":            info.Backend,
			"type":               info.AdapterType,
			"vendor":             info.VendorID,
			"max_workgroup_x":    info.Limits.MaxComputeWorkgroupSizeX,
			"max_invocations":    info.Limits.MaxComputeInvocationsPerWorkgroup,
			"max_buffer_size":    info.Limits.MaxBufferSize,
			"max_storage_buffer": info.Limits.MaxStorageBufferBindingSize,
		}).Infof("Device: %s", info.Name)
	}
	if len(devices) > 1 {
		c.log.Debugf("%d devices enumerated; only device 0 receives work", len(devices))
	}
}

func (c *Context) createRuntime(platform Platform) {
	rt, err := platform.CreateRuntime(c.devices)
	if err != nil {
		c.fail("context", KindContextCreate, "Cannot create context!", err)
		return
	}
	if rt == nil {
		c.fail("context", KindContextCreate, "platform returned no runtime", nil)
		return
	}
	c.runtime = rt
}

func (c *Context) buildProgram(source string) {
	if diag := validateSource(source); diag != nil {
		c.log.WithError(diag).Warn("kernel source pre-validation reported problems")
		if c.opts.strict && !errors.Is(diag, errUnsupported) {
			c.fail("validate", KindBuild, "WGSL validation failed", diag)
		}
	}

	module, buildLog, err := c.runtime.BuildProgram(source, c.devices)
	if err != nil {
		c.fail("build", KindBuild, buildLog, err)
	} else {
		c.module = module
	}
	if buildLog != "" {
		c.log.WithField("device", c.devices[0].Info().Name).Info(buildLog)
	}
}

func (c *Context) extractKernel(source string) {
	wg, err := workgroupSize(source, EntryPoint)
	if err != nil {
		c.fail("kernel", KindKernel, "Cannot read workgroup size!", err)
		return
	}
	pipeline, err := c.module.EntryPoint(EntryPoint, Layout())
	if err != nil {
		c.fail("kernel", KindKernel, "Cannot create kernel!", err)
		return
	}
	c.kernel = newKernel(EntryPoint, pipeline, wg)

	lim := c.devices[0].Info().Limits
	if lim.MaxComputeWorkgroupSizeX != 0 && wg > lim.MaxComputeWorkgroupSizeX {
		c.log.Warnf("workgroup size %d exceeds device limit %d", wg, lim.MaxComputeWorkgroupSizeX)
	}
}

func (c *Context) createQueue() {
	q, err := c.runtime.CreateQueue(c.devices[0])
	if err != nil {
		c.fail("queue", KindQueue, "Cannot create queue!", err)
		return
	}
	c.queue = q
}

// fail records a failed step and downgrades validity. Validity never
// goes back up.
func (c *Context) fail(step string, kind Kind, msg string, err error) *Failure {
	f := &Failure{Step: step, Kind: kind, Message: msg, Err: err}
	c.failures = append(c.failures, f)
	c.valid = false
	c.log.WithField("step", step).Error(f.Error())
	return f
}

func (c *Context) usable() error {
	if c.closed {
		return ErrClosed
	}
	if !c.valid {
		return fmt.Errorf("%w: %w", ErrNotUsable, c.Err())
	}
	return nil
}

// Valid reports whether every construction and allocation step succeeded.
func (c *Context) Valid() bool { return c.valid }

// Err joins every recorded failure, or returns nil.
func (c *Context) Err() error {
	if len(c.failures) == 0 {
		return nil
	}
	errs := make([]error, len(c.failures))
	for i, f := range c.failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// Failures returns the recorded failures in the order they happened.
func (c *Context) Failures() []*Failure {
	out := make([]*Failure, len(c.failures))
	copy(out, c.failures)
	return out
}

func (c *Context) Session() string { return c.session }
func (c *Context) Width() int      { return c.width }
func (c *Context) Height() int     { return c.height }
func (c *Context) Kernel() *Kernel { return c.kernel }
func (c *Context) Frames() uint64  { return c.frames }
func (c *Context) NumDevices() int { return len(c.devices) }
func (c *Context) PixelCount() int { return c.width * c.height }

// Devices returns the capability report of every enumerated device.
func (c *Context) Devices() []detector.Report {
	out := make([]detector.Report, len(c.devices))
	for i, d := range c.devices {
		out[i] = d.Info()
	}
	return out
}

// Close releases buffers, kernel, queue, program and runtime, in that order.
// An outstanding pixel map is released first.
func (c *Context) Close() error {
	if c.closed {
		return nil
	}
	var errs []error
	if c.mapped != nil {
		if err := c.UnmapPixels(c.mapped); err != nil {
			errs = append(errs, err)
			c.mapped.pixels = nil
			c.mapped = nil
		}
	}
	c.releaseBuffers()
	if c.kernel != nil {
		c.kernel.release()
		c.kernel = nil
	}
	if c.queue != nil {
		c.queue.Release()
		c.queue = nil
	}
	if c.module != nil {
		c.module.Release()
		c.module = nil
	}
	if c.runtime != nil {
		c.runtime.Release()
		c.runtime = nil
	}
	c.closed = true
	c.log.Debug("compute context closed")
	return errors.Join(errs...)
}
