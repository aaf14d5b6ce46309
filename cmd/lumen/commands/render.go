package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfluke/lumen/gpu"
	"github.com/openfluke/lumen/kernels"
	"github.com/openfluke/lumen/logging"
	"github.com/openfluke/lumen/present"
	"github.com/openfluke/lumen/scene"
)

var renderCmd = &cobra.Command{
	Use:   "render [scene.json]",
	Short: "Render a scene to an image",
	Long: `Render a scene to an image file. Without a scene argument the scene
from the configuration is used, or the built-in demo scene if none is set.
The output format follows the file extension (png, jpg, bmp, tiff).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRender,
}

func init() {
	f := renderCmd.Flags()
	f.IntP("width", "W", 0, "image width")
	f.IntP("height", "H", 0, "image height")
	f.IntP("frames", "n", 0, "frames to accumulate")
	f.Int("samples", 0, "samples per pixel per frame")
	f.Int("cells", 0, "grid cells per axis")
	f.Bool("cull", false, "drop triangles outside the view frustum before building the grid")
	f.Uint64("seed", 0, "random seed (0 draws one)")
	f.String("kernel", "", "WGSL kernel file (default: embedded ray tracer)")
	f.StringP("output", "o", "", "output image path")
	f.Bool("strict", false, "fail the build when the WGSL front end rejects the kernel")
	rootCmd.AddCommand(renderCmd)
}

// applyRenderFlags copies explicitly set flags over the loaded config.
func applyRenderFlags(cmd *cobra.Command, args []string) {
	f := cmd.Flags()
	r := &cfg.Render
	if f.Changed("width") {
		r.Width, _ = f.GetInt("width")
	}
	if f.Changed("height") {
		r.Height, _ = f.GetInt("height")
	}
	if f.Changed("frames") {
		r.Frames, _ = f.GetInt("frames")
	}
	if f.Changed("samples") {
		r.Samples, _ = f.GetInt("samples")
	}
	if f.Changed("cells") {
		r.CellResolution, _ = f.GetInt("cells")
	}
	if f.Changed("cull") {
		r.Cull, _ = f.GetBool("cull")
	}
	if f.Changed("seed") {
		r.Seed, _ = f.GetUint64("seed")
	}
	if f.Changed("kernel") {
		r.Kernel, _ = f.GetString("kernel")
	}
	if f.Changed("output") {
		r.Output, _ = f.GetString("output")
	}
	if f.Changed("strict") {
		cfg.GPU.StrictValidation, _ = f.GetBool("strict")
	}
	if len(args) == 1 {
		r.Scene = args[0]
	}
}

func loadScene() (*scene.Scene, error) {
	r := cfg.Render
	var s *scene.Scene
	if r.Scene != "" {
		var err error
		if s, err = scene.Load(r.Scene); err != nil {
			return nil, err
		}
	} else {
		s = scene.Demo()
	}
	if s.Camera.IsZero() {
		s.Camera = scene.DefaultCamera()
	}
	if r.Cull {
		if n := s.Cull(s.Camera.Frustum(r.Width, r.Height)); n > 0 {
			logging.Debugf("culled %d triangles outside the view", n)
		}
	}
	if err := s.BuildGrid(r.CellResolution); err != nil {
		return nil, err
	}
	return s, nil
}

func runRender(cmd *cobra.Command, args []string) error {
	applyRenderFlags(cmd, args)
	if err := cfg.Validate(); err != nil {
		return err
	}
	r := cfg.Render
	log := logging.Get()

	source, err := kernels.Source(r.Kernel)
	if err != nil {
		return err
	}
	sc, err := loadScene()
	if err != nil {
		return err
	}
	if err := sc.Validate(); err != nil {
		return fmt.Errorf("scene: %w", err)
	}
	log.Infof("scene: %d triangles, %d cells, %d indices", len(sc.Triangles), len(sc.Cells), len(sc.Indices))

	platform, err := gpu.NewWebGPUPlatform()
	if err != nil {
		return err
	}
	defer platform.Release()

	opts := []gpu.Option{
		gpu.WithLogger(log),
	}
	if r.Seed != 0 {
		opts = append(opts, gpu.WithSeed(r.Seed))
	}
	if cfg.GPU.StrictValidation {
		opts = append(opts, gpu.WithStrictValidation())
	}

	c := gpu.NewContext(platform, source, r.Width, r.Height, opts...)
	defer c.Close()
	if !c.Valid() {
		return c.Err()
	}
	log.Infof("rendering on %s", c.Devices()[0].Summary())
	if err := c.SetupBuffers(sc); err != nil {
		return err
	}

	if err := c.SetArgument(gpu.SlotCamera, gpu.UniformArg(sc.Camera.Uniform(r.Width, r.Height))); err != nil {
		return err
	}
	if err := c.SetArgument(gpu.SlotSamples, gpu.Uint32Arg(uint32(r.Samples))); err != nil {
		return err
	}

	ctx := cmd.Context()
	start := time.Now()
	for frame := range r.Frames {
		if err := c.SetArgument(gpu.SlotFrame, gpu.Uint32Arg(uint32(frame))); err != nil {
			return err
		}
		if err := c.Execute(ctx); err != nil {
			return fmt.Errorf("frame %d: %w", frame, err)
		}
	}
	elapsed := time.Since(start)
	log.WithField("session", c.Session()).Infof("%d frames in %s (%.1f ms/frame)",
		r.Frames, elapsed.Round(time.Millisecond), float64(elapsed.Microseconds())/1000/float64(r.Frames))

	err = c.WithPixels(ctx, func(px []gpu.Pixel) error {
		img, err := present.Image(r.Width, r.Height, px, r.Gamma)
		if err != nil {
			return err
		}
		return present.Save(r.Output, img)
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%dx%d, %d frames)\n", r.Output, r.Width, r.Height, r.Frames)
	return nil
}
