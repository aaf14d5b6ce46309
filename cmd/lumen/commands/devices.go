package commands

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/openfluke/lumen/detector"
	"github.com/openfluke/lumen/gpu"
	"github.com/openfluke/lumen/kernels"
)

var devicesJSON bool

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List WebGPU adapters and their compute limits",
	RunE: func(cmd *cobra.Command, args []string) error {
		if devicesJSON {
			out, err := detector.DetectJSON()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		}
		reps, err := detector.Detect()
		if err != nil {
			return err
		}
		if len(reps) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no adapters found")
			return nil
		}
		wg, err := kernelWorkgroup()
		if err != nil {
			return err
		}
		writeDeviceTable(cmd.OutOrStdout(), reps, wg)
		return nil
	},
}

// kernelWorkgroup returns the workgroup size of the configured kernel.
func kernelWorkgroup() (uint32, error) {
	if cfg == nil || cfg.Render.Kernel == "" {
		return kernels.WorkgroupSize, nil
	}
	source, err := kernels.Source(cfg.Render.Kernel)
	if err != nil {
		return 0, err
	}
	return gpu.WorkgroupSize(source)
}

func init() {
	devicesCmd.Flags().BoolVar(&devicesJSON, "json", false, "print full reports as JSON")
	rootCmd.AddCommand(devicesCmd)
}

// writeDeviceTable lists the adapters. MAX IMAGE is the largest square image
// a kernel with workgroup size wg can cover in one dispatch.
func writeDeviceTable(w io.Writer, reps []detector.Report, wg uint32) {
	data := make([][]string, 0, len(reps))
	for _, r := range reps {
		data = append(data, []string{
			strconv.Itoa(r.Index),
			r.Name,
			r.Backend,
			r.AdapterType,
			r.VendorID,
			strconv.FormatUint(uint64(r.Limits.MaxComputeWorkgroupSizeX), 10),
			humanBytes(r.Limits.MaxStorageBufferBindingSize),
			strconv.FormatUint(uint64(detector.MaxSquareImage(r.Limits, wg)), 10),
		})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "NAME", "BACKEND", "TYPE", "VENDOR", "MAX WG X", "MAX STORAGE", "MAX IMAGE"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}

func humanBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
