package gpu

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gogpu/naga"
)

// workgroupAttr matches @workgroup_size(...) followed by any other
// attributes and the function it decorates.
var workgroupAttr = regexp.MustCompile(`@workgroup_size\s*\(([^)]*)\)((?:\s*@\w+(?:\s*\([^)]*\))?)*)\s*fn\s+(\w+)\s*\(`)

// errUnsupported marks sources naga could not check.
var errUnsupported = errors.New("naga cannot check this source")

// validateSource runs the kernel source through the naga WGSL front end.
// It returns nil when the source lowers cleanly. Features naga has not
// implemented yet are reported as unsupported rather than invalid.
func validateSource(source string) error {
	if strings.TrimSpace(source) == "" {
		return errors.New("empty kernel source")
	}
	if !strings.Contains(source, "fn "+EntryPoint) {
		return fmt.Errorf("no entry point %q in kernel source", EntryPoint)
	}
	if _, err := naga.Compile(source); err != nil {
		if unsupported(err) {
			return fmt.Errorf("%w: %w", errUnsupported, err)
		}
		return err
	}
	return nil
}

func unsupported(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "not yet implemented") || strings.Contains(msg, "not supported")
}

// WorkgroupSize returns the workgroup size the "main" entry point of source
// declares, as NewContext will dispatch it.
func WorkgroupSize(source string) (uint32, error) { return workgroupSize(source, EntryPoint) }

// workgroupSize returns the one-dimensional @workgroup_size declared on the
// entry point. Sizes given by constants or overrides are rejected.
func workgroupSize(source, entry string) (uint32, error) {
	for _, m := range workgroupAttr.FindAllStringSubmatch(source, -1) {
		if m[3] != entry {
			continue
		}
		parts := strings.Split(m[1], ",")
		if strings.TrimSpace(parts[len(parts)-1]) == "" {
			parts = parts[:len(parts)-1]
		}
		dims := make([]uint64, len(parts))
		for i, p := range parts {
			lit := strings.TrimRight(strings.TrimSpace(p), "ui")
			n, err := strconv.ParseUint(lit, 0, 32)
			if err != nil {
				return 0, fmt.Errorf("@workgroup_size(%s) of %s is not a literal", strings.TrimSpace(m[1]), entry)
			}
			dims[i] = n
		}
		if len(dims) == 0 || dims[0] == 0 {
			return 0, fmt.Errorf("@workgroup_size of %s must be positive", entry)
		}
		for _, d := range dims[1:] {
			if d != 1 {
				return 0, fmt.Errorf("@workgroup_size(%s) of %s is not one-dimensional", strings.TrimSpace(m[1]), entry)
			}
		}
		return uint32(dims[0]), nil
	}
	return 0, fmt.Errorf("no @workgroup_size on entry point %q", entry)
}
