package compare

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Variant tells which module produced an output file.
type Variant string

const (
	// Native is the output of the unpatched module.
	Native Variant = "bin"
	// Conformant is the output of the patched module.
	Conformant Variant = "binc"
)

// ResultsName is the report written by Run; Scan skips it.
const ResultsName = "results.txt"

// File identifies one device output.
type File struct {
	Path     string
	Problem  string
	VendorID uint32
	DeviceID uint32
	Variant  Variant
}

// FileName returns "<problem>_<vendor>_<device>.<bin|binc>".
func FileName(problem string, vendor, device uint32, v Variant) string {
	return fmt.Sprintf("%s_%d_%d.%s", problem, vendor, device, v)
}

// ParseName splits an output file name. ok is false for anything that does
// not follow the naming convention.
func ParseName(name string) (File, bool) {
	base := filepath.Base(name)
	ext := filepath.Ext(base)
	v := Variant(strings.TrimPrefix(ext, "."))
	if v != Native && v != Conformant {
		return File{}, false
	}
	parts := strings.Split(strings.TrimSuffix(base, ext), "_")
	if len(parts) != 3 || parts[0] == "" {
		return File{}, false
	}
	vendor, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return File{}, false
	}
	device, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return File{}, false
	}
	return File{
		Path:     name,
		Problem:  parts[0],
		VendorID: uint32(vendor),
		DeviceID: uint32(device),
		Variant:  v,
	}, true
}
