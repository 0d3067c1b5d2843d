package engine

import "fmt"

// PCI vendor ids of the vendors the report knows by name.
const (
	VendorAMD    uint32 = 4098
	VendorNVIDIA uint32 = 4318
	VendorIntel  uint32 = 32902
)

var vendorNames = map[uint32]string{
	VendorAMD:    "AMD",
	VendorNVIDIA: "NVIDIA",
	VendorIntel:  "Intel",
}

type deviceKey struct {
	vendor, device uint32
}

var deviceNames = map[deviceKey]string{
	{VendorAMD, 29695}:   "Radeon RX 6600 XT",
	{VendorNVIDIA, 9988}: "GeForce RTX 4080",
	{VendorIntel, 22176}: "Arc A770 Graphics",
}

// VendorName returns the vendor name, or the id in hex when unknown.
func VendorName(vendor uint32) string {
	if name, ok := vendorNames[vendor]; ok {
		return name
	}
	return fmt.Sprintf("0x%04x", vendor)
}

// DeviceName names a device as "<vendor> <model>". Unknown models fall back
// to the hex device id; vendor 0 device 0 is the reference engine.
func DeviceName(vendor, device uint32) string {
	if vendor == 0 && device == 0 {
		return ReferenceName
	}
	if name, ok := deviceNames[deviceKey{vendor, device}]; ok {
		return VendorName(vendor) + " " + name
	}
	return fmt.Sprintf("%s 0x%04x", VendorName(vendor), device)
}
