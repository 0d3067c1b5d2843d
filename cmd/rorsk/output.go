package main

import (
	"fmt"
	"io"
	"math"

	"github.com/fatih/color"
)

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	warnColor = color.New(color.FgYellow, color.Bold)
	failColor = color.New(color.FgRed, color.Bold)
	dimColor  = color.New(color.Faint)
	nameColor = color.New(color.FgCyan)
)

// floatBits renders a float32 as value, hex bits and sign/exponent/mantissa
// fields.
func floatBits(v float32) string {
	b := math.Float32bits(v)
	return fmt.Sprintf("%-14g 0x%08X  %01b %08b %023b", v, b, b>>31, (b>>23)&0xFF, b&0x7FFFFF)
}

func mustFprintf(out io.Writer, format string, args ...any) {
	if _, err := fmt.Fprintf(out, format, args...); err != nil {
		panic(err)
	}
}
