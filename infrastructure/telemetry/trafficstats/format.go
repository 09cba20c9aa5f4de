package trafficstats

import "fmt"

func FormatRate(bytesPerSecond uint64) string {
	return format(float64(bytesPerSecond), "/s")
}

func FormatTotal(bytes uint64) string {
	return format(float64(bytes), "")
}

func format(value float64, suffix string) string {
	units := []string{"B", "KiB", "MiB", "GiB"}

	unitIdx := 0
	for value >= 1024 && unitIdx < len(units)-1 {
		value /= 1024
		unitIdx++
	}

	if unitIdx == 0 {
		return fmt.Sprintf("%.0f %s%s", value, units[unitIdx], suffix)
	}
	return fmt.Sprintf("%.1f %s%s", value, units[unitIdx], suffix)
}
