package retention

import (
	"log/slog"

	"github.com/docker/go-units"
)

// parseSize converts the human readable size column (e.g. "77.8MB") to bytes.
// Unknown values are treated as 0 since the size is only informational
func parseSize(v string) int64 {
	if v == "" || v == "N/A" {
		return 0
	}
	size, err := units.FromHumanSize(v)
	if err != nil {
		slog.Debug("Could not parse image size.", "value", v, "err", err)
		return 0
	}
	return size
}

// HumanSize formats a size in bytes like the docker cli does
func HumanSize(size int64) string {
	return units.HumanSizeWithPrecision(float64(size), 3)
}

// TotalSize returns the sum of the image sizes
func TotalSize(records []ImageRecord) int64 {
	var total int64
	for _, r := range records {
		total += r.Size
	}
	return total
}
