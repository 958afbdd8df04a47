package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Metadata is what a probe can recover from a media file. Every field is
// optional: a probe that fails entirely or partially still yields a usable
// (possibly empty) value, the import flow fills in whatever is present.
type Metadata struct {
	Resolution *string
	Framerate  *float64
	Duration   *float64
}

func (m Metadata) Summary() string {
	parts := make([]string, 0, 3)
	if m.Resolution != nil {
		parts = append(parts, *m.Resolution)
	}
	if m.Framerate != nil {
		parts = append(parts, fmt.Sprintf("%.2f fps", *m.Framerate))
	}
	if m.Duration != nil {
		parts = append(parts, fmt.Sprintf("%.2f s", *m.Duration))
	}
	if len(parts) == 0 {
		return "no metadata available"
	}
	return strings.Join(parts, ", ")
}

// Prober is the boundary to the media-inspection tooling. The backend never
// parses video files itself.
type Prober interface {
	Probe(ctx context.Context, path string) (Metadata, error)
}

var execCommand = exec.CommandContext

const probeTimeout = 10 * time.Second

// FFProbe shells out to ffprobe. It is the production Prober; tests substitute
// a stub so no media tooling is required on CI.
type FFProbe struct{}

type ffprobeOutput struct {
	Streams []struct {
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (FFProbe) Probe(ctx context.Context, path string) (Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := execCommand(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		return Metadata{}, fmt.Errorf("ffprobe failed for %v: %w", path, err)
	}

	var probe ffprobeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return Metadata{}, fmt.Errorf("error parsing ffprobe output for %v: %w", path, err)
	}

	var meta Metadata
	if len(probe.Streams) > 0 {
		stream := probe.Streams[0]
		if stream.Width > 0 && stream.Height > 0 {
			resolution := fmt.Sprintf("%dx%d", stream.Width, stream.Height)
			meta.Resolution = &resolution
		}
		if framerate, ok := parseFrameRate(stream.RFrameRate); ok {
			meta.Framerate = &framerate
		}
	}
	if duration, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil && duration > 0 {
		meta.Duration = &duration
	}

	return meta, nil
}

// parseFrameRate handles ffprobe's fractional form, e.g. "30000/1001".
func parseFrameRate(rate string) (float64, bool) {
	if rate == "" || rate == "0/0" {
		return 0, false
	}

	num, den, found := strings.Cut(rate, "/")
	if !found {
		value, err := strconv.ParseFloat(rate, 64)
		return value, err == nil && value > 0
	}

	numerator, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, false
	}
	denominator, err := strconv.ParseFloat(den, 64)
	if err != nil || denominator == 0 {
		return 0, false
	}

	value := numerator / denominator
	return value, value > 0
}
