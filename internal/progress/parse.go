package progress

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// ffmpeg stats lines pad values after '=' ("frame=  120 fps= 30").
	pairPattern      = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*)=\s*(\S+)`)
	timestampPattern = regexp.MustCompile(`^(\d+):(\d{2}):(\d{2}(?:\.\d+)?)$`)
)

// Parse decodes one chunk of transcoder status text. It returns false when
// the chunk carries no usable elapsed timestamp (partial lines, N/A values,
// unrelated log output). Parse has no state: the same chunk always yields the
// same snapshot.
func Parse(chunk string, total time.Duration) (Snapshot, bool) {
	var (
		elapsed  time.Duration
		haveTime bool
		micros   int64
		haveUS   bool
		speed    = 1.0
		done     bool
	)

	for _, line := range strings.Split(chunk, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		for _, match := range pairPattern.FindAllStringSubmatch(line, -1) {
			key, value := strings.ToLower(match[1]), strings.TrimSpace(match[2])
			switch key {
			case "out_time", "time":
				if d, ok := ParseTimestamp(value); ok {
					elapsed, haveTime = d, true
				}
			case "out_time_us", "out_time_ms":
				// ffmpeg reports microseconds under both keys.
				if v, err := strconv.ParseInt(value, 10, 64); err == nil && v >= 0 {
					micros, haveUS = v, true
				}
			case "speed":
				speed = parseSpeed(value)
			case "progress":
				done = value == "end"
			}
		}
	}

	if !haveTime && haveUS {
		elapsed, haveTime = time.Duration(micros)*time.Microsecond, true
	}
	if !haveTime {
		return Snapshot{}, false
	}

	snap := Snapshot{
		Elapsed: elapsed,
		Total:   total,
		Speed:   speed,
		Done:    done,
	}
	if total > 0 {
		snap.Percent = clampPercent(float64(elapsed) / float64(total) * 100)
		remaining := total - elapsed
		if remaining < 0 {
			remaining = 0
		}
		divisor := speed
		if divisor < MinSpeed {
			divisor = MinSpeed
		}
		snap.ETA = time.Duration(float64(remaining) / divisor)
	}
	return snap, true
}

// ParseTimestamp converts HH:MM:SS(.fff) into a duration.
func ParseTimestamp(value string) (time.Duration, bool) {
	match := timestampPattern.FindStringSubmatch(strings.TrimSpace(value))
	if match == nil {
		return 0, false
	}
	hours, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, false
	}
	minutes, err := strconv.Atoi(match[2])
	if err != nil || minutes > 59 {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(match[3], 64)
	if err != nil || seconds >= 60 {
		return 0, false
	}
	total := time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute
	total += time.Duration(seconds * float64(time.Second))
	return total, true
}

// parseSpeed reads "1.25x"; anything unparsable (including N/A) is 1x.
func parseSpeed(value string) float64 {
	value = strings.TrimSuffix(strings.TrimSpace(value), "x")
	v, err := strconv.ParseFloat(value, 64)
	if err != nil || v < 0 {
		return 1
	}
	return v
}
