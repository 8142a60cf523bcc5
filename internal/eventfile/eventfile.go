// Package eventfile reads the fire event replay file (§6
// "fire_events.txt"): one event per non-blank, non-"#" line in wire
// format. Used by the FireSource driver to replay timed events.
package eventfile

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"strings"

	"firedrone/internal/wire"
)

// Line is one event line of the file: its raw text and either the parsed
// message or the parse error, which the caller can log and skip rather
// than crashing (spec §9 "parse functions return a result variant").
type Line struct {
	Raw     string
	Message wire.FireEventMessage
	Err     error
}

// Load reads and parses every non-blank, non-"#" line of path, in file
// order; a malformed line becomes a Line with Err set, not a Load error.
func Load(path string, rnd *rand.Rand) ([]Line, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("eventfile: open %s: %w", path, err)
	}
	defer f.Close()

	var lines []Line
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		msg, err := wire.ParseFireEvent(raw, rnd)
		lines = append(lines, Line{Raw: raw, Message: msg, Err: err})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("eventfile: scan %s: %w", path, err)
	}
	return lines, nil
}
