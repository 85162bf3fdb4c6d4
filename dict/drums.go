package dict

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// DrumTable is an immutable, case-insensitive map of drum acronym to MIDI
// note number (0..127), with a reverse lookup array for display purposes.
// Loaded lazily, the first time a voice bind or a score row addresses the
// drum channel.
type DrumTable struct {
	byAcronym map[string]byte
	byNote    [128]string
}

// LoadDrums reads a CSV drum-kit file: "effect_name,acronym,note_number"
// with "#" comment lines.
func LoadDrums(path string) (*DrumTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open drum file %s: %w", path, err)
	}
	defer f.Close()

	t := &DrumTable{byAcronym: make(map[string]byte)}
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, ",")
		if len(fields) != 3 {
			return nil, fmt.Errorf("drum file %s:%d: expected 3 fields, got %d", path, lineNo, len(fields))
		}

		acronym := strings.ToLower(strings.TrimSpace(fields[1]))
		note, err := strconv.Atoi(strings.TrimSpace(fields[2]))
		if err != nil || note < 0 || note > 127 {
			return nil, fmt.Errorf("drum file %s:%d: note number must be 0-127", path, lineNo)
		}

		t.byAcronym[acronym] = byte(note)
		t.byNote[note] = strings.TrimSpace(fields[0])
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read drum file %s: %w", path, err)
	}

	return t, nil
}

// Lookup returns the MIDI note number for a case-insensitive drum acronym.
func (t *DrumTable) Lookup(acronym string) (byte, bool) {
	n, ok := t.byAcronym[strings.ToLower(strings.TrimSpace(acronym))]
	return n, ok
}

// Name returns the effect name bound to a note number, or "" if unbound.
func (t *DrumTable) Name(note byte) string {
	if int(note) >= len(t.byNote) {
		return ""
	}
	return t.byNote[note]
}
