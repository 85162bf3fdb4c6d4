// Package dict loads the two flat, line-oriented CSV dictionaries scoreline
// depends on but does not design: the voice table (instrument name -> bank
// and program) and the drum-kit table (acronym -> note number). Both mirror
// the teacher's persistence.go convention of loading into an in-memory value
// once and treating it as immutable afterward, generalized from JSON to CSV
// per the score language's file formats.
package dict

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// VoiceEntry is one row of the voice table: a bank-select pair and a
// zero-based program number (the file stores the 1-based program number;
// Program holds that value minus one).
type VoiceEntry struct {
	MSB     byte
	LSB     byte
	Program byte
}

// VoiceTable is an immutable, case-insensitive map of instrument name to
// VoiceEntry, loaded once at startup.
type VoiceTable struct {
	entries map[string]VoiceEntry
}

// LoadVoices reads a CSV voice file: "name,msb,lsb,program" with "#" comment
// lines. Names are folded to lower-case for case-insensitive lookup.
func LoadVoices(path string) (*VoiceTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open voice file %s: %w", path, err)
	}
	defer f.Close()

	entries := make(map[string]VoiceEntry)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, ",")
		if len(fields) != 4 {
			return nil, fmt.Errorf("voice file %s:%d: expected 4 fields, got %d", path, lineNo, len(fields))
		}

		name := strings.ToLower(strings.TrimSpace(fields[0]))
		msb, err := parseByteField(fields[1])
		if err != nil {
			return nil, fmt.Errorf("voice file %s:%d: bad bank MSB: %w", path, lineNo, err)
		}
		lsb, err := parseByteField(fields[2])
		if err != nil {
			return nil, fmt.Errorf("voice file %s:%d: bad bank LSB: %w", path, lineNo, err)
		}
		program, err := parseByteField(fields[3])
		if err != nil {
			return nil, fmt.Errorf("voice file %s:%d: bad program number: %w", path, lineNo, err)
		}
		if program < 1 {
			return nil, fmt.Errorf("voice file %s:%d: program number must be >= 1", path, lineNo)
		}

		entries[name] = VoiceEntry{MSB: msb, LSB: lsb, Program: program - 1}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read voice file %s: %w", path, err)
	}

	return &VoiceTable{entries: entries}, nil
}

// Lookup returns the voice entry for a case-insensitive instrument name.
func (t *VoiceTable) Lookup(name string) (VoiceEntry, bool) {
	e, ok := t.entries[strings.ToLower(strings.TrimSpace(name))]
	return e, ok
}

func parseByteField(s string) (byte, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n < 0 || n > 127 {
		return 0, fmt.Errorf("value %d out of range 0-127", n)
	}
	return byte(n), nil
}
