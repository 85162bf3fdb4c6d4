package dict

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoadVoices(t *testing.T) {
	path := writeTemp(t, "voices.txt", "# comment\nViolin,0,0,41\nPiano,8,1,1\n\n")

	table, err := LoadVoices(path)
	require.NoError(t, err)

	entry, ok := table.Lookup("violin")
	require.True(t, ok)
	require.Equal(t, VoiceEntry{MSB: 0, LSB: 0, Program: 40}, entry)

	entry, ok = table.Lookup("VIOLIN")
	require.True(t, ok)
	require.Equal(t, byte(40), entry.Program)

	_, ok = table.Lookup("tuba")
	require.False(t, ok)
}

func TestLoadVoicesRejectsMalformedRow(t *testing.T) {
	path := writeTemp(t, "voices.txt", "Violin,0,0\n")
	_, err := LoadVoices(path)
	require.Error(t, err)
}

func TestLoadVoicesRejectsOutOfRangeProgram(t *testing.T) {
	path := writeTemp(t, "voices.txt", "Violin,0,0,0\n")
	_, err := LoadVoices(path)
	require.Error(t, err)
}

func TestLoadDrums(t *testing.T) {
	path := writeTemp(t, "kit.txt", "# comment\nBass Drum,bd,36\nSnare,sn,38\n")

	table, err := LoadDrums(path)
	require.NoError(t, err)

	note, ok := table.Lookup("BD")
	require.True(t, ok)
	require.Equal(t, byte(36), note)
	require.Equal(t, "Snare", table.Name(38))

	_, ok = table.Lookup("hh")
	require.False(t, ok)
}

func TestLoadDrumsRejectsOutOfRangeNote(t *testing.T) {
	path := writeTemp(t, "kit.txt", "Bass Drum,bd,200\n")
	_, err := LoadDrums(path)
	require.Error(t, err)
}
