// Package score turns a text score into a timeline.Timeline of scheduled
// MIDI events. The grammar is line-oriented: a directive line configures
// tempo, voices, and section record/replay; a score row lays down one
// channel's notes, rests, ties, and hairpins for the current beat group.
package score

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/scorewright/scoreline/dict"
	"github.com/scorewright/scoreline/logging"
	"github.com/scorewright/scoreline/timeline"
)

const numChannels = 16

// Parser compiles one score document into a timeline.Timeline. Zero value
// is not usable; construct with NewParser.
type Parser struct {
	tl *timeline.Timeline

	voices    *dict.VoiceTable
	drums     *dict.DrumTable
	drumsPath string

	line int

	octave       [numChannels]int
	rollingStart [numChannels]int
	lastDuration [numChannels]float64
	lastVelocity [numChannels]byte

	pendingTie [numChannels]*pendingNote
	hairpin    [numChannels]*hairpinState

	groupStarted bool
}

type pendingNote struct {
	note     int
	velocity byte
	duration float64
	tag      byte
}

type hairpinState struct {
	ref   timeline.EventRef
	start float64
}

// NewParser constructs a Parser. voices must already be loaded (every score
// needs at least one voice bound); drumsPath names the CSV file to load the
// first time a voice bind or a score row addresses the drum channel, per spec.md §4.3's
// lazy-dictionary-loading design.
func NewParser(voices *dict.VoiceTable, drumsPath string) *Parser {
	p := &Parser{
		tl:        timeline.New(),
		voices:    voices,
		drumsPath: drumsPath,
	}
	for ch := 0; ch < numChannels; ch++ {
		p.octave[ch] = defaultOctave
		p.rollingStart[ch] = absoluteNote(defaultOctave, 0)
		p.lastDuration[ch] = 0.25
		p.lastVelocity[ch] = dynamics["mf"]
	}
	return p
}

// Parse reads a score document and returns the compiled timeline.
func (p *Parser) Parse(r io.Reader) (*timeline.Timeline, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for sc.Scan() {
		p.line++
		line := strings.TrimSpace(sc.Text())

		if line == "" {
			if p.groupStarted {
				p.tl.NewGroup()
				p.groupStarted = false
			}
			continue
		}
		if !strings.HasPrefix(line, "|") {
			// Non-blank, non-'|' lines are lyrics/commentary (spec.md §4.2).
			continue
		}
		line = strings.TrimSpace(line[1:])
		if line == "" {
			continue
		}

		if isScoreRow(line) {
			if err := p.parseScoreRow(line); err != nil {
				return nil, err
			}
			continue
		}
		if err := p.parseDirectiveLine(line); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	if p.groupStarted {
		p.tl.NewGroup()
	}
	return p.tl, nil
}

// isScoreRow classifies a line by shape rather than leading character: a
// score row's first field parses as an integer channel number and its
// second field is exactly one character (the row's tag). This also
// correctly classifies a voice-bind directive like "| 1 violin 100 | bpm
// 120", which begins with a digit but is not a score row because its
// second field ("violin") is not a single character.
func isScoreRow(line string) bool {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return false
	}
	if _, err := strconv.Atoi(fields[0]); err != nil {
		return false
	}
	return len(fields[1]) == 1
}

func (p *Parser) errf(format string, args ...any) error {
	return logging.NewParseError(p.line, format, args...)
}

// push pushes e onto the timeline, wrapping a bucket-overflow error (spec.md
// §4.3's fatal 64-event cap) into a line-tagged fatal parse error.
func (p *Parser) push(e timeline.Event) (timeline.EventRef, error) {
	ref, err := p.tl.PushEvent(e)
	if err != nil {
		return timeline.EventRef{}, p.errf("%v", err)
	}
	return ref, nil
}

// parseDirectiveLine handles one or more '|'-separated directives sharing a
// line, per spec.md §4.1's S1 example.
func (p *Parser) parseDirectiveLine(line string) error {
	for _, seg := range strings.Split(line, "|") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		fields, err := quotedFields(seg)
		if err != nil {
			return p.errf("%v", err)
		}
		if len(fields) == 0 {
			continue
		}
		if err := p.dispatchDirective(fields); err != nil {
			return err
		}
	}
	return nil
}

func (p *Parser) dispatchDirective(fields []string) error {
	switch strings.ToLower(fields[0]) {
	case "bpm":
		if len(fields) < 2 {
			return p.errf("bpm directive needs a value")
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil || n <= 0 {
			return p.errf("invalid bpm %q", fields[1])
		}
		_, err = p.push(timeline.Event{Kind: timeline.KindTempo, BPM: n})
		return err

	case "r", "rec":
		n, err := p.sectionArg(fields)
		if err != nil {
			return err
		}
		p.tl.Rec(n)
		return nil

	case "s", "stop":
		n, err := p.sectionArg(fields)
		if err != nil {
			return err
		}
		if err := p.tl.Stop(n); err != nil {
			return p.errf("%v", err)
		}
		return nil

	case "p", "play":
		n, err := p.sectionArg(fields)
		if err != nil {
			return err
		}
		times := 1
		if len(fields) >= 3 {
			spec := strings.ToLower(fields[2])
			if !strings.HasPrefix(spec, "x") {
				return p.errf("malformed repeat count %q", fields[2])
			}
			times, err = strconv.Atoi(spec[1:])
			if err != nil || times < 1 {
				return p.errf("invalid repeat count %q", fields[2])
			}
		}
		if err := p.tl.Play(n, times); err != nil {
			return p.errf("%v", err)
		}
		return nil

	default:
		return p.voiceBind(fields)
	}
}

func (p *Parser) sectionArg(fields []string) (int, error) {
	if len(fields) < 2 {
		return 0, p.errf("%s directive needs a section number", fields[0])
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, p.errf("invalid section number %q", fields[1])
	}
	return n, nil
}

// voiceBind accepts either "channel name volume" (spec.md §4.1's S1
// example) or "name channel volume" (spec.md §4.1's prose order).
func (p *Parser) voiceBind(fields []string) error {
	if len(fields) < 3 {
		return p.errf("unrecognized directive %q", strings.Join(fields, " "))
	}

	var chStr, name, volStr string
	if ch1, err := strconv.Atoi(fields[0]); err == nil {
		chStr, name, volStr = fields[0], fields[1], fields[2]
		_ = ch1
	} else if ch1, err := strconv.Atoi(fields[1]); err == nil {
		name, chStr, volStr = fields[0], fields[1], fields[2]
		_ = ch1
	} else {
		return p.errf("unrecognized directive %q", strings.Join(fields, " "))
	}

	ch1, err := strconv.Atoi(chStr)
	if err != nil || ch1 < 1 || ch1 > numChannels {
		return p.errf("invalid channel %q", chStr)
	}
	vol, err := strconv.Atoi(volStr)
	if err != nil || vol < 0 || vol > 127 {
		return p.errf("invalid volume %q", volStr)
	}
	ch := byte(ch1 - 1)

	entry, ok := p.voices.Lookup(name)
	if !ok {
		return p.errf("unknown voice %q", name)
	}

	for _, ev := range []timeline.Event{
		{Kind: timeline.KindController, Channel: ch, Data1: 0, Data2: entry.MSB},
		{Kind: timeline.KindController, Channel: ch, Data1: 32, Data2: entry.LSB},
		{Kind: timeline.KindProgramChange, Channel: ch, Data1: entry.Program},
		{Kind: timeline.KindController, Channel: ch, Data1: 7, Data2: byte(vol)},
	} {
		if _, err := p.push(ev); err != nil {
			return err
		}
	}

	p.lastVelocity[int(ch)] = byte(vol)

	if isDrumChannel(int(ch)) {
		if err := p.ensureDrums(); err != nil {
			return err
		}
	}
	return nil
}

func (p *Parser) ensureDrums() error {
	if p.drums != nil {
		return nil
	}
	table, err := dict.LoadDrums(p.drumsPath)
	if err != nil {
		return p.errf("loading drum dictionary: %v", err)
	}
	p.drums = table
	return nil
}

// parseScoreRow handles one "channel tag token token ..." row.
func (p *Parser) parseScoreRow(line string) error {
	toks := splitOnSeparators(line)
	if len(toks) < 2 {
		return p.errf("malformed score row %q", line)
	}

	ch1, err := strconv.Atoi(toks[0])
	if err != nil || ch1 < 1 || ch1 > numChannels {
		return p.errf("invalid channel %q", toks[0])
	}
	ch := ch1 - 1
	if len(toks[1]) != 1 {
		return p.errf("invalid tag %q", toks[1])
	}
	tag := toks[1][0]

	if p.groupStarted {
		p.tl.NewLine()
	} else {
		p.groupStarted = true
	}

	if isDrumChannel(ch) {
		if err := p.ensureDrums(); err != nil {
			return err
		}
	}

	for _, tok := range toks[2:] {
		if tok == "" {
			continue
		}
		if err := p.dispatchToken(ch, tag, tok); err != nil {
			return err
		}
	}

	return p.flushTie(ch)
}

func (p *Parser) dispatchToken(ch int, tag byte, tok string) error {
	switch tok[0] {
	case '=':
		return p.closeHairpin(ch)
	case '<', '>':
		percent, err := strconv.Atoi(tok[1:])
		if err != nil {
			return p.errf("malformed hairpin %q", tok)
		}
		return p.openHairpin(ch, tag, tok[0] == '<', percent)
	case '^':
		return p.tieToken(ch, tok[1:])
	default:
		return p.noteToken(ch, tag, tok)
	}
}

func (p *Parser) noteToken(ch int, tag byte, tok string) error {
	spec, err := p.parseNoteOrRestToken(tok, ch)
	if err != nil {
		return err
	}

	vel := p.lastVelocity[ch]
	if spec.hasVel {
		vel = spec.velocity
		p.lastVelocity[ch] = vel
	}
	dur := p.lastDuration[ch]
	if spec.hasDuration {
		dur = spec.duration
		p.lastDuration[ch] = dur
	}

	if err := p.flushTie(ch); err != nil {
		return err
	}

	if spec.isRest {
		p.tl.PushRest(dur)
		return nil
	}

	p.pendingTie[ch] = &pendingNote{note: spec.note, velocity: vel, duration: dur, tag: tag}
	return nil
}

// tieToken extends the note buffered in pendingTie[ch]. A tie continuation
// is written with the full note grammar (spec.md §8 property 3's
// "do/4 ^do/8", S2's "^do/8"), so it may repeat the tied-to pitch; when it
// does, invariant 3 requires the repeated pitch to agree with the pending
// note, and a mismatch is a fatal parse error.
func (p *Parser) tieToken(ch int, rest string) error {
	pn := p.pendingTie[ch]
	if pn == nil {
		return p.errf("tie with no preceding note")
	}

	spec, err := p.parseNoteOrRestToken(rest, ch)
	if err != nil {
		return err
	}

	if !spec.isRest && spec.note != pn.note {
		return p.errf("tied notes must agree on pitch: tie continuation resolved to %d, pending note is %d", spec.note, pn.note)
	}
	if spec.hasVel && spec.velocity != pn.velocity {
		return p.errf("tied notes must agree on velocity: tie continuation resolved to %d, pending note is %d", spec.velocity, pn.velocity)
	}

	if spec.hasDuration {
		pn.duration += spec.duration
	} else {
		pn.duration += p.lastDuration[ch]
	}
	return nil
}

func (p *Parser) flushTie(ch int) error {
	pn := p.pendingTie[ch]
	if pn == nil {
		return nil
	}
	if _, err := p.push(timeline.Event{Kind: timeline.KindNoteOn, Channel: byte(ch), Data1: byte(pn.note), Data2: pn.velocity, Tag: pn.tag}); err != nil {
		return err
	}
	if _, err := p.push(timeline.Event{Kind: timeline.KindNoteOff, Channel: byte(ch), Data1: byte(pn.note), Duration: pn.duration, Tag: pn.tag}); err != nil {
		return err
	}
	p.pendingTie[ch] = nil
	return nil
}

func (p *Parser) openHairpin(ch int, tag byte, crescendo bool, percent int) error {
	if p.hairpin[ch] != nil {
		// A new hairpin closes the one still open on this channel.
		if err := p.closeHairpin(ch); err != nil {
			return err
		}
	}
	ref, err := p.push(timeline.Event{
		Kind:             timeline.KindController,
		Channel:          byte(ch),
		Tag:              tag,
		HairpinCrescendo: crescendo,
		HairpinPercent:   percent,
	})
	if err != nil {
		return err
	}
	p.hairpin[ch] = &hairpinState{ref: ref, start: p.tl.Now()}
	return nil
}

func (p *Parser) closeHairpin(ch int) error {
	hs := p.hairpin[ch]
	if hs == nil {
		return p.errf("'=' with no open hairpin on channel %d", ch+1)
	}
	ev := hs.ref.Get()
	if ev == nil {
		return p.errf("hairpin event lost on channel %d", ch+1)
	}
	ev.Duration = p.tl.Now() - hs.start
	p.hairpin[ch] = nil
	return nil
}
