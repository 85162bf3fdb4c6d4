package score

import (
	"strconv"
	"strings"
)

// noteSpec is the semantic result of parsing one note-or-rest token, per
// spec.md §4.2's token grammar:
//
//	[number][_][name][_][/denom[.(.)*]][_][velocity]
type noteSpec struct {
	isRest bool

	note     int // resolved MIDI note, valid when !isRest
	velocity byte
	hasVel   bool

	hasDuration bool
	duration    float64 // resolved beats, valid when hasDuration
}

// parseNoteOrRestToken parses one non-tie, non-hairpin token in the context
// of channel ch's rolling pitch state. On the drum channel, drum-acronym
// lookup is used instead of movable-do syllables. Matches spec.md §4.2's disambiguation of the
// four meanings of a leading integer: an octave number when a pitch name
// follows, a relative-pitch delta when forced by '_' or a leading '-' (or
// when no name and no duration slash follow), a duration numerator when a
// slash follows with no name, or (on the drum channel) the glued leading
// digit of a drum acronym.
func (p *Parser) parseNoteOrRestToken(raw string, ch int) (noteSpec, error) {
	s := newFieldScanner(strings.ToLower(raw))

	neg := false
	if c, ok := s.peek(); ok && c == '-' {
		neg = true
		s.advance()
	}

	digits := ""
	for {
		c, ok := s.peek()
		if !ok || !isDigit(c) {
			break
		}
		digits += string(c)
		s.advance()
	}

	forcedUnderscore := false
	if digits != "" {
		if c, ok := s.peek(); ok && c == '_' {
			s.advance()
			forcedUnderscore = true
		}
	}
	forced := neg || forcedUnderscore

	isDrum := isDrumChannel(ch)

	var name string
	nameMatched := false
	if !forced {
		name, nameMatched = p.tryMatchName(s, digits, isDrum)
	}

	var spec noteSpec

	switch {
	case nameMatched:
		note, err := p.resolvePitchName(name, digits, ch, isDrum)
		if err != nil {
			return noteSpec{}, err
		}
		spec.note = note

	default:
		if c, ok := s.peek(); ok && c == '/' && !forced && digits != "" {
			// Rule (c): leading digits are a duration numerator; no pitch
			// name was recognized, so this token is a rest.
			spec.isRest = true
		} else if digits != "" {
			// Rule (b): relative pitch delta from the last absolute pitch.
			n, _ := strconv.Atoi(digits)
			if neg {
				n = -n
			}
			spec.note = p.rollingStart[ch] + n
		} else {
			spec.isRest = true
		}
	}

	if c, ok := s.peek(); ok && c == '_' {
		s.advance()
	}

	if c, ok := s.peek(); ok && c == '/' {
		s.advance()
		denomStr := ""
		for {
			c, ok := s.peek()
			if !ok || !isDigit(c) {
				break
			}
			denomStr += string(c)
			s.advance()
		}
		if denomStr == "" {
			return noteSpec{}, p.errf("malformed duration in token %q", raw)
		}
		denom, _ := strconv.Atoi(denomStr)
		if denom == 0 {
			return noteSpec{}, p.errf("duration denominator must be nonzero in token %q", raw)
		}
		dots := 0
		for {
			c, ok := s.peek()
			if !ok || c != '.' {
				break
			}
			dots++
			s.advance()
		}

		numerator := 1
		if !nameMatched && digits != "" && !forced {
			numerator, _ = strconv.Atoi(digits)
		}
		spec.hasDuration = true
		spec.duration = dottedDuration(numerator, denom, dots)
	}

	if c, ok := s.peek(); ok && c == '_' {
		s.advance()
	}

	remaining := string(s.src[s.pos:])
	if remaining != "" {
		if v, err := strconv.Atoi(remaining); err == nil {
			if v < 0 || v > 127 {
				return noteSpec{}, p.errf("velocity %d out of range 0-127", v)
			}
			spec.velocity = byte(v)
			spec.hasVel = true
		} else if v, ok := dynamics[remaining]; ok {
			spec.velocity = v
			spec.hasVel = true
		} else {
			return noteSpec{}, p.errf("unknown dynamic %q", remaining)
		}
	}

	return spec, nil
}

// tryMatchName attempts to recognize a pitch name (or, on the drum channel,
// a drum acronym, possibly glued to the already-consumed leading digits) at
// the scanner's current position, consuming it on success.
func (p *Parser) tryMatchName(s *fieldScanner, digits string, isDrum bool) (string, bool) {
	remaining := string(s.src[s.pos:])

	if isDrum && p.drums != nil {
		if digits != "" {
			glued := digits + longestAlpha(remaining)
			for l := len(glued); l > len(digits); l-- {
				if _, ok := p.drums.Lookup(glued[:l]); ok {
					consumed := l - len(digits)
					s.pos += consumed
					return glued[:l], true
				}
			}
		}
		alpha := longestAlpha(remaining)
		for l := len(alpha); l > 0; l-- {
			if _, ok := p.drums.Lookup(alpha[:l]); ok {
				s.pos += l
				return alpha[:l], true
			}
		}
		return "", false
	}

	for l := 3; l >= 1; l-- {
		if len(remaining) < l {
			continue
		}
		cand := remaining[:l]
		if _, ok := syllables[cand]; ok {
			s.pos += l
			return cand, true
		}
	}
	return "", false
}

// resolvePitchName resolves a matched name plus any leading digits into a
// MIDI note number, updating the channel's rolling octave/pitch state for
// absolute (non-drum) pitches.
func (p *Parser) resolvePitchName(name, digits string, ch int, isDrum bool) (int, error) {
	if isDrum {
		note, ok := p.drums.Lookup(name)
		if !ok {
			return 0, p.errf("unknown drum acronym %q", name)
		}
		return int(note), nil
	}

	octave := p.octave[ch]
	if digits != "" {
		n, _ := strconv.Atoi(digits)
		octave = n
	}
	p.octave[ch] = octave

	note := absoluteNote(octave, syllables[name])
	if note < 0 || note > 127 {
		return 0, p.errf("note %d out of range 0-127", note)
	}
	p.rollingStart[ch] = note
	return note, nil
}

func longestAlpha(s string) string {
	i := 0
	for i < len(s) && isAlpha(s[i]) {
		i++
	}
	return s[:i]
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isAlpha(c byte) bool { return c >= 'a' && c <= 'z' }

// dottedDuration computes numerator/denom beats, multiplied once by
// 2-1/2^dots for the given number of dots, per spec.md §4.2 and the worked examples in §8 property 6.
func dottedDuration(numerator, denom, dots int) float64 {
	base := float64(numerator) / float64(denom)
	mult := 1.0
	half := 1.0
	for i := 0; i < dots; i++ {
		half /= 2
		mult += half
	}
	return base * mult
}
