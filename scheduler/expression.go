package scheduler

import "github.com/scorewright/scoreline/logging"

// centeredBend is the 14-bit pitch-wheel value meaning "no bend".
const centeredBend = 0x2000

// pitchWheelDur bounds how long a pitch-wheel slide may run, per spec.md
// §4.5's "min(PITCH_WHEEL_DUR, event.duration)"; chosen as one beat, long
// enough to cover the ±2-semitone slides this format supports without
// letting a very long note hold the wheel off-center for most of its length.
const pitchWheelDur = 1.0

// channelState is the per-channel expression/pitch-wheel interpolation
// record spec.md §3 names: reference volume, current (float, to avoid
// integer-rounding drift), step-per-beat, and remaining duration in beats.
// The pitch-wheel fields are the symmetric record for slides.
type channelState struct {
	volRef     byte
	volCurrent float64
	volStep    float64 // per beat
	volLeft    float64 // beats remaining
	lastSentVol int

	bendCurrent float64
	bendStep    float64 // per beat
	bendLeft    float64 // beats remaining
	lastSentBend int
}

func newChannelStates() [16]channelState {
	var cs [16]channelState
	for i := range cs {
		cs[i] = channelState{
			volRef:       100,
			volCurrent:   100,
			lastSentVol:  -1,
			bendCurrent:  centeredBend,
			lastSentBend: centeredBend,
		}
	}
	return cs
}

// startHairpin configures a crescendo/decrescendo ramp from the channel's
// current volume to reference*(100±percent)/100 over durationBeats,
// clipping to 0..127 with a warning (spec.md §4.5, §7).
func (c *channelState) startHairpin(crescendo bool, percent int, durationBeats float64, line int) {
	sign := 1.0
	if !crescendo {
		sign = -1.0
	}
	final := float64(c.volRef) * (100 + sign*float64(percent)) / 100

	if final < 0 {
		logging.Warn(line, "hairpin clipped to 0 (reference %d, %d%%)", c.volRef, percent)
		final = 0
	} else if final > 127 {
		logging.Warn(line, "hairpin clipped to 127 (reference %d, %d%%)", c.volRef, percent)
		final = 127
	}

	if delta := final - c.volCurrent; crescendo && delta < 0 {
		logging.Warn(line, "crescendo hairpin would decrease volume (%.0f -> %.0f)", c.volCurrent, final)
	} else if !crescendo && delta > 0 {
		logging.Warn(line, "decrescendo hairpin would increase volume (%.0f -> %.0f)", c.volCurrent, final)
	}

	if durationBeats <= 0 {
		logging.Warn(line, "hairpin duration too short to represent, applying immediately")
		c.volCurrent = final
		c.volStep = 0
		c.volLeft = 0
		return
	}

	c.volStep = (final - c.volCurrent) / durationBeats
	c.volLeft = durationBeats
}

// startSlide configures a pitch-wheel ramp from centered to
// centered+semitones*0x1000 over min(pitchWheelDur, durationBeats),
// clipping and warning if |semitones| exceeds the ±2-semitone range
// spec.md §1's non-goals fix as the format's ceiling.
func (c *channelState) startSlide(semitones int, durationBeats float64, line int) {
	if semitones > 2 || semitones < -2 {
		logging.Warn(line, "pitch slide of %d semitones clipped to ±2", semitones)
		if semitones > 2 {
			semitones = 2
		} else {
			semitones = -2
		}
	}

	span := durationBeats
	if span > pitchWheelDur || span <= 0 {
		span = pitchWheelDur
	}

	c.bendCurrent = centeredBend
	target := centeredBend + semitones*0x1000
	c.bendStep = (float64(target) - c.bendCurrent) / span
	c.bendLeft = span
}

// tick advances the hairpin and slide ramps by one tickBeats-sized
// scheduler tick, reporting whether an updated integer value should be
// emitted for volume and/or pitch-bend (spec.md §4.5's "emit only when the
// integer part changed" bandwidth saving).
func (c *channelState) tick(tickBeats float64) (sendVol bool, vol uint8, sendBend bool, bend int16) {
	if c.volLeft > 0 {
		c.volCurrent += c.volStep * tickBeats
		if c.volCurrent < 0 {
			c.volCurrent = 0
			c.volLeft = 0
		} else if c.volCurrent > 127 {
			c.volCurrent = 127
			c.volLeft = 0
		} else {
			c.volLeft -= tickBeats
			if c.volLeft < 0 {
				c.volLeft = 0
			}
		}
		if iv := int(c.volCurrent); iv != c.lastSentVol {
			c.lastSentVol = iv
			sendVol, vol = true, uint8(iv)
		}
	}

	if c.bendLeft > 0 {
		c.bendCurrent += c.bendStep * tickBeats
		if c.bendCurrent < 0 {
			c.bendCurrent = 0
		} else if c.bendCurrent > 16383 {
			c.bendCurrent = 16383
		}
		c.bendLeft -= tickBeats
		if c.bendLeft < 0 {
			c.bendLeft = 0
		}
		if iv := int(c.bendCurrent); iv != c.lastSentBend {
			c.lastSentBend = iv
			sendBend, bend = true, int16(iv)
		}
	}

	return
}

// needsRecenter reports whether this channel's pitch wheel is away from
// center and no slide is in progress (end-of-gap recentering, spec.md §4.5).
func (c *channelState) needsRecenter() bool {
	return c.bendLeft <= 0 && c.lastSentBend != centeredBend
}

func (c *channelState) recenter() {
	c.bendCurrent = centeredBend
	c.lastSentBend = centeredBend
}
