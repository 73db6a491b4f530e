package notes

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FallbackFreq is returned for names that are not in the table (A4).
const FallbackFreq = 440.0

const (
	// LowestMIDI is C0.
	LowestMIDI = 12
	// HighestMIDI is B6.
	HighestMIDI = 95
)

var sharpNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

var flatAliases = map[string]string{
	"Db": "C#",
	"Eb": "D#",
	"Gb": "F#",
	"Ab": "G#",
	"Bb": "A#",
}

// table maps scientific pitch names (sharps) to equal-tempered frequencies
// rounded to centihertz, C0..B6.
var table = buildTable()

func buildTable() map[string]float64 {
	t := make(map[string]float64, HighestMIDI-LowestMIDI+1)
	for m := LowestMIDI; m <= HighestMIDI; m++ {
		hz := 440.0 * math.Pow(2, float64(m-69)/12.0)
		t[Name(m)] = math.Round(hz*100) / 100
	}
	return t
}

// Resolve returns the frequency in Hz for a pitch name such as "C4" or "D#4".
// Flat spellings ("Eb4") are accepted. Anything else resolves to FallbackFreq.
func Resolve(name string) float64 {
	if f, ok := Lookup(name); ok {
		return f
	}
	return FallbackFreq
}

// Lookup is Resolve without the fallback.
func Lookup(name string) (float64, bool) {
	f, ok := table[canonical(name)]
	return f, ok
}

// MIDI returns the MIDI note number for a table name.
func MIDI(name string) (int, bool) {
	n := canonical(name)
	if _, ok := table[n]; !ok {
		return 0, false
	}
	split := len(n) - 1
	for split > 0 && (n[split] >= '0' && n[split] <= '9') {
		split--
	}
	octave, err := strconv.Atoi(n[split+1:])
	if err != nil {
		return 0, false
	}
	for pc, pn := range sharpNames {
		if pn == n[:split+1] {
			return (octave+1)*12 + pc, true
		}
	}
	return 0, false
}

// Name returns the sharp-spelled scientific pitch name of a MIDI note.
func Name(midi int) string {
	if midi < 0 {
		return fmt.Sprintf("?%d", midi)
	}
	return fmt.Sprintf("%s%d", sharpNames[midi%12], midi/12-1)
}

// Table returns a copy of the lookup table.
func Table() map[string]float64 {
	out := make(map[string]float64, len(table))
	for k, v := range table {
		out[k] = v
	}
	return out
}

func canonical(name string) string {
	n := strings.TrimSpace(name)
	if len(n) < 2 {
		return n
	}
	n = strings.ToUpper(n[:1]) + n[1:]
	if len(n) >= 3 && n[1] == 'b' {
		if sharp, ok := flatAliases[n[:2]]; ok {
			return sharp + n[2:]
		}
	}
	return n
}
