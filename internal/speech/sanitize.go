package speech

import (
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// decorative covers emoticons, pictographs, transport symbols, supplemental
// pictographs, miscellaneous symbols and dingbats.
var decorative = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x2600, Hi: 0x26FF, Stride: 1},
		{Lo: 0x2700, Hi: 0x27BF, Stride: 1},
	},
	R32: []unicode.Range32{
		{Lo: 0x1F300, Hi: 0x1F5FF, Stride: 1},
		{Lo: 0x1F600, Hi: 0x1F6FF, Stride: 1},
		{Lo: 0x1F900, Hi: 0x1F9FF, Stride: 1},
	},
}

// StripDecorative removes emoji and pictographic symbols that a synthesizer
// would otherwise read out by name.
func StripDecorative(text string) string {
	out, _, err := transform.String(runes.Remove(runes.In(decorative)), text)
	if err != nil {
		return text
	}
	return out
}
