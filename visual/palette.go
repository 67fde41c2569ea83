package visual

// Palette holds the track colors. A track keeps one color for its whole
// life: the palette is indexed by track ID modulo its size.
var Palette = [][3]uint8{
	{255, 0, 0},
	{0, 255, 0},
	{0, 0, 255},
	{255, 255, 0},
	{0, 255, 255},
	{255, 0, 255},
	{0, 51, 51},
	{51, 153, 153},
	{102, 0, 51},
	{102, 51, 204},
	{102, 153, 204},
	{102, 255, 204},
	{153, 102, 102},
	{204, 102, 51},
	{204, 255, 102},
	{255, 255, 204},
	{121, 125, 127},
	{69, 179, 157},
	{250, 215, 160},
}

func TrackColor(trackID int) [3]uint8 {
	if trackID < 0 {
		return Palette[0]
	}
	return Palette[trackID%len(Palette)]
}
