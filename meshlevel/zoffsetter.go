package meshlevel

// A ZOffsetter reports the Z correction at x,y. It returns false outside
// of its known area.
type ZOffsetter interface {
	OffsetZ(x, y float64) (bool, float64)
}
