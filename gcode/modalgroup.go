package gcode

// ModalGroup is the RS274NGC modal group of a word. A block may hold at
// most one word of each modal group.
type ModalGroup byte

const (
	ModalGroupNone ModalGroup = iota
	ModalGroupNonModal
	ModalGroupMotion
	ModalGroupPolar
	ModalGroupPlaneSelection
	ModalGroupDistanceMode
	ModalGroupArcDistanceMode
	ModalGroupFeedRateMode
	ModalGroupUnits
	ModalGroupCutterCompensationMode
	ModalGroupToolLength
	ModalGroupCannedCyclesMode
	ModalGroupCoordinateSystem
	ModalGroupControlMode
	ModalGroupSpindleMode
	ModalGroupLatheDiameterMode
	ModalGroupStopping
	ModalGroupToolChange
	ModalGroupSpindle
	ModalGroupCoolant
	ModalGroupOverride
	ModalGroupFeedRate
)

var gGroups = groupTable(map[ModalGroup][]float64{
	ModalGroupNonModal:               {4, 10, 28, 30, 53, 92, 92.1, 92.2, 92.3},
	ModalGroupMotion:                 {0, 1, 2, 3, 33, 38.2, 38.3, 38.4, 38.5, 73, 76, 80, 81, 82, 83, 84, 85, 86, 87, 88, 89},
	ModalGroupPolar:                  {15, 16},
	ModalGroupPlaneSelection:         {17, 18, 19, 17.1, 18.1, 19.1},
	ModalGroupDistanceMode:           {90, 91},
	ModalGroupArcDistanceMode:        {90.1, 91.1},
	ModalGroupFeedRateMode:           {93, 94, 95},
	ModalGroupUnits:                  {20, 21},
	ModalGroupCutterCompensationMode: {40, 41, 41.1, 42, 42.1},
	ModalGroupToolLength:             {43, 43.1, 49},
	ModalGroupCannedCyclesMode:       {98, 99},
	ModalGroupCoordinateSystem:       {54, 55, 56, 57, 58, 59, 59.1, 59.2, 59.3},
	ModalGroupControlMode:            {61, 61.1, 64},
	ModalGroupSpindleMode:            {96, 97},
	ModalGroupLatheDiameterMode:      {7, 8},
})

var mGroups = groupTable(map[ModalGroup][]float64{
	ModalGroupStopping:   {0, 1, 2, 30, 60},
	ModalGroupToolChange: {6, 61},
	ModalGroupSpindle:    {3, 4, 5},
	ModalGroupCoolant:    {7, 8, 9},
	ModalGroupOverride:   {48, 49, 50, 51, 52, 53},
})

func groupTable(groups map[ModalGroup][]float64) map[float64]ModalGroup {
	t := make(map[float64]ModalGroup)
	for g, args := range groups {
		for _, a := range args {
			t[a] = g
		}
	}
	return t
}

// ModalGroup returns ModalGroupNone for words that are not in a group,
// including every axis and parameter word except F.
func (w Word) ModalGroup() ModalGroup {
	switch w.W {
	case 'G':
		return gGroups[w.Arg]
	case 'M':
		return mGroups[w.Arg]
	case 'F':
		return ModalGroupFeedRate
	}
	return ModalGroupNone
}
