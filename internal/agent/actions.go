package agent

// Control bits. An action is a set of pressed controls.
const (
	GasBit = 1 << iota
	BrakeBit
	LeftBit
	RightBit
)

var actionMasks = [...]int{
	GasBit,
	GasBit | LeftBit,
	GasBit | RightBit,
	BrakeBit,
	BrakeBit | LeftBit,
	BrakeBit | RightBit,
	LeftBit,
	RightBit,
	0,
}

// NumActions is the size of the discrete action space.
const NumActions = len(actionMasks)

// ActionControls maps an action index to its pressed controls, each 0 or 1.
// Out-of-range indices release everything.
func ActionControls(a int) (gas, brake, left, right float64) {
	if a < 0 || a >= NumActions {
		return 0, 0, 0, 0
	}
	m := actionMasks[a]
	return bit(m, GasBit), bit(m, BrakeBit), bit(m, LeftBit), bit(m, RightBit)
}

// Steering converts pressed directions to a steering command; positive is right.
func Steering(left, right float64) float64 {
	return right - left
}

func bit(mask, b int) float64 {
	if mask&b != 0 {
		return 1
	}
	return 0
}
