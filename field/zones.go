package field

// Nominal wall angle facing each bin, bins 1..4
var BinAngles = [NumBins]int{315, 45, 135, 225}

// Zone is where the rotating wall sits relative to the defended bin
type Zone int

const (
	// ZoneNone is the hysteresis band between danger and safe
	ZoneNone Zone = iota
	ZoneSafe
	ZoneDangerLeft
	ZoneDangerRight
)

func (z Zone) String() string {
	switch z {
	case ZoneSafe:
		return "safe"
	case ZoneDangerLeft:
		return "danger-left"
	case ZoneDangerRight:
		return "danger-right"
	}
	return "none"
}

// Zones holds the thresholds guarding one bin. All angles are in [0, 360).
type Zones struct {
	Anchor      int
	DangerRight int
	DangerLeft  int
	SafeRight   int
	SafeLeft    int
}

// DefendingZones computes the thresholds around bin for team. The red
// wall reading is mirrored on the right side, the blue one on the left.
func DefendingZones(team Team, bin, danger, safe int) Zones {
	a := BinAngles[Wrap(bin-1, NumBins)]
	z := Zones{Anchor: a}
	if team == Blue {
		z.DangerRight = Angle(a - danger)
		z.DangerLeft = Angle(a + danger + 180)
		z.SafeRight = Angle(a - safe)
		z.SafeLeft = Angle(a + safe + 180)
	} else {
		z.DangerRight = Angle(a - danger + 180)
		z.DangerLeft = Angle(a + danger)
		z.SafeRight = Angle(a - safe + 180)
		z.SafeLeft = Angle(a + safe)
	}
	return z
}

// Classify places a wall angle. Arcs run counter-clockwise (increasing
// angle): danger-right is (DangerRight, Anchor], danger-left is
// [Anchor, DangerLeft), safe is everything outside [SafeRight, SafeLeft].
func (z Zones) Classify(angle int) Zone {
	angle = Angle(angle)
	switch {
	case arcOffset(z.DangerRight, angle) > 0 && arcOffset(z.DangerRight, angle) <= arcOffset(z.DangerRight, z.Anchor):
		return ZoneDangerRight
	case arcOffset(z.Anchor, angle) < arcOffset(z.Anchor, z.DangerLeft):
		return ZoneDangerLeft
	case arcOffset(z.SafeRight, angle) > arcOffset(z.SafeRight, z.SafeLeft):
		return ZoneSafe
	}
	return ZoneNone
}

// arcOffset is the counter-clockwise distance from -> to
func arcOffset(from, to int) int {
	return Angle(to - from)
}
