package field

import "testing"

func TestDefendingZonesThresholds(t *testing.T) {
	red := DefendingZones(Red, 1, 35, 40)
	want := Zones{Anchor: 315, DangerRight: 100, DangerLeft: 350, SafeRight: 95, SafeLeft: 355}
	if red != want {
		t.Errorf("red bin 1 zones = %+v, want %+v", red, want)
	}

	blue := DefendingZones(Blue, 2, 35, 40)
	want = Zones{Anchor: 45, DangerRight: 10, DangerLeft: 260, SafeRight: 5, SafeLeft: 265}
	if blue != want {
		t.Errorf("blue bin 2 zones = %+v, want %+v", blue, want)
	}
}

func TestClassify(t *testing.T) {
	red := DefendingZones(Red, 1, 35, 40)
	blue := DefendingZones(Blue, 1, 35, 40)

	tests := []struct {
		name  string
		zones Zones
		angle int
		want  Zone
	}{
		{"red right", red, 200, ZoneDangerRight},
		{"red anchor", red, 315, ZoneDangerRight},
		{"red left", red, 320, ZoneDangerLeft},
		{"red safe across zero", red, 0, ZoneSafe},
		{"red safe low", red, 90, ZoneSafe},
		{"red band left", red, 352, ZoneNone},
		{"red band right", red, 97, ZoneNone},
		{"red danger bound exclusive", red, 100, ZoneNone},
		{"blue right", blue, 300, ZoneDangerRight},
		{"blue left", blue, 100, ZoneDangerLeft},
		{"blue safe", blue, 200, ZoneSafe},
		{"blue band", blue, 277, ZoneNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.zones.Classify(tt.angle); got != tt.want {
				t.Errorf("Classify(%d) = %v, want %v", tt.angle, got, tt.want)
			}
		})
	}
}

// Zones never overlap: a wall angle is in at most one of them.
func TestZonesPartitionCircle(t *testing.T) {
	for _, team := range []Team{Red, Blue} {
		for bin := 1; bin <= NumBins; bin++ {
			z := DefendingZones(team, bin, 35, 40)
			seen := map[Zone]bool{}
			for angle := 0; angle < 360; angle++ {
				seen[z.Classify(angle)] = true
			}
			for _, zone := range []Zone{ZoneSafe, ZoneDangerLeft, ZoneDangerRight, ZoneNone} {
				if !seen[zone] {
					t.Errorf("%v bin %d never classifies as %v", team, bin, zone)
				}
			}
		}
	}
}
