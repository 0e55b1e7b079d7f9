package game

import (
	"time"

	"github.com/hippos-robot/hsm/sense"
)

// Settings collects every tunable of the game machines and their sensors
type Settings struct {
	QueueSize int

	Game      GameSettings
	Speeds    Speeds
	Gathering GatheringSettings
	Scoring   ScoringSettings
	Defending DefendingSettings
	Sensing   SensingSettings
}

type GameSettings struct {
	Length       time.Duration
	ScoringAfter time.Duration
}

type Speeds struct {
	Full    int
	Caution int
	Search  int
}

type GatheringSettings struct {
	Caution   time.Duration
	Backup    time.Duration
	TurnEvade time.Duration
	// TurnTable picks the turn after each reverse, cycling
	TurnTable [4]Direction
}

type ScoringSettings struct {
	MaxApproachPasses int
	FirstAlign        time.Duration
	SecondAlign       time.Duration
	Clearance         time.Duration
	Caution           time.Duration
	BeaconNod         time.Duration
	BackupSearch      time.Duration
	FanSpinDown       time.Duration
	ForwardBump       time.Duration
	UnloadSettle      time.Duration
	Shuffle           time.Duration
	ShuffleStep       time.Duration
}

type DefendingSettings struct {
	WallSeparation time.Duration
	Perpendicular  time.Duration
	Reset          time.Duration
	DangerMargin   int
	SafeMargin     int
}

type SensingSettings struct {
	CountsPerMilli uint64
	Debounce       time.Duration
	NoBeaconAfter  time.Duration
	WatchPeriod    time.Duration
	WallPeriod     time.Duration
	StartPeriod    time.Duration
}

// quarter turn of the drive base at full speed
const degree90 = 600 * time.Millisecond

// DefaultSettings returns the competition tuning
func DefaultSettings() Settings {
	return Settings{
		QueueSize: 32,
		Game: GameSettings{
			Length:       120 * time.Second,
			ScoringAfter: 75 * time.Second,
		},
		Speeds: Speeds{
			Full:    100,
			Caution: 75,
			Search:  75,
		},
		Gathering: GatheringSettings{
			Caution:   2 * time.Second,
			Backup:    250 * time.Millisecond,
			TurnEvade: 2 * degree90 / 3,
			TurnTable: [4]Direction{Right, Right, Right, Right},
		},
		Scoring: ScoringSettings{
			MaxApproachPasses: 2,
			FirstAlign:        1500 * time.Millisecond,
			SecondAlign:       750 * time.Millisecond,
			Clearance:         750 * time.Millisecond,
			Caution:           2 * time.Second,
			BeaconNod:         250 * time.Millisecond,
			BackupSearch:      6 * degree90,
			FanSpinDown:       500 * time.Millisecond,
			ForwardBump:       time.Second,
			UnloadSettle:      500 * time.Millisecond,
			Shuffle:           5 * time.Second,
			ShuffleStep:       250 * time.Millisecond,
		},
		Defending: DefendingSettings{
			WallSeparation: 1250 * time.Millisecond,
			Perpendicular:  degree90,
			Reset:          1750 * time.Millisecond,
			DangerMargin:   35,
			SafeMargin:     40,
		},
		Sensing: SensingSettings{
			CountsPerMilli: sense.DefaultCountsPerMilli,
			Debounce:       sense.DefaultDebounce,
			NoBeaconAfter:  sense.DefaultNoBeaconAfter,
			WatchPeriod:    sense.DefaultWatchPeriod,
			WallPeriod:     sense.DefaultWallPeriod,
			StartPeriod:    sense.DefaultStartPeriod,
		},
	}
}
