// Package tuning holds the game constants for lobbies, the day simulation and the shop.
package tuning

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Tuning is the full set of gameplay constants. Default returns the shipped values;
// Load overlays a YAML file on top of them.
type Tuning struct {
	FrameMs   int `yaml:"frame_ms"`
	MaxFrames int `yaml:"max_frames"`
	PauseMs   int `yaml:"pause_ms"`

	PickupRadius float64 `yaml:"pickup_radius"`
	BaseRadius   float64 `yaml:"base_radius"`
	EatRadius    float64 `yaml:"eat_radius"`

	BaseEnergy   float64 `yaml:"base_energy"`
	BaseVision   float64 `yaml:"base_vision"`
	EnergyK      float64 `yaml:"energy_k"`
	MoveStepBase float64 `yaml:"move_step_base"`
	WanderRadius float64 `yaml:"wander_radius"`
	WanderMargin float64 `yaml:"wander_margin"`

	PredationRatio float64 `yaml:"predation_ratio"`
	MutationRate   float64 `yaml:"mutation_rate"`
	TraitMin       float64 `yaml:"trait_min"`
	TraitMax       float64 `yaml:"trait_max"`
	DangerMin      float64 `yaml:"danger_min"`
	DangerMax      float64 `yaml:"danger_max"`

	InitialPopulation int     `yaml:"initial_population"`
	SpawnSpread       float64 `yaml:"spawn_spread"`
	SpawnMargin       float64 `yaml:"spawn_margin"`
	OffspringSpread   float64 `yaml:"offspring_spread"`
	FoodMargin        float64 `yaml:"food_margin"`

	Lobby    LobbyDefaults `yaml:"lobby"`
	Upgrades Upgrades      `yaml:"upgrades"`
}

// LobbyDefaults are applied to newly created lobbies.
type LobbyDefaults struct {
	MaxDays    int `yaml:"max_days"`
	MapW       int `yaml:"map_w"`
	MapH       int `yaml:"map_h"`
	FoodPerDay int `yaml:"food_per_day"`
}

// Upgrades is the shop table.
type Upgrades struct {
	EnergyAdd   int `yaml:"energy_add"`
	VisionAdd   int `yaml:"vision_add"`
	EnergyCost  int `yaml:"energy_cost"`
	VisionCost  int `yaml:"vision_cost"`
	MaxPurchase int `yaml:"max_purchases"`
}

// Default returns the stock constants.
func Default() Tuning {
	return Tuning{
		FrameMs:   200,
		MaxFrames: 600,
		PauseMs:   3000,

		PickupRadius: 14,
		BaseRadius:   24,
		EatRadius:    14,

		BaseEnergy:   100,
		BaseVision:   60,
		EnergyK:      5.2,
		MoveStepBase: 56,
		WanderRadius: 260,
		WanderMargin: 10,

		PredationRatio: 1.15,
		MutationRate:   0.15,
		TraitMin:       0.5,
		TraitMax:       2.3,
		DangerMin:      0.1,
		DangerMax:      0.9,

		InitialPopulation: 10,
		SpawnSpread:       70,
		SpawnMargin:       20,
		OffspringSpread:   20,
		FoodMargin:        30,

		Lobby: LobbyDefaults{
			MaxDays:    30,
			MapW:       900,
			MapH:       560,
			FoodPerDay: 50,
		},
		Upgrades: Upgrades{
			EnergyAdd:   25,
			VisionAdd:   15,
			EnergyCost:  30,
			VisionCost:  30,
			MaxPurchase: 8,
		},
	}
}

// Load reads a YAML file over the defaults. Keys missing from the file keep their default.
func Load(path string) (Tuning, error) {
	t := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// Validate rejects values the engine cannot run with.
func (t Tuning) Validate() error {
	switch {
	case t.FrameMs <= 0:
		return fmt.Errorf("frame_ms must be > 0")
	case t.MaxFrames <= 0:
		return fmt.Errorf("max_frames must be > 0")
	case t.PauseMs <= 0:
		return fmt.Errorf("pause_ms must be > 0")
	case t.BaseEnergy <= 0:
		return fmt.Errorf("base_energy must be > 0")
	case t.PredationRatio <= 1:
		return fmt.Errorf("predation_ratio must be > 1")
	case t.TraitMin > t.TraitMax || t.DangerMin > t.DangerMax:
		return fmt.Errorf("trait bounds are inverted")
	case t.Lobby.MapW <= 0 || t.Lobby.MapH <= 0:
		return fmt.Errorf("lobby map size must be > 0")
	case t.Lobby.MaxDays <= 0:
		return fmt.Errorf("lobby max_days must be > 0")
	case t.Upgrades.MaxPurchase < 0:
		return fmt.Errorf("upgrades max_purchases must be >= 0")
	}
	return nil
}

// Frame is the playback duration of one frame.
func (t Tuning) Frame() time.Duration {
	return time.Duration(t.FrameMs) * time.Millisecond
}

// Pause is the intermission between two days.
func (t Tuning) Pause() time.Duration {
	return time.Duration(t.PauseMs) * time.Millisecond
}
