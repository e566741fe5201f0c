package domain

// MaxCarriedFood is how many food units a creature can hold.
const MaxCarriedFood = 2

// Creature is one agent of a slot's population. Dead creatures are kept as history.
type Creature struct {
	ID          int64   `db:"id"`
	Owner       int     `db:"owner"`
	Alive       bool    `db:"alive"`
	Size        float64 `db:"size"`
	Speed       float64 `db:"speed"`
	Danger      float64 `db:"danger"`
	EnergyMax   float64 `db:"energy_max"`
	Energy      float64 `db:"energy"`
	Vision      float64 `db:"vision"`
	X           float64 `db:"x"`
	Y           float64 `db:"y"`
	CarriedFood int     `db:"carried_food"`
	CreatedDay  int     `db:"created_day"`
}

// Exhausted reports whether the creature can no longer act this day.
func (c *Creature) Exhausted() bool {
	return !c.Alive || c.Energy <= 0
}

// Food is a single pickup on the map. The set is replaced every day.
type Food struct {
	ID     int64   `db:"id"`
	X      float64 `db:"x"`
	Y      float64 `db:"y"`
	Active bool    `db:"active"`
}
