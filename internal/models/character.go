package models

// HealthStatus is the three-step severity ladder of the character sheet.
type HealthStatus string

const (
	HealthWell   HealthStatus = "well"
	HealthHurt   HealthStatus = "hurt"
	HealthDanger HealthStatus = "danger"
)

// Attributes are the three numeric stats. Their sum must equal PointBudget
// at creation time; afterwards the sheet is free to drift.
type Attributes struct {
	Courage int `json:"courage"`
	Wisdom  int `json:"wisdom"`
	Heart   int `json:"heart"`
}

// Sum returns courage + wisdom + heart.
func (a Attributes) Sum() int {
	return a.Courage + a.Wisdom + a.Heart
}

// Characteristics are the three one-time-use narrative advantages, one per
// attribute, each flagged consumed once spent.
type Characteristics struct {
	Courage string              `json:"courage"`
	Wisdom  string              `json:"wisdom"`
	Heart   string              `json:"heart"`
	Used    CharacteristicsUsed `json:"used"`
}

// CharacteristicsUsed tracks which advantages have been spent.
type CharacteristicsUsed struct {
	Courage bool `json:"courage"`
	Wisdom  bool `json:"wisdom"`
	Heart   bool `json:"heart"`
}

// Character is the player sheet. Mutated in place by sheet updates; no
// history of past states is kept.
type Character struct {
	Name            string          `json:"name"`
	Presentation    string          `json:"presentation"`
	Attributes      Attributes      `json:"attributes"`
	Characteristics Characteristics `json:"characteristics"`
	Health          HealthStatus    `json:"health"`
	PlotPoints      int             `json:"plotPoints"`
	Equipment       []string        `json:"equipment"`
}

// NewCharacter seeds the post-creation defaults for a validated sheet.
func NewCharacter(name, presentation string, attrs Attributes, chars Characteristics) *Character {
	return &Character{
		Name:            name,
		Presentation:    presentation,
		Attributes:      attrs,
		Characteristics: chars,
		Health:          HealthWell,
		PlotPoints:      InitialPlotPoints,
		Equipment:       []string{},
	}
}

// Clone returns a deep copy of the sheet.
func (c *Character) Clone() *Character {
	cp := *c
	cp.Equipment = append([]string(nil), c.Equipment...)
	return &cp
}

// Valid reports whether the sheet satisfies the creation contract: name,
// presentation and all three characteristic texts non-empty, and the
// attribute sum exactly equal to the point budget.
func (c *Character) Valid() bool {
	if c.Name == "" || c.Presentation == "" {
		return false
	}
	if c.Characteristics.Courage == "" || c.Characteristics.Wisdom == "" || c.Characteristics.Heart == "" {
		return false
	}
	return c.Attributes.Sum() == PointBudget
}

// ClampEquipment truncates the equipment list to the allowed maximum.
func (c *Character) ClampEquipment() {
	if len(c.Equipment) > MaxEquipment {
		c.Equipment = c.Equipment[:MaxEquipment]
	}
}
