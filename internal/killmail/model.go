// Package killmail defines the Killmail data model and the
// Parser/Enricher pipeline (spec.md §3, §4.2).
package killmail

import "time"

// Position is the 3D location of a victim's wreck, carried over from
// the ESI killmail shape.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Item is a fitted or cargo item destroyed or dropped with the kill.
type Item struct {
	ItemTypeID        int64  `json:"item_type_id"`
	Flag              int64  `json:"flag"`
	Singleton         int64  `json:"singleton"`
	QuantityDestroyed *int64 `json:"quantity_destroyed,omitempty"`
	QuantityDropped   *int64 `json:"quantity_dropped,omitempty"`
	Items             []Item `json:"items,omitempty"`
}

// Entity is the enriched reference data attached to a victim or
// attacker after lookup through the reference cache (spec.md §4.2
// steps 6-7).
type Entity struct {
	ID   int64  `json:"id"`
	Name string `json:"name,omitempty"`
}

// Victim is the ship and pilot lost in the killmail.
type Victim struct {
	CharacterID   *int64 `json:"character_id,omitempty"`
	CorporationID *int64 `json:"corporation_id,omitempty"`
	AllianceID    *int64 `json:"alliance_id,omitempty"`
	ShipTypeID    int64  `json:"ship_type_id"`
	DamageTaken   int64  `json:"damage_taken"`

	Position *Position `json:"position,omitempty"`
	Items    []Item    `json:"items,omitempty"`

	// Populated by enrichment (spec.md §4.2 step 6). Nil when the
	// corresponding ID was absent or the lookup failed.
	Character   *Entity `json:"character,omitempty"`
	Corporation *Entity `json:"corporation,omitempty"`
	Alliance    *Entity `json:"alliance,omitempty"`
	Ship        *Entity `json:"ship,omitempty"`
}

// Attacker is one participant credited with damage on the killmail.
type Attacker struct {
	CharacterID    *int64  `json:"character_id,omitempty"`
	CorporationID  *int64  `json:"corporation_id,omitempty"`
	AllianceID     *int64  `json:"alliance_id,omitempty"`
	ShipTypeID     *int64  `json:"ship_type_id,omitempty"`
	WeaponTypeID   *int64  `json:"weapon_type_id,omitempty"`
	DamageDone     int64   `json:"damage_done"`
	FinalBlow      bool    `json:"final_blow"`
	SecurityStatus float64 `json:"security_status"`

	Character   *Entity `json:"character,omitempty"`
	Corporation *Entity `json:"corporation,omitempty"`
	Alliance    *Entity `json:"alliance,omitempty"`
	Ship        *Entity `json:"ship,omitempty"`
}

// ZKBMetadata is zKillboard's metadata about a killmail (spec.md §3,
// §6 zkb object).
type ZKBMetadata struct {
	Hash        string  `json:"hash"`
	TotalValue  float64 `json:"total_value"`
	Points      int     `json:"points"`
	NPC         bool    `json:"npc"`
	Solo        bool    `json:"solo"`
	Awox        bool    `json:"awox"`
	LocationID  int64   `json:"location_id,omitempty"`
	Href        string  `json:"href,omitempty"`
}

// Killmail is the immutable (post-enrichment) record stored in the
// EventStore (spec.md §3).
type Killmail struct {
	KillmailID    int64     `json:"killmail_id"`
	SolarSystemID int64     `json:"solar_system_id"`
	KillTime      time.Time `json:"kill_time"`

	Victim    Victim     `json:"victim"`
	Attackers []Attacker `json:"attackers"`
	ZKB       ZKBMetadata `json:"zkb"`

	// Flattened convenience fields (spec.md §4.2 step 8).
	VictimCharacterID *int64 `json:"victim_char_id,omitempty"`
	VictimShipTypeID  int64  `json:"victim_ship_type_id"`
	AttackerCount     int    `json:"attacker_count"`
}

// CharacterIDs returns the victim's character ID plus every attacker's
// character ID, deduplicated, omitting nils (spec.md §4.8).
func (k *Killmail) CharacterIDs() []int64 {
	seen := make(map[int64]struct{})
	var out []int64
	add := func(id *int64) {
		if id == nil {
			return
		}
		if _, ok := seen[*id]; ok {
			return
		}
		seen[*id] = struct{}{}
		out = append(out, *id)
	}

	add(k.Victim.CharacterID)
	for i := range k.Attackers {
		add(k.Attackers[i].CharacterID)
	}
	return out
}
