// Package zkb polls zKillboard's RedisQ long-poll stream and decodes
// its wire envelopes (spec.md §4.1, §6). The envelope shapes and the
// snake_case/camelCase alias handling are grounded on the teacher's
// internal/zkillboard/dto/redisq.go.
package zkb

import "encoding/json"

// RedisQResponse is the top-level long-poll response: either an empty
// package (no activity) or one new kill.
type RedisQResponse struct {
	Package *RedisQPackage `json:"package"`
}

// RedisQPackage wraps one killmail and zKB's metadata about it.
type RedisQPackage struct {
	Killmail RawKillmail `json:"killmail"`
	ZKB      ZKBData     `json:"zkb"`
}

// ZKBData is zKillboard's metadata envelope, field names as zKB emits
// them (camelCase), aliased onto the snake_case domain model during
// parsing.
type ZKBData struct {
	Hash          string  `json:"hash"`
	TotalValue    float64 `json:"totalValue"`
	Points        int     `json:"points"`
	NPC           bool    `json:"npc"`
	Solo          bool    `json:"solo"`
	Awox          bool    `json:"awox"`
	LocationID    int64   `json:"locationID,omitempty"`
	Href          string  `json:"href,omitempty"`
}

// RawKillmail is the loosely-typed wire shape of an incoming killmail,
// accepted as a raw JSON object so the parser can normalize both the
// snake_case and camelCase field-name aliases documented in spec.md §6
// before validating it.
type RawKillmail map[string]json.RawMessage

// RawVictim and RawAttacker mirror the ESI killmail shape's nested
// objects; they are decoded after normalization, once field names have
// been canonicalized to snake_case.
type RawVictim struct {
	CharacterID   *int64     `json:"character_id,omitempty"`
	CorporationID *int64     `json:"corporation_id,omitempty"`
	AllianceID    *int64     `json:"alliance_id,omitempty"`
	ShipTypeID    *int64     `json:"ship_type_id,omitempty"`
	DamageTaken   *int64     `json:"damage_taken,omitempty"`
	Position      *RawPos    `json:"position,omitempty"`
	Items         []RawItem  `json:"items,omitempty"`
}

type RawPos struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type RawItem struct {
	ItemTypeID        int64     `json:"item_type_id"`
	Flag              int64     `json:"flag"`
	Singleton         int64     `json:"singleton"`
	QuantityDestroyed *int64    `json:"quantity_destroyed,omitempty"`
	QuantityDropped   *int64    `json:"quantity_dropped,omitempty"`
	Items             []RawItem `json:"items,omitempty"`
}

type RawAttacker struct {
	CharacterID    *int64   `json:"character_id,omitempty"`
	CorporationID  *int64   `json:"corporation_id,omitempty"`
	AllianceID     *int64   `json:"alliance_id,omitempty"`
	ShipTypeID     *int64   `json:"ship_type_id,omitempty"`
	WeaponTypeID   *int64   `json:"weapon_type_id,omitempty"`
	DamageDone     *int64   `json:"damage_done,omitempty"`
	FinalBlow      bool     `json:"final_blow"`
	SecurityStatus *float64 `json:"security_status,omitempty"`
}
