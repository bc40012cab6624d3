// Parser/Enricher pipeline (spec.md §4.2): a chain of pure-functional
// stages over the raw killmail, each returning the next stage's input
// or a typed error. Grounded on the teacher's KillmailProcessor in
// internal/zkillboard/services/processor.go, whose convertToKillmail/
// convertItems conversion style this generalizes into explicit named
// stages.
package killmail

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"wandererkills/internal/platform/apperr"
	"wandererkills/internal/zkb"
)

// aliases maps every accepted camelCase/alternate field name to its
// canonical snake_case name (spec.md §6).
var aliases = map[string]string{
	"killID":        "killmail_id",
	"solarSystemID": "solar_system_id",
	"killTime":      "killmail_time",
}

// normalize rewrites any aliased keys in the raw killmail map to their
// canonical snake_case form (stage 1).
func normalize(raw zkb.RawKillmail) zkb.RawKillmail {
	out := make(zkb.RawKillmail, len(raw))
	for k, v := range raw {
		if canon, ok := aliases[k]; ok {
			out[canon] = v
			continue
		}
		out[k] = v
	}
	return out
}

// validate checks that every required field is present (stage 2).
func validate(raw zkb.RawKillmail) error {
	required := []string{"killmail_id", "solar_system_id", "victim", "attackers"}
	for _, field := range required {
		if _, ok := raw[field]; !ok {
			return apperr.New(apperr.KindParse, apperr.CodeMissingRequiredFields, fmt.Sprintf("missing field %q", field))
		}
	}

	if _, ok := raw["killmail_time"]; !ok {
		if _, ok := raw["kill_time"]; !ok {
			return apperr.New(apperr.KindKillmail, apperr.CodeMissingKillTime, "missing killmail_time/kill_time")
		}
	}
	return nil
}

// parseTime extracts and parses the kill time as ISO-8601 UTC (stage 3).
func parseTime(raw zkb.RawKillmail) (time.Time, error) {
	field := raw["killmail_time"]
	if field == nil {
		field = raw["kill_time"]
	}

	var s string
	if err := json.Unmarshal(field, &s); err != nil {
		return time.Time{}, apperr.Wrap(apperr.KindParse, apperr.CodeInvalidTime, "kill time is not a string", err)
	}

	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, apperr.Wrap(apperr.KindParse, apperr.CodeInvalidTime, "failed to parse kill time", err)
	}
	return t.UTC(), nil
}

// ErrOlderThanCutoff is the sentinel returned by checkCutoff for
// stage 4's benign-skip outcome.
var ErrOlderThanCutoff = apperr.New(apperr.KindKillmail, apperr.CodeBuildFailed, "older than cutoff")

// checkCutoff returns ErrOlderThanCutoff when killTime predates cutoff
// (stage 4). The caller treats this as a successful skip, never a
// hard failure.
func checkCutoff(killTime, cutoff time.Time) error {
	if killTime.Before(cutoff) {
		return ErrOlderThanCutoff
	}
	return nil
}

func parseInt64(raw json.RawMessage) (int64, bool) {
	if raw == nil {
		return 0, false
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			return v, true
		}
	}
	return 0, false
}

// buildSkeleton decodes stages 1-5's output into an unenriched
// Killmail: the identity fields, victim/attacker raw data, and merged
// zkb metadata (stage 5). The stage-8 flatten runs later, in Enrich.
func buildSkeleton(raw zkb.RawKillmail, killTime time.Time, zkbMeta zkb.ZKBData) (*Killmail, error) {
	killmailID, ok := parseInt64(raw["killmail_id"])
	if !ok {
		return nil, apperr.New(apperr.KindKillmail, apperr.CodeBuildFailed, "killmail_id is not an integer")
	}
	systemID, ok := parseInt64(raw["solar_system_id"])
	if !ok {
		return nil, apperr.New(apperr.KindKillmail, apperr.CodeMissingSystemID, "solar_system_id is not an integer")
	}

	var rawVictim zkb.RawVictim
	if err := json.Unmarshal(raw["victim"], &rawVictim); err != nil {
		return nil, apperr.Wrap(apperr.KindKillmail, apperr.CodeBuildFailed, "failed to decode victim", err)
	}

	var rawAttackers []zkb.RawAttacker
	if err := json.Unmarshal(raw["attackers"], &rawAttackers); err != nil {
		return nil, apperr.Wrap(apperr.KindKillmail, apperr.CodeBuildFailed, "failed to decode attackers", err)
	}

	if zkbMeta.Hash == "" {
		return nil, apperr.New(apperr.KindKillmail, apperr.CodeMissingHash, "zkb metadata missing hash")
	}

	km := &Killmail{
		KillmailID:    killmailID,
		SolarSystemID: systemID,
		KillTime:      killTime,
		Victim:        convertVictim(rawVictim),
		Attackers:      make([]Attacker, 0, len(rawAttackers)),
		ZKB: ZKBMetadata{
			Hash:       zkbMeta.Hash,
			TotalValue: zkbMeta.TotalValue,
			Points:     zkbMeta.Points,
			NPC:        zkbMeta.NPC,
			Solo:       zkbMeta.Solo,
			Awox:       zkbMeta.Awox,
			LocationID: zkbMeta.LocationID,
			Href:       zkbMeta.Href,
		},
	}
	for _, ra := range rawAttackers {
		km.Attackers = append(km.Attackers, convertAttacker(ra))
	}
	return km, nil
}

func convertVictim(rv zkb.RawVictim) Victim {
	v := Victim{
		CharacterID:   rv.CharacterID,
		CorporationID: rv.CorporationID,
		AllianceID:    rv.AllianceID,
		Items:         convertItems(rv.Items),
	}
	if rv.ShipTypeID != nil {
		v.ShipTypeID = *rv.ShipTypeID
	}
	if rv.DamageTaken != nil {
		v.DamageTaken = *rv.DamageTaken
	}
	if rv.Position != nil {
		v.Position = &Position{X: rv.Position.X, Y: rv.Position.Y, Z: rv.Position.Z}
	}
	return v
}

func convertItems(raw []zkb.RawItem) []Item {
	if raw == nil {
		return nil
	}
	out := make([]Item, 0, len(raw))
	for _, ri := range raw {
		out = append(out, Item{
			ItemTypeID:        ri.ItemTypeID,
			Flag:              ri.Flag,
			Singleton:         ri.Singleton,
			QuantityDestroyed: ri.QuantityDestroyed,
			QuantityDropped:   ri.QuantityDropped,
			Items:             convertItems(ri.Items),
		})
	}
	return out
}

func convertAttacker(ra zkb.RawAttacker) Attacker {
	a := Attacker{
		CharacterID:   ra.CharacterID,
		CorporationID: ra.CorporationID,
		AllianceID:    ra.AllianceID,
		ShipTypeID:    ra.ShipTypeID,
		WeaponTypeID:  ra.WeaponTypeID,
		FinalBlow:     ra.FinalBlow,
	}
	if ra.DamageDone != nil {
		a.DamageDone = *ra.DamageDone
	}
	if ra.SecurityStatus != nil {
		a.SecurityStatus = *ra.SecurityStatus
	}
	return a
}

// flatten computes the stage-8 convenience fields.
func flatten(km *Killmail) {
	km.VictimCharacterID = km.Victim.CharacterID
	km.VictimShipTypeID = km.Victim.ShipTypeID
	km.AttackerCount = len(km.Attackers)
}
