// Package esi is the read-only client for EVE's public reference API
// (spec.md §4.2 steps 6-7, §6). It is grounded on the shape of the
// teacher's pkg/evegateway/killmails client: a thin Client type
// over a shared retrying HTTP fetcher, with named Get<Entity> methods
// wrapped in an OpenTelemetry span.
package esi

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"

	"wandererkills/internal/platform/apperr"
	"wandererkills/internal/platform/config"
	"wandererkills/internal/platform/httpfetch"
	"wandererkills/internal/refcache"
)

var tracer = otel.Tracer("wandererkills/esi")

// Character is the subset of ESI's character reference fields this
// service enriches killmails with.
type Character struct {
	Name          string `json:"name"`
	CorporationID int64  `json:"corporation_id"`
	AllianceID    int64  `json:"alliance_id,omitempty"`
}

// Corporation is the subset of ESI's corporation reference fields.
type Corporation struct {
	Name       string `json:"name"`
	Ticker     string `json:"ticker"`
	AllianceID int64  `json:"alliance_id,omitempty"`
}

// Alliance is the subset of ESI's alliance reference fields.
type Alliance struct {
	Name   string `json:"name"`
	Ticker string `json:"ticker"`
}

// ShipType is the subset of ESI's universe/types reference fields.
type ShipType struct {
	Name    string `json:"name"`
	GroupID int64  `json:"group_id"`
}

// Client fetches EVE reference data over ESI, rate-limited and
// retried through a shared httpfetch.Fetcher.
type Client struct {
	fetcher *httpfetch.Fetcher
	cfg     config.ESIConfig
}

// New builds a Client bound to the given configuration.
func New(fetcher *httpfetch.Fetcher, cfg config.ESIConfig) *Client {
	return &Client{fetcher: fetcher, cfg: cfg}
}

func (c *Client) get(ctx context.Context, spanName, path string, out any) error {
	ctx, span := tracer.Start(ctx, spanName)
	defer span.End()

	url := fmt.Sprintf("%s%s", c.cfg.Base, path)
	body, err := c.fetcher.Get(ctx, url, httpfetch.Options{
		Upstream: "esi",
		Headers:  map[string]string{"User-Agent": c.cfg.UserAgent},
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return apperr.Wrap(apperr.KindUpstream, apperr.CodeESIError, "failed to decode ESI response", err)
	}
	return nil
}

// GetCharacter fetches a character by ID.
func (c *Client) GetCharacter(ctx context.Context, id int64) (*Character, error) {
	var out Character
	if err := c.get(ctx, "esi.GetCharacter", fmt.Sprintf("/characters/%d/", id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetCorporation fetches a corporation by ID.
func (c *Client) GetCorporation(ctx context.Context, id int64) (*Corporation, error) {
	var out Corporation
	if err := c.get(ctx, "esi.GetCorporation", fmt.Sprintf("/corporations/%d/", id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAlliance fetches an alliance by ID.
func (c *Client) GetAlliance(ctx context.Context, id int64) (*Alliance, error) {
	var out Alliance
	if err := c.get(ctx, "esi.GetAlliance", fmt.Sprintf("/alliances/%d/", id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetShipType fetches a universe type (used for ship names) by ID.
func (c *Client) GetShipType(ctx context.Context, id int64) (*ShipType, error) {
	var out ShipType
	if err := c.get(ctx, "esi.GetShipType", fmt.Sprintf("/universe/types/%d/", id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Loader adapts Client into a refcache.Loader, the integration point
// spec.md §4.2 describes between enrichment and the reference cache.
func (c *Client) Loader() refcache.Loader {
	return func(ctx context.Context, kind refcache.Kind, id int64) (any, error) {
		switch kind {
		case refcache.KindCharacter:
			v, err := c.GetCharacter(ctx, id)
			return notFoundToNil(v, err)
		case refcache.KindCorporation:
			v, err := c.GetCorporation(ctx, id)
			return notFoundToNil(v, err)
		case refcache.KindAlliance:
			v, err := c.GetAlliance(ctx, id)
			return notFoundToNil(v, err)
		case refcache.KindShipType:
			v, err := c.GetShipType(ctx, id)
			return notFoundToNil(v, err)
		default:
			return nil, apperr.New(apperr.KindUpstream, apperr.CodeESIError, "unknown reference kind")
		}
	}
}

// notFoundToNil turns a not_found cache error into the (nil, nil)
// shape refcache.Loader treats as a negative result, letting every
// other error still propagate.
func notFoundToNil[T any](v *T, err error) (any, error) {
	if err != nil {
		var ae *apperr.Error
		if ok := errorsAsApperr(err, &ae); ok && ae.Code == apperr.CodeNotFound {
			return nil, nil
		}
		return nil, err
	}
	return v, nil
}

func errorsAsApperr(err error, target **apperr.Error) bool {
	for err != nil {
		if ae, ok := err.(*apperr.Error); ok {
			*target = ae
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
