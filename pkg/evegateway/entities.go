package evegateway

import (
	"context"
	"encoding/json"
	"fmt"
)

// GetCharacter fetches a public character sheet.
func (c *Client) GetCharacter(ctx context.Context, characterID int64) (*Character, error) {
	var out Character
	key := fmt.Sprintf("character:%d", characterID)
	if c.cachedEntity(ctx, key, &out) {
		return &out, nil
	}
	if err := c.getJSON(ctx, fmt.Sprintf("/characters/%d/", characterID), &out); err != nil {
		return nil, err
	}
	out.CharacterID = characterID
	c.storeEntity(ctx, key, &out)
	return &out, nil
}

// GetCorporation fetches a public corporation sheet.
func (c *Client) GetCorporation(ctx context.Context, corporationID int64) (*Corporation, error) {
	var out Corporation
	key := fmt.Sprintf("corporation:%d", corporationID)
	if c.cachedEntity(ctx, key, &out) {
		return &out, nil
	}
	if err := c.getJSON(ctx, fmt.Sprintf("/corporations/%d/", corporationID), &out); err != nil {
		return nil, err
	}
	out.CorporationID = corporationID
	c.storeEntity(ctx, key, &out)
	return &out, nil
}

// GetAlliance fetches a public alliance sheet.
func (c *Client) GetAlliance(ctx context.Context, allianceID int64) (*Alliance, error) {
	var out Alliance
	key := fmt.Sprintf("alliance:%d", allianceID)
	if c.cachedEntity(ctx, key, &out) {
		return &out, nil
	}
	if err := c.getJSON(ctx, fmt.Sprintf("/alliances/%d/", allianceID), &out); err != nil {
		return nil, err
	}
	out.AllianceID = allianceID
	c.storeEntity(ctx, key, &out)
	return &out, nil
}

// GetSystem fetches a solar system record.
func (c *Client) GetSystem(ctx context.Context, systemID int64) (*SolarSystem, error) {
	var out SolarSystem
	key := fmt.Sprintf("system:%d", systemID)
	if c.cachedEntity(ctx, key, &out) {
		return &out, nil
	}
	if err := c.getJSON(ctx, fmt.Sprintf("/universe/systems/%d/", systemID), &out); err != nil {
		return nil, err
	}
	out.SystemID = systemID
	c.storeEntity(ctx, key, &out)
	return &out, nil
}

func (c *Client) cachedEntity(ctx context.Context, key string, out any) bool {
	data, ok := c.entities.Get(ctx, key)
	if !ok {
		return false
	}
	return json.Unmarshal(data, out) == nil
}

func (c *Client) storeEntity(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.entities.Set(ctx, key, data, entityCacheTTL)
}
