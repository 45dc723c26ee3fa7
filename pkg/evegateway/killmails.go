package evegateway

import (
	"context"
	"fmt"
)

// GetKillmail fetches the full killmail payload by ID and hash. Killmails are
// immutable upstream, so responses are never cached here; the enrichment
// pipeline persists what it needs and never re-fetches a succeeded event.
func (c *Client) GetKillmail(ctx context.Context, killmailID int64, hash string) (*Killmail, error) {
	var out Killmail
	path := fmt.Sprintf("/killmails/%d/%s/", killmailID, hash)
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
