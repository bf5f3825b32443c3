package client

import (
	"context"
	"net/http"

	"report-desk/internal/domain"
)

// Stats fetches the dashboard counters.
func (c *Client) Stats(ctx context.Context) (domain.Stats, error) {
	payload, err := c.Do(ctx, Call{
		Method:   http.MethodGet,
		Path:     "/stats/all",
		Response: ResponseJSON,
	})
	if err != nil {
		return domain.Stats{}, err
	}

	var stats domain.Stats
	if err := payload.DecodeJSON(&stats); err != nil {
		return domain.Stats{}, domain.WrapError(domain.KindMalformedResponse, "unexpected stats reply", err)
	}
	return stats, nil
}
