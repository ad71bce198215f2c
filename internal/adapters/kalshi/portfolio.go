package kalshi

// portfolio.go: ports.Exchange implementation over the trade API.
//
// List endpoints are paginated with a cursor loop that terminates when the
// exchange returns no cursor. Prices stored on orders and fills are in the
// order's own side space (the cents the holder pays per contract); market
// quotes stay in YES space.

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/JWax21/kalshi-strat-1-sub001/internal/domain"
	"github.com/JWax21/kalshi-strat-1-sub001/internal/ports"
)

// GetBalance returns cash and position value in cents.
func (c *Client) GetBalance(ctx context.Context) (domain.Balance, error) {
	var resp balanceResponse
	if err := c.get(ctx, "/portfolio/balance", &resp); err != nil {
		return domain.Balance{}, fmt.Errorf("kalshi.GetBalance: %w", err)
	}
	return domain.Balance{Cash: resp.Balance, PositionValue: resp.PositionValue}, nil
}

// GetPositions returns every market position with non-zero exposure.
func (c *Client) GetPositions(ctx context.Context) ([]domain.Position, error) {
	var out []domain.Position
	cursor := ""
	for {
		path := fmt.Sprintf("/portfolio/positions?limit=%d", pageLimit)
		if cursor != "" {
			path += "&cursor=" + url.QueryEscape(cursor)
		}
		var resp positionsResponse
		if err := c.get(ctx, path, &resp); err != nil {
			return nil, fmt.Errorf("kalshi.GetPositions: %w", err)
		}
		for _, p := range resp.MarketPositions {
			if p.Position == 0 {
				continue
			}
			side := domain.SideYes
			contracts := p.Position
			if contracts < 0 {
				side = domain.SideNo
				contracts = -contracts
			}
			out = append(out, domain.Position{
				MarketID:     p.Ticker,
				Side:         side,
				NetContracts: contracts,
				ExposureCost: p.MarketExposure,
			})
		}
		if resp.Cursor == "" {
			return out, nil
		}
		cursor = resp.Cursor
	}
}

// GetOrders returns every exchange order, paginated to completion.
func (c *Client) GetOrders(ctx context.Context) ([]domain.ExchangeOrder, error) {
	var out []domain.ExchangeOrder
	cursor := ""
	for {
		path := fmt.Sprintf("/portfolio/orders?limit=%d", pageLimit)
		if cursor != "" {
			path += "&cursor=" + url.QueryEscape(cursor)
		}
		var resp ordersResponse
		if err := c.get(ctx, path, &resp); err != nil {
			return nil, fmt.Errorf("kalshi.GetOrders: %w", err)
		}
		for _, o := range resp.Orders {
			out = append(out, mapOrder(o))
		}
		if resp.Cursor == "" {
			return out, nil
		}
		cursor = resp.Cursor
	}
}

// GetFills returns every fill, paginated to completion.
func (c *Client) GetFills(ctx context.Context) ([]domain.Fill, error) {
	var out []domain.Fill
	cursor := ""
	for {
		path := fmt.Sprintf("/portfolio/fills?limit=%d", pageLimit)
		if cursor != "" {
			path += "&cursor=" + url.QueryEscape(cursor)
		}
		var resp fillsResponse
		if err := c.get(ctx, path, &resp); err != nil {
			return nil, fmt.Errorf("kalshi.GetFills: %w", err)
		}
		for _, f := range resp.Fills {
			side := domain.Side(f.Side)
			price := f.YesPrice
			if side == domain.SideNo {
				price = f.NoPrice
			}
			out = append(out, domain.Fill{
				ExternalOrderID: f.OrderID,
				Count:           f.Count,
				Price:           price,
				Side:            side,
				CreatedAt:       parseTime(f.CreatedTime),
			})
		}
		if resp.Cursor == "" {
			return out, nil
		}
		cursor = resp.Cursor
	}
}

// GetSettlements returns every settlement, paginated to completion.
func (c *Client) GetSettlements(ctx context.Context) ([]domain.Settlement, error) {
	var out []domain.Settlement
	cursor := ""
	for {
		path := fmt.Sprintf("/portfolio/settlements?limit=%d", pageLimit)
		if cursor != "" {
			path += "&cursor=" + url.QueryEscape(cursor)
		}
		var resp settlementsResponse
		if err := c.get(ctx, path, &resp); err != nil {
			return nil, fmt.Errorf("kalshi.GetSettlements: %w", err)
		}
		for _, s := range resp.Settlements {
			out = append(out, domain.Settlement{
				MarketID:   s.Ticker,
				ResultSide: domain.Side(s.MarketResult),
				Revenue:    s.Revenue,
				Fee:        s.Fee,
				SettledAt:  parseTime(s.SettledTime),
			})
		}
		if resp.Cursor == "" {
			return out, nil
		}
		cursor = resp.Cursor
	}
}

// SubmitOrder places an order. Safe to retry: the exchange deduplicates on
// the client-assigned id.
func (c *Client) SubmitOrder(ctx context.Context, req ports.SubmitOrderRequest) (ports.SubmitResult, error) {
	body := createOrderRequest{
		ClientOrderID: req.ClientID,
		Ticker:        req.MarketID,
		Side:          string(req.Side),
		Action:        req.Action,
		Type:          req.Type,
		Count:         req.Units,
	}
	if req.Type == "limit" {
		if req.Side == domain.SideYes {
			body.YesPrice = req.LimitPrice
		} else {
			body.NoPrice = req.LimitPrice
		}
	}

	var resp createOrderResponse
	if err := c.post(ctx, "/portfolio/orders", body, &resp); err != nil {
		return ports.SubmitResult{}, fmt.Errorf("kalshi.SubmitOrder %s: %w", req.MarketID, err)
	}

	mapped := mapOrder(resp.Order)
	return ports.SubmitResult{
		ExternalOrderID: mapped.ExternalID,
		Status:          mapped.Status,
		FilledCount:     mapped.FilledCount,
		ExecutedPrice:   mapped.Price,
	}, nil
}

// CancelOrder cancels a resting order by its exchange id.
func (c *Client) CancelOrder(ctx context.Context, externalOrderID string) error {
	if err := c.del(ctx, "/portfolio/orders/"+url.PathEscape(externalOrderID), nil); err != nil {
		return fmt.Errorf("kalshi.CancelOrder %s: %w", externalOrderID, err)
	}
	return nil
}

func mapOrder(o apiOrder) domain.ExchangeOrder {
	side := domain.Side(o.Side)
	price := o.YesPrice
	if side == domain.SideNo {
		price = o.NoPrice
	}
	return domain.ExchangeOrder{
		ExternalID:  o.OrderID,
		ClientID:    o.ClientOrderID,
		MarketID:    o.Ticker,
		Side:        side,
		Status:      o.Status,
		FilledCount: o.FillCount,
		Price:       price,
		CreatedAt:   parseTime(o.CreatedTime),
	}
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}
