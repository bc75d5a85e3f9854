package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/zeedohq/reversal-bot/internal/exchange"
)

// SubmitOrder places an order built from an OrderRequest. A request with a
// price becomes a GTC limit order, without one a market order. A trigger
// price makes the order conditional; the trigger direction is derived from
// the order side, which is correct for protective stops (a Sell stop fires
// on falling price, a Buy stop on rising price).
func (c *Client) SubmitOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.Order, error) {
	if req.Symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if req.Qty <= 0 {
		return nil, fmt.Errorf("qty must be positive")
	}

	decimals, err := c.SizeDecimals(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}

	orderType := "Market"
	if req.Price > 0 {
		orderType = "Limit"
	}

	params := map[string]interface{}{
		"category":  category,
		"symbol":    c.instrument(req.Symbol),
		"side":      string(req.Side),
		"orderType": orderType,
		"qty":       formatQty(req.Qty, decimals),
	}
	if req.Price > 0 {
		params["price"] = formatPrice(req.Price)
		params["timeInForce"] = "GTC"
	}
	if req.TriggerPrice > 0 {
		params["triggerPrice"] = formatPrice(req.TriggerPrice)
		params["triggerDirection"] = triggerDirection(req.Side)
	}
	if req.ReduceOnly {
		params["reduceOnly"] = true
	}
	if req.LinkID != "" {
		params["orderLinkId"] = req.LinkID
	}

	var placed *exchange.Order
	err = c.retry(ctx, func() error {
		result, err := c.httpClient.NewUtaBybitServiceWithParams(params).PlaceOrder(ctx)
		if err != nil {
			return fmt.Errorf("failed to place order: %w", err)
		}
		placed, err = c.parsePlacedOrder(result, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return placed, nil
}

// triggerDirection maps the order side to Bybit's trigger direction enum:
// 1 fires when price rises to the trigger, 2 when it falls.
func triggerDirection(side exchange.OrderSide) int {
	if side == exchange.Buy {
		return 1
	}
	return 2
}

func (c *Client) parsePlacedOrder(response interface{}, req exchange.OrderRequest) (*exchange.Order, error) {
	serverResp, err := checkResponse(response)
	if err != nil {
		return nil, err
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order result: %w", err)
	}

	var orderResult struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
	}
	if err := json.Unmarshal(resultBytes, &orderResult); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order result: %w", err)
	}

	return &exchange.Order{
		ID:           orderResult.OrderID,
		LinkID:       orderResult.OrderLinkID,
		Symbol:       req.Symbol,
		Side:         req.Side,
		Qty:          req.Qty,
		Price:        req.Price,
		TriggerPrice: req.TriggerPrice,
		ReduceOnly:   req.ReduceOnly,
		Status:       "New",
		CreatedAt:    time.Now(),
	}, nil
}

// CancelOrder cancels one order. A venue report that the order no longer
// exists is not an error; it raced a fill or an earlier cancel.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := map[string]interface{}{
		"category": category,
		"symbol":   c.instrument(symbol),
		"orderId":  orderID,
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).CancelOrder(ctx)
	if err != nil {
		return fmt.Errorf("failed to cancel order: %w", err)
	}
	if _, err := checkResponse(result); err != nil {
		if IsOrderNotFound(err) {
			return nil
		}
		return err
	}
	return nil
}

// CancelAllOrders cancels every open order on a symbol, conditional orders
// included.
func (c *Client) CancelAllOrders(ctx context.Context, symbol string) error {
	params := map[string]interface{}{
		"category": category,
		"symbol":   c.instrument(symbol),
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).CancelAllOrders(ctx)
	if err != nil {
		return fmt.Errorf("failed to cancel all orders: %w", err)
	}
	_, err = checkResponse(result)
	return err
}

// ClosedPnL returns realized-PnL records for a symbol since the given time,
// oldest first. Each record corresponds to one closing order; the pnl field
// is net of fees.
func (c *Client) ClosedPnL(ctx context.Context, symbol string, since time.Time) ([]exchange.Fill, error) {
	params := map[string]interface{}{
		"category": category,
		"symbol":   c.instrument(symbol),
		"limit":    100,
	}
	if !since.IsZero() {
		params["startTime"] = since.UnixMilli()
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetClosePnl(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get closed pnl: %w", err)
	}
	serverResp, err := checkResponse(result)
	if err != nil {
		return nil, err
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal closed pnl result: %w", err)
	}

	var pnlResult struct {
		List []struct {
			Symbol      string `json:"symbol"`
			OrderID     string `json:"orderId"`
			Side        string `json:"side"`
			Qty         string `json:"qty"`
			AvgExitPx   string `json:"avgExitPrice"`
			ClosedPnl   string `json:"closedPnl"`
			UpdatedTime string `json:"updatedTime"`
		} `json:"list"`
	}
	if err := json.Unmarshal(resultBytes, &pnlResult); err != nil {
		return nil, fmt.Errorf("failed to unmarshal closed pnl result: %w", err)
	}

	// Bybit returns newest first.
	fills := make([]exchange.Fill, 0, len(pnlResult.List))
	for i := len(pnlResult.List) - 1; i >= 0; i-- {
		r := pnlResult.List[i]
		fills = append(fills, exchange.Fill{
			Symbol:  c.baseCoin(r.Symbol),
			OrderID: r.OrderID,
			Side:    exchange.OrderSide(r.Side),
			Qty:     parseFloat64(r.Qty),
			Price:   parseFloat64(r.AvgExitPx),
			Pnl:     parseFloat64(r.ClosedPnl),
			Time:    parseTimestamp(r.UpdatedTime),
		})
	}
	return fills, nil
}
