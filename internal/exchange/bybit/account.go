package bybit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/zeedohq/reversal-bot/internal/exchange"
)

// AccountState snapshots positions, open orders and account equity in one
// call sequence. Positions with zero size are dropped.
func (c *Client) AccountState(ctx context.Context) (*exchange.AccountState, error) {
	positions, err := c.positions(ctx)
	if err != nil {
		return nil, err
	}
	orders, err := c.openOrders(ctx)
	if err != nil {
		return nil, err
	}
	equity, err := c.equity(ctx)
	if err != nil {
		return nil, err
	}
	return &exchange.AccountState{
		Positions:  positions,
		OpenOrders: orders,
		Equity:     equity,
	}, nil
}

func (c *Client) positions(ctx context.Context) ([]exchange.Position, error) {
	params := map[string]interface{}{
		"category":   category,
		"settleCoin": c.quote,
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetPositionList(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}
	serverResp, err := checkResponse(result)
	if err != nil {
		return nil, err
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal position result: %w", err)
	}

	var positionResult struct {
		List []struct {
			Symbol        string `json:"symbol"`
			Side          string `json:"side"`
			Size          string `json:"size"`
			EntryPrice    string `json:"avgPrice"`
			MarkPrice     string `json:"markPrice"`
			UnrealisedPnl string `json:"unrealisedPnl"`
			StopLoss      string `json:"stopLoss"`
			TakeProfit    string `json:"takeProfit"`
		} `json:"list"`
	}
	if err := json.Unmarshal(resultBytes, &positionResult); err != nil {
		return nil, fmt.Errorf("failed to unmarshal position result: %w", err)
	}

	var positions []exchange.Position
	for _, p := range positionResult.List {
		size := parseFloat64(p.Size)
		if size == 0 {
			continue
		}
		positions = append(positions, exchange.Position{
			Symbol:        c.baseCoin(p.Symbol),
			Side:          exchange.OrderSide(p.Side),
			Size:          size,
			EntryPrice:    parseFloat64(p.EntryPrice),
			MarkPrice:     parseFloat64(p.MarkPrice),
			UnrealizedPnl: parseFloat64(p.UnrealisedPnl),
			StopLoss:      parseFloat64(p.StopLoss),
			TakeProfit:    parseFloat64(p.TakeProfit),
		})
	}
	return positions, nil
}

func (c *Client) openOrders(ctx context.Context) ([]exchange.Order, error) {
	params := map[string]interface{}{
		"category":   category,
		"settleCoin": c.quote,
		"limit":      50,
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetOpenOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get open orders: %w", err)
	}
	return c.parseOrderList(result)
}

func (c *Client) parseOrderList(response interface{}) ([]exchange.Order, error) {
	serverResp, err := checkResponse(response)
	if err != nil {
		return nil, err
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order result: %w", err)
	}

	var orderListResult struct {
		List []struct {
			OrderID      string `json:"orderId"`
			OrderLinkID  string `json:"orderLinkId"`
			Symbol       string `json:"symbol"`
			Side         string `json:"side"`
			Qty          string `json:"qty"`
			Price        string `json:"price"`
			TriggerPrice string `json:"triggerPrice"`
			ReduceOnly   bool   `json:"reduceOnly"`
			CumExecQty   string `json:"cumExecQty"`
			AvgPrice     string `json:"avgPrice"`
			OrderStatus  string `json:"orderStatus"`
			CreatedTime  string `json:"createdTime"`
		} `json:"list"`
	}
	if err := json.Unmarshal(resultBytes, &orderListResult); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order result: %w", err)
	}

	var orders []exchange.Order
	for _, o := range orderListResult.List {
		orders = append(orders, exchange.Order{
			ID:           o.OrderID,
			LinkID:       o.OrderLinkID,
			Symbol:       c.baseCoin(o.Symbol),
			Side:         exchange.OrderSide(o.Side),
			Qty:          parseFloat64(o.Qty),
			Price:        parseFloat64(o.Price),
			TriggerPrice: parseFloat64(o.TriggerPrice),
			ReduceOnly:   o.ReduceOnly,
			FilledQty:    parseFloat64(o.CumExecQty),
			AvgPrice:     parseFloat64(o.AvgPrice),
			Status:       o.OrderStatus,
			CreatedAt:    parseTimestamp(o.CreatedTime),
		})
	}
	return orders, nil
}

func (c *Client) equity(ctx context.Context) (float64, error) {
	params := map[string]interface{}{
		"accountType": "UNIFIED",
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetAccountWallet(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get account wallet: %w", err)
	}
	serverResp, err := checkResponse(result)
	if err != nil {
		return 0, err
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal wallet result: %w", err)
	}

	var walletResult struct {
		List []struct {
			TotalEquity string `json:"totalEquity"`
		} `json:"list"`
	}
	if err := json.Unmarshal(resultBytes, &walletResult); err != nil {
		return 0, fmt.Errorf("failed to unmarshal wallet result: %w", err)
	}
	if len(walletResult.List) == 0 {
		return 0, fmt.Errorf("no wallet data")
	}
	return parseFloat64(walletResult.List[0].TotalEquity), nil
}
