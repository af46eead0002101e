package wsbridge

import "encoding/json"

// Wire types of the agent protocol.

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type selectParams struct {
	Symbol string `json:"symbol"`
}

type applyParams struct {
	ATRMultiplier float64 `json:"atrMultiplier"`
	RiskReward    float64 `json:"riskReward"`
	VolMultiplier float64 `json:"volMultiplier"`
}

type applyResult struct {
	Applied bool   `json:"applied"`
	Reason  string `json:"reason,omitempty"`
}

type readParams struct {
	TimeoutMs int64 `json:"timeoutMs"`
}

type metricsResult struct {
	NetProfit    string `json:"netProfit"`
	WinRate      string `json:"winRate"`
	Drawdown     string `json:"drawdown"`
	TotalTrades  string `json:"totalTrades"`
	ProfitFactor string `json:"profitFactor"`
}
