package models

// BoardSnapshot represents one periodic order-board state for an instrument,
// normalized from the venue's ContractBoardMessage format. All value fields
// are optional; absent fields stay nil rather than zero.
type BoardSnapshot struct {
	ContractName string `json:"contractName"`

	// Time is the delivery-start time reported by the venue, falling back to
	// the envelope time or the receipt time when absent. Kept as the raw
	// venue string since it forms half of the snapshot's natural key.
	Time string `json:"time"`

	AveragePrice  *float64 `json:"averagePrice"`
	MinPrice      *float64 `json:"minPrice"`
	MaxPrice      *float64 `json:"maxPrice"`
	MCP           *float64 `json:"mcp"`
	LastPrice     *float64 `json:"lastPrice"`
	Total         *float64 `json:"total"`
	Volume        *float64 `json:"volume"`
	BestBuyPrice  *float64 `json:"bestBuyPrice"`
	BestSellPrice *float64 `json:"bestSellPrice"`
}
