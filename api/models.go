package api

// ErrorResponse is the envelope for every non-2xx reply.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// BacktestRequest is the body of POST /api/v1/backtests.
type BacktestRequest struct {
	Strategy       string         `json:"strategy" binding:"required"`
	Parameters     map[string]any `json:"parameters"`
	Symbols        []string       `json:"symbols" binding:"required"`
	StartDate      string         `json:"start_date" binding:"required"` // YYYY-MM-DD
	EndDate        string         `json:"end_date" binding:"required"`
	InitialCapital float64        `json:"initial_capital"`
}

// OrderRequest is the body of POST /api/v1/orders.
type OrderRequest struct {
	PortfolioID string  `json:"portfolio_id" binding:"required"`
	Symbol      string  `json:"symbol" binding:"required"`
	Side        string  `json:"side" binding:"required"`
	Quantity    float64 `json:"quantity" binding:"required"`
	Price       float64 `json:"price"`
	Style       string  `json:"style"`
}

// PortfolioRequest is the body of POST /api/v1/portfolios.
type PortfolioRequest struct {
	Name           string  `json:"name" binding:"required"`
	InitialCapital float64 `json:"initial_capital"`
}
