package kalshi

// Wire types for the trade API. All prices are integer cents 1–99,
// all money amounts integer cents.

type balanceResponse struct {
	Balance       int `json:"balance"`
	PositionValue int `json:"position_value"`
}

type marketPosition struct {
	Ticker           string `json:"ticker"`
	Position         int    `json:"position"` // signed: >0 YES, <0 NO
	MarketExposure   int    `json:"market_exposure"`
	TotalTradedCents int    `json:"total_traded"`
}

type positionsResponse struct {
	MarketPositions []marketPosition `json:"market_positions"`
	Cursor          string           `json:"cursor"`
}

type apiOrder struct {
	OrderID       string `json:"order_id"`
	ClientOrderID string `json:"client_order_id"`
	Ticker        string `json:"ticker"`
	Side          string `json:"side"`
	Action        string `json:"action"`
	Status        string `json:"status"`
	YesPrice      int    `json:"yes_price"`
	NoPrice       int    `json:"no_price"`
	FillCount     int    `json:"fill_count"`
	RemainingCount int   `json:"remaining_count"`
	CreatedTime   string `json:"created_time"`
}

type ordersResponse struct {
	Orders []apiOrder `json:"orders"`
	Cursor string     `json:"cursor"`
}

type apiFill struct {
	OrderID     string `json:"order_id"`
	Ticker      string `json:"ticker"`
	Side        string `json:"side"`
	Count       int    `json:"count"`
	YesPrice    int    `json:"yes_price"`
	NoPrice     int    `json:"no_price"`
	CreatedTime string `json:"created_time"`
}

type fillsResponse struct {
	Fills  []apiFill `json:"fills"`
	Cursor string    `json:"cursor"`
}

type apiSettlement struct {
	Ticker       string `json:"ticker"`
	MarketResult string `json:"market_result"`
	Revenue      int    `json:"revenue"`
	Fee          int    `json:"fee"` // may be back-filled after initial settlement
	SettledTime  string `json:"settled_time"`
}

type settlementsResponse struct {
	Settlements []apiSettlement `json:"settlements"`
	Cursor      string          `json:"cursor"`
}

type orderbookLevel [2]int // [price, count]

type orderbookResponse struct {
	Orderbook struct {
		Yes []orderbookLevel `json:"yes"` // resting YES bids
		No  []orderbookLevel `json:"no"`  // resting NO bids
	} `json:"orderbook"`
}

type apiMarket struct {
	Ticker       string `json:"ticker"`
	EventTicker  string `json:"event_ticker"`
	Status       string `json:"status"`
	YesBid       int    `json:"yes_bid"`
	YesAsk       int    `json:"yes_ask"`
	NoBid        int    `json:"no_bid"`
	NoAsk        int    `json:"no_ask"`
	LastPrice    int    `json:"last_price"`
	Volume24h    int    `json:"volume_24h"`
	OpenInterest int    `json:"open_interest"`
}

type marketResponse struct {
	Market apiMarket `json:"market"`
}

type marketsResponse struct {
	Markets []apiMarket `json:"markets"`
	Cursor  string      `json:"cursor"`
}

type createOrderRequest struct {
	ClientOrderID string `json:"client_order_id"`
	Ticker        string `json:"ticker"`
	Side          string `json:"side"`
	Action        string `json:"action"`
	Type          string `json:"type"`
	Count         int    `json:"count"`
	YesPrice      int    `json:"yes_price,omitempty"`
	NoPrice       int    `json:"no_price,omitempty"`
}

type createOrderResponse struct {
	Order apiOrder `json:"order"`
}
