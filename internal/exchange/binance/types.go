package binance

import (
	"encoding/json"
	"errors"
	"time"
)

var errShortKline = errors.New("binance: kline array too short")

const (
	pingInterval = 30 * time.Second
	readTimeout  = 60 * time.Second
)

// apiError is the error envelope Binance returns on non-2xx responses.
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Binance error codes the engine cares about. Everything else is treated
// as a generic rejection.
const (
	codeRateLimited    = -1003
	codeFilterFailure  = -1013
	codeInvalidSymbol  = -1121
	codeBadAPIKey      = -2014
	codeBadSignature   = -2015
	codeNewOrderReject = -2010
	codeCancelReject   = -2011
)

// orderResponse is the ACK payload of POST /api/v3/order.
type orderResponse struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Price         string `json:"price"`
	OrigQty       string `json:"origQty"`
	Status        string `json:"status"`
	Side          string `json:"side"`
	TransactTime  int64  `json:"transactTime"`
}

// cancelResponse is the payload of DELETE /api/v3/order.
type cancelResponse struct {
	Symbol  string `json:"symbol"`
	OrderID int64  `json:"orderId"`
	Status  string `json:"status"`
}

// openOrder is one element of GET /api/v3/openOrders.
type openOrder struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Price         string `json:"price"`
	OrigQty       string `json:"origQty"`
	Status        string `json:"status"`
	Side          string `json:"side"`
	Time          int64  `json:"time"`
}

// accountResponse is the subset of GET /api/v3/account we read.
type accountResponse struct {
	Balances []struct {
		Asset string `json:"asset"`
		Free  string `json:"free"`
	} `json:"balances"`
}

// exchangeInfoResponse is the subset of GET /api/v3/exchangeInfo we read.
// Filters are heterogeneous objects discriminated by filterType.
type exchangeInfoResponse struct {
	Symbols []struct {
		Symbol  string `json:"symbol"`
		Status  string `json:"status"`
		Filters []struct {
			FilterType string `json:"filterType"`
			TickSize   string `json:"tickSize"`
			StepSize   string `json:"stepSize"`
			MinQty     string `json:"minQty"`
		} `json:"filters"`
	} `json:"symbols"`
}

// depthResponse is GET /api/v3/depth. Levels arrive as ["price","qty"] pairs.
type depthResponse struct {
	LastUpdateID int64       `json:"lastUpdateId"`
	Bids         [][2]string `json:"bids"`
	Asks         [][2]string `json:"asks"`
}

// serverTimeResponse is GET /api/v3/time.
type serverTimeResponse struct {
	ServerTime int64 `json:"serverTime"`
}

// depthUpdate is one message of the <symbol>@depth diff stream.
type depthUpdate struct {
	EventType     string      `json:"e"`
	EventTime     int64       `json:"E"`
	Symbol        string      `json:"s"`
	FirstUpdateID int64       `json:"U"`
	FinalUpdateID int64       `json:"u"`
	Bids          [][2]string `json:"b"`
	Asks          [][2]string `json:"a"`
}

// kline decodes one element of GET /api/v3/klines. Binance sends mixed-type
// arrays, so fields are pulled out positionally.
type kline struct {
	OpenTime  int64
	Close     string
	CloseTime int64
}

func (k *kline) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) < 7 {
		return errShortKline
	}
	if err := json.Unmarshal(raw[0], &k.OpenTime); err != nil {
		return err
	}
	if err := json.Unmarshal(raw[4], &k.Close); err != nil {
		return err
	}
	return json.Unmarshal(raw[6], &k.CloseTime)
}
