package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/internal/domain"
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/internal/exchange"
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/internal/infra"
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/internal/signal"
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/pkg/quant"
)

// Client implements the exchange Gateway against the Binance spot REST API.
// All requests pass through a token bucket and a circuit breaker; signed
// requests carry a timestamp, recvWindow and an HMAC signature.
type Client struct {
	baseURL    string
	recvWindow int
	signer     *Signer
	httpClient *http.Client
	limiter    *infra.RateLimiter
	breaker    *infra.CircuitBreaker
	timeOffset time.Duration
}

// NewClient creates a Binance REST client from the loaded configuration.
func NewClient(cfg *infra.Config) *Client {
	recvWindow := cfg.API.Binance.RecvWindowMS
	if recvWindow <= 0 {
		recvWindow = 5000
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.API.Binance.RestURL, "/"),
		recvWindow: recvWindow,
		signer:     NewSigner(cfg.API.Binance.APIKey, cfg.API.Binance.SecretKey),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    infra.NewRateLimiter(10, 5),
		breaker:    infra.NewCircuitBreaker(infra.DefaultCircuitBreakerConfig("binance-rest")),
	}
}

// Close wipes the API credentials.
func (c *Client) Close() {
	c.signer.Wipe()
}

// do performs one REST round-trip. Signed requests get timestamp, recvWindow
// and signature appended to the query string.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, signed bool, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if !c.breaker.Allow() {
		return fmt.Errorf("%w: circuit open", exchange.ErrRateLimited)
	}

	if params == nil {
		params = url.Values{}
	}
	query := params.Encode()
	if signed {
		ts := time.Now().Add(c.timeOffset).UnixMilli()
		if query != "" {
			query += "&"
		}
		query += "timestamp=" + strconv.FormatInt(ts, 10) +
			"&recvWindow=" + strconv.Itoa(c.recvWindow)
		query += "&signature=" + c.signer.Sign(query)
	}

	u := c.baseURL + path
	if query != "" {
		u += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return err
	}
	if signed {
		req.Header.Set("X-MBX-APIKEY", c.signer.APIKey())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.breaker.RecordFailure()
		return err
	}

	if resp.StatusCode != http.StatusOK {
		c.breaker.RecordFailure()
		return c.asGatewayError(resp.StatusCode, body)
	}
	c.breaker.RecordSuccess()

	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

// asGatewayError maps a Binance error envelope to the gateway sentinels
// the engine keys its retry policy off.
func (c *Client) asGatewayError(status int, body []byte) error {
	if status == http.StatusTooManyRequests || status == 418 {
		return fmt.Errorf("%w: http %d", exchange.ErrRateLimited, status)
	}

	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Code == 0 {
		return fmt.Errorf("%w: http %d: %s", exchange.ErrRejected, status, string(body))
	}

	switch apiErr.Code {
	case codeRateLimited:
		return fmt.Errorf("%w: %s", exchange.ErrRateLimited, apiErr.Msg)
	case codeFilterFailure:
		return fmt.Errorf("%w: %s", exchange.ErrInvalidLotSize, apiErr.Msg)
	case codeInvalidSymbol:
		return fmt.Errorf("%w: %s", exchange.ErrUnknownSymbol, apiErr.Msg)
	case codeBadAPIKey, codeBadSignature:
		return fmt.Errorf("%w: %s", exchange.ErrAuth, apiErr.Msg)
	case codeNewOrderReject:
		if strings.Contains(strings.ToLower(apiErr.Msg), "insufficient") {
			return fmt.Errorf("%w: %s", exchange.ErrInsufficientBalance, apiErr.Msg)
		}
		return fmt.Errorf("%w: %s", exchange.ErrRejected, apiErr.Msg)
	default:
		return fmt.Errorf("%w: code %d: %s", exchange.ErrRejected, apiErr.Code, apiErr.Msg)
	}
}

// PlaceOrder submits a GTC limit order and returns the exchange order id.
func (c *Client) PlaceOrder(ctx context.Context, o domain.Order) (string, error) {
	params := url.Values{}
	params.Set("symbol", o.Symbol)
	params.Set("side", string(o.Side))
	params.Set("type", "LIMIT")
	params.Set("timeInForce", "GTC")
	params.Set("price", o.Price.String())
	params.Set("quantity", o.Qty.String())
	params.Set("newClientOrderId", o.ClientID)

	var resp orderResponse
	if err := c.do(ctx, http.MethodPost, "/api/v3/order", params, true, &resp); err != nil {
		return "", err
	}

	id := strconv.FormatInt(resp.OrderID, 10)
	slog.Info("order placed",
		slog.String("id", id),
		slog.String("side", string(o.Side)),
		slog.String("price", o.Price.String()),
		slog.String("qty", o.Qty.String()))
	return id, nil
}

// CancelOrder cancels by exchange id. A -2011 "unknown order" response means
// the order was already gone (filled or cancelled); the false return tells
// the caller the cancel lost the race.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) (bool, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)

	var resp cancelResponse
	err := c.do(ctx, http.MethodDelete, "/api/v3/order", params, true, &resp)
	if err != nil {
		if isCode(err, codeCancelReject) {
			slog.Warn("cancel lost race", slog.String("id", orderID))
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// isCode reports whether the error carries a specific Binance error code.
// The code is embedded in the wrapped message by asGatewayError.
func isCode(err error, code int) bool {
	return strings.Contains(err.Error(), fmt.Sprintf("code %d:", code))
}

// OpenOrders returns all resting orders for the symbol.
func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]domain.Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var resp []openOrder
	if err := c.do(ctx, http.MethodGet, "/api/v3/openOrders", params, true, &resp); err != nil {
		return nil, err
	}

	out := make([]domain.Order, 0, len(resp))
	for _, oo := range resp {
		price, err := quant.PriceFromString(oo.Price)
		if err != nil {
			return nil, fmt.Errorf("binance: bad price %q: %w", oo.Price, err)
		}
		qty, err := quant.QtyFromString(oo.OrigQty)
		if err != nil {
			return nil, fmt.Errorf("binance: bad qty %q: %w", oo.OrigQty, err)
		}
		out = append(out, domain.Order{
			ID:           strconv.FormatInt(oo.OrderID, 10),
			ClientID:     oo.ClientOrderID,
			Symbol:       oo.Symbol,
			Side:         domain.Side(oo.Side),
			Price:        price,
			Qty:          qty,
			Status:       domain.StatusPending,
			CreatedUnixM: oo.Time * 1000,
		})
	}
	return out, nil
}

// Balance returns the free balance of one asset.
func (c *Client) Balance(ctx context.Context, asset string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("omitZeroBalances", "true")

	var resp accountResponse
	if err := c.do(ctx, http.MethodGet, "/api/v3/account", params, true, &resp); err != nil {
		return decimal.Zero, err
	}

	for _, b := range resp.Balances {
		if b.Asset == asset {
			free, err := decimal.NewFromString(b.Free)
			if err != nil {
				return decimal.Zero, fmt.Errorf("binance: bad balance %q: %w", b.Free, err)
			}
			return free, nil
		}
	}
	return decimal.Zero, nil
}

// ExchangeInfo returns the tick and lot constraints for the symbol.
func (c *Client) ExchangeInfo(ctx context.Context, symbol string) (domain.ExchangeRules, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var resp exchangeInfoResponse
	if err := c.do(ctx, http.MethodGet, "/api/v3/exchangeInfo", params, false, &resp); err != nil {
		return domain.ExchangeRules{}, err
	}

	for _, s := range resp.Symbols {
		if s.Symbol != symbol {
			continue
		}
		if s.Status != "TRADING" {
			return domain.ExchangeRules{}, fmt.Errorf("%w: %s status %s", exchange.ErrUnknownSymbol, symbol, s.Status)
		}
		rules := domain.ExchangeRules{Symbol: symbol}
		for _, f := range s.Filters {
			switch f.FilterType {
			case "PRICE_FILTER":
				tick, err := quant.PriceFromString(f.TickSize)
				if err != nil {
					return domain.ExchangeRules{}, fmt.Errorf("binance: bad tickSize %q: %w", f.TickSize, err)
				}
				rules.TickSize = tick
			case "LOT_SIZE":
				step, err := quant.QtyFromString(f.StepSize)
				if err != nil {
					return domain.ExchangeRules{}, fmt.Errorf("binance: bad stepSize %q: %w", f.StepSize, err)
				}
				rules.MinLotSize = step
			}
		}
		if !rules.Valid() {
			return domain.ExchangeRules{}, fmt.Errorf("binance: incomplete filters for %s", symbol)
		}
		return rules, nil
	}
	return domain.ExchangeRules{}, fmt.Errorf("%w: %s", exchange.ErrUnknownSymbol, symbol)
}

// DepthSnapshot fetches a full order-book snapshot.
func (c *Client) DepthSnapshot(ctx context.Context, symbol string, limit int) (domain.BookSnapshot, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("limit", strconv.Itoa(limit))

	var resp depthResponse
	if err := c.do(ctx, http.MethodGet, "/api/v3/depth", params, false, &resp); err != nil {
		return domain.BookSnapshot{}, err
	}

	snap := domain.BookSnapshot{Symbol: symbol, LastUpdateID: resp.LastUpdateID}
	var err error
	if snap.Bids, err = parseLevels(resp.Bids); err != nil {
		return domain.BookSnapshot{}, err
	}
	if snap.Asks, err = parseLevels(resp.Asks); err != nil {
		return domain.BookSnapshot{}, err
	}
	return snap, nil
}

// RecentCloses fetches historical kline closes to warm the moving averages.
func (c *Client) RecentCloses(ctx context.Context, symbol, interval string, limit int) ([]signal.PricePoint, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	var resp []kline
	if err := c.do(ctx, http.MethodGet, "/api/v3/klines", params, false, &resp); err != nil {
		return nil, err
	}

	out := make([]signal.PricePoint, 0, len(resp))
	for _, k := range resp {
		close, err := quant.PriceFromString(k.Close)
		if err != nil {
			return nil, fmt.Errorf("binance: bad kline close %q: %w", k.Close, err)
		}
		out = append(out, signal.PricePoint{
			Ts:    quant.TimeStamp(k.CloseTime * 1000),
			Close: close,
		})
	}
	return out, nil
}

// TimeOffset measures exchange server time minus local time. The result is
// applied to signed request timestamps.
func (c *Client) TimeOffset(ctx context.Context) (time.Duration, error) {
	before := time.Now()
	var resp serverTimeResponse
	if err := c.do(ctx, http.MethodGet, "/api/v3/time", nil, false, &resp); err != nil {
		return 0, err
	}
	rtt := time.Since(before)

	server := time.UnixMilli(resp.ServerTime)
	local := before.Add(rtt / 2)
	offset := server.Sub(local)
	c.timeOffset = offset
	return offset, nil
}

// parseLevels converts ["price","qty"] pairs into fixed-point book levels.
func parseLevels(raw [][2]string) ([]domain.BookLevel, error) {
	out := make([]domain.BookLevel, 0, len(raw))
	for _, pair := range raw {
		price, err := quant.PriceFromString(pair[0])
		if err != nil {
			return nil, fmt.Errorf("binance: bad level price %q: %w", pair[0], err)
		}
		qty, err := quant.QtyFromString(pair[1])
		if err != nil {
			return nil, fmt.Errorf("binance: bad level qty %q: %w", pair[1], err)
		}
		out = append(out, domain.BookLevel{Price: price, Qty: qty})
	}
	return out, nil
}

var _ exchange.Gateway = (*Client)(nil)
