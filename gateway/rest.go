package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"quote-engine-go/order"
)

// RESTClient talks to a Binance-futures style signed REST API. The HTTP
// client is injectable so tests run against httptest.
type RESTClient struct {
	BaseURL    string
	APIKey     string
	Secret     string
	RecvWindow time.Duration
	HTTPClient *http.Client
	Limiter    Limiter
}

func NewRESTClient(baseURL, apiKey, secret string) *RESTClient {
	return &RESTClient{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		Secret:     secret,
		RecvWindow: 5 * time.Second,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *RESTClient) PlaceOrder(ctx context.Context, req PlaceRequest) (string, error) {
	body, err := c.signedCall(ctx, http.MethodPost, "/fapi/v1/order", map[string]string{
		"symbol":           req.Instrument,
		"side":             string(req.Side),
		"type":             "LIMIT",
		"timeInForce":      "GTX", // post only: a maker must never take
		"price":            req.Price.String(),
		"quantity":         req.Size.String(),
		"newClientOrderId": req.ClientID,
	})
	if err != nil {
		return "", err
	}
	id := gjson.GetBytes(body, "orderId")
	if !id.Exists() {
		return "", fmt.Errorf("place: no orderId in response")
	}
	return id.String(), nil
}

func (c *RESTClient) CancelOrder(ctx context.Context, instrument, exchangeID string) error {
	_, err := c.signedCall(ctx, http.MethodDelete, "/fapi/v1/order", map[string]string{
		"symbol":  instrument,
		"orderId": exchangeID,
	})
	return err
}

func (c *RESTClient) AmendOrder(ctx context.Context, instrument, exchangeID string, price, size decimal.Decimal) error {
	_, err := c.signedCall(ctx, http.MethodPut, "/fapi/v1/order", map[string]string{
		"symbol":   instrument,
		"orderId":  exchangeID,
		"price":    price.String(),
		"quantity": size.String(),
	})
	return err
}

func (c *RESTClient) ListOpenOrders(ctx context.Context, instrument string) ([]order.LiveOrder, error) {
	body, err := c.signedCall(ctx, http.MethodGet, "/fapi/v1/openOrders", map[string]string{
		"symbol": instrument,
	})
	if err != nil {
		return nil, err
	}
	var out []order.LiveOrder
	for _, o := range gjson.ParseBytes(body).Array() {
		out = append(out, order.LiveOrder{
			ID:       o.Get("orderId").String(),
			ClientID: o.Get("clientOrderId").String(),
			Side:     order.Side(o.Get("side").String()),
			Price:    dec(o.Get("price").String()),
			Size:     dec(o.Get("origQty").String()),
			Filled:   dec(o.Get("executedQty").String()),
			Status:   order.StatusLive,
		})
	}
	return out, nil
}

// NewListenKey opens the user data stream and returns its key. The listen
// key endpoints authenticate by API key alone, no signature.
func (c *RESTClient) NewListenKey(ctx context.Context) (string, error) {
	body, err := c.keyedCall(ctx, http.MethodPost, "/fapi/v1/listenKey")
	if err != nil {
		return "", err
	}
	key := gjson.GetBytes(body, "listenKey")
	if !key.Exists() || key.String() == "" {
		return "", fmt.Errorf("listen key: missing in response")
	}
	return key.String(), nil
}

// KeepAliveListenKey extends the current key's validity window.
func (c *RESTClient) KeepAliveListenKey(ctx context.Context) error {
	_, err := c.keyedCall(ctx, http.MethodPut, "/fapi/v1/listenKey")
	return err
}

func (c *RESTClient) signedCall(ctx context.Context, method, path string, params map[string]string) ([]byte, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	params["timestamp"] = strconv.FormatInt(time.Now().UnixMilli(), 10)
	params["recvWindow"] = strconv.FormatInt(c.RecvWindow.Milliseconds(), 10)

	query := encodeSorted(params)
	sig := c.sign(query)
	endpoint := c.BaseURL + path + "?" + query + "&signature=" + url.QueryEscape(sig)

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req, method, path)
}

func (c *RESTClient) keyedCall(ctx context.Context, method, path string) ([]byte, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req, method, path)
}

func (c *RESTClient) do(req *http.Request, method, path string) ([]byte, error) {
	req.Header.Set("X-MBX-APIKEY", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		if resp.StatusCode == http.StatusNotFound {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, body)
	}
	return body, nil
}

func (c *RESTClient) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(c.Secret))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

// encodeSorted keeps parameter order deterministic so signatures are
// reproducible in tests.
func encodeSorted(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	v := url.Values{}
	for _, k := range keys {
		v.Set(k, params[k])
	}
	return v.Encode()
}
