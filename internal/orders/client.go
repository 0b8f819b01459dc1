// Package orders is the off-ledger Order record API: an HTTP client used by the escrow
// orchestrator, and the reference server and store behind it.
package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ZilDuck/solana-card-market/internal/entity"
	"github.com/hashicorp/go-retryablehttp"
)

type Client interface {
	Create(ctx context.Context, order entity.Order) (*entity.Order, error)
	UpdateStatus(ctx context.Context, listing string, status entity.OrderStatus) (*entity.Order, error)
	ListByWallet(ctx context.Context, wallet string, role entity.OrderRole) ([]entity.Order, error)
}

// StatusError is a non-2xx answer from the order API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("order api: %d %s", e.Code, e.Body)
}

type client struct {
	baseUrl string
	http    *retryablehttp.Client
}

func NewClient(baseUrl string, httpClient *retryablehttp.Client) Client {
	return client{strings.TrimRight(baseUrl, "/"), httpClient}
}

func (c client) Create(ctx context.Context, order entity.Order) (*entity.Order, error) {
	req := createRequest{
		ListingAddress: order.ListingAddress,
		BuyerWallet:    order.BuyerWallet,
		SellerWallet:   order.SellerWallet,
		Price:          order.Price,
		BuyerContact:   order.BuyerContact,
		SellerContact:  order.SellerContact,
	}

	var created entity.Order
	if err := c.do(ctx, http.MethodPost, "/orders", req, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c client) UpdateStatus(ctx context.Context, listing string, status entity.OrderStatus) (*entity.Order, error) {
	var updated entity.Order
	path := "/orders/" + url.PathEscape(listing) + "/status"
	if err := c.do(ctx, http.MethodPatch, path, statusRequest{Status: string(status)}, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (c client) ListByWallet(ctx context.Context, wallet string, role entity.OrderRole) ([]entity.Order, error) {
	q := url.Values{}
	q.Set("wallet", wallet)
	if role != entity.RoleAny {
		q.Set("role", string(role))
	}

	var orders []entity.Order
	if err := c.do(ctx, http.MethodGet, "/orders?"+q.Encode(), nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (c client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var payload io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(buf)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseUrl+path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
