package apiclient

import (
	"context"
	"fmt"
	"net/http"
)

// GetJSON performs a GET request and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, url string, out any, opts ...RequestOption) error {
	env, err := c.Get(ctx, url, opts...)
	if err != nil {
		return err
	}
	return decodeInto(env, out)
}

// PostJSON encodes body as JSON, performs a POST and decodes the response into out.
// A nil out discards the response body.
func (c *Client) PostJSON(ctx context.Context, url string, body, out any, opts ...RequestOption) error {
	env, err := c.Post(ctx, url, body, opts...)
	if err != nil {
		return err
	}
	return decodeInto(env, out)
}

// PutJSON encodes body as JSON, performs a PUT and decodes the response into out.
func (c *Client) PutJSON(ctx context.Context, url string, body, out any, opts ...RequestOption) error {
	env, err := c.Put(ctx, url, body, opts...)
	if err != nil {
		return err
	}
	return decodeInto(env, out)
}

// Fetch executes a request and decodes its JSON body into a T.
func Fetch[T any](ctx context.Context, c *Client, method, url string, body any, opts ...RequestOption) (T, *Envelope, error) {
	var out T
	d := Descriptor{URL: url, Method: method, Body: body}
	for _, opt := range opts {
		if opt != nil {
			opt(&d)
		}
	}
	env, err := c.Do(ctx, d)
	if err != nil {
		return out, nil, err
	}
	if err := decodeInto(env, &out); err != nil {
		return out, env, err
	}
	return out, env, nil
}

// GetAs is Fetch for GET requests.
func GetAs[T any](ctx context.Context, c *Client, url string, opts ...RequestOption) (T, error) {
	out, _, err := Fetch[T](ctx, c, http.MethodGet, url, nil, opts...)
	return out, err
}

func decodeInto(env *Envelope, out any) error {
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := env.Decode(out); err != nil {
		e := Classify(fmt.Errorf("decode response body: %w", err), nil, nil)
		e.RequestID = env.RequestID
		e.Method = env.Descriptor.Method
		e.URL = env.Descriptor.URL
		e.Status = env.Status
		return e
	}
	return nil
}
