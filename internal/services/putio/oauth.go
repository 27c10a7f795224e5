package putio

import (
	"context"
	"errors"
	"net/url"
	"time"
)

// AppID is the put.io OAuth application registered for putioarr.
const AppID = "6487"

// NewOOBCode requests an out-of-band code the user enters at
// https://put.io/link.
func (c *Client) NewOOBCode(ctx context.Context) (string, error) {
	var resp oobCodeResponse
	if err := c.get(ctx, "oob code", "/oauth2/oob/code", url.Values{"app_id": {AppID}}, &resp); err != nil {
		return "", err
	}
	if resp.Code == "" {
		return "", errors.New("putio: oob code: empty code")
	}
	return resp.Code, nil
}

// CheckOOBCode returns the OAuth token once code has been linked, or an
// empty string while it has not.
func (c *Client) CheckOOBCode(ctx context.Context, code string) (string, error) {
	var resp oobTokenResponse
	if err := c.get(ctx, "oob token", "/oauth2/oob/code/"+url.PathEscape(code), nil, &resp); err != nil {
		return "", err
	}
	return resp.OAuthToken, nil
}

// WaitForToken polls CheckOOBCode every interval until a token is issued or
// ctx is done.
func (c *Client) WaitForToken(ctx context.Context, code string, interval time.Duration) (string, error) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		token, err := c.CheckOOBCode(ctx, code)
		if err != nil {
			return "", err
		}
		if token != "" {
			return token, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}
