package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"giftpulse/internal/model"
)

// Gifts fetches the full gift catalogue.
func (c *Client) Gifts(ctx context.Context) ([]model.Gift, error) {
	body, err := c.do(ctx, http.MethodGet, "/gifts", nil, nil)
	if err != nil {
		return nil, err
	}
	var gifts []model.Gift
	if err := decodeList(body, &gifts); err != nil {
		return nil, fmt.Errorf("gifts: %w", err)
	}
	return gifts, nil
}

// GiftWeek fetches the short-horizon price history for one gift.
func (c *Client) GiftWeek(ctx context.Context, giftID string) ([]model.RawPoint, error) {
	return c.history(ctx, "/gifts/"+url.PathEscape(giftID)+"/week")
}

// GiftLife fetches the long-horizon price history for one gift.
func (c *Client) GiftLife(ctx context.Context, giftID string) ([]model.RawPoint, error) {
	return c.history(ctx, "/gifts/"+url.PathEscape(giftID)+"/life")
}

// ModelWeek fetches the short-horizon history for one model variant of a gift.
func (c *Client) ModelWeek(ctx context.Context, giftID, modelName string) ([]model.RawPoint, error) {
	return c.history(ctx, "/gifts/"+url.PathEscape(giftID)+"/models/"+url.PathEscape(modelName)+"/week")
}

// ModelLife fetches the long-horizon history for one model variant of a gift.
func (c *Client) ModelLife(ctx context.Context, giftID, modelName string) ([]model.RawPoint, error) {
	return c.history(ctx, "/gifts/"+url.PathEscape(giftID)+"/models/"+url.PathEscape(modelName)+"/life")
}

func (c *Client) history(ctx context.Context, path string) ([]model.RawPoint, error) {
	body, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	var points []model.RawPoint
	if err := decodeList(body, &points); err != nil {
		return nil, fmt.Errorf("history %s: %w", path, err)
	}
	return points, nil
}

// Indexes fetches the remote index catalogue.
func (c *Client) Indexes(ctx context.Context) ([]model.Index, error) {
	body, err := c.do(ctx, http.MethodGet, "/indexes", nil, nil)
	if err != nil {
		return nil, err
	}
	var indexes []model.Index
	if err := decodeList(body, &indexes); err != nil {
		return nil, fmt.Errorf("indexes: %w", err)
	}
	return indexes, nil
}

// IndexHistory fetches the time series for one remote index.
func (c *Client) IndexHistory(ctx context.Context, indexID string) ([]model.RawPoint, error) {
	return c.history(ctx, "/indexes/"+url.PathEscape(indexID)+"/history")
}

// GetUser fetches (or lazily creates, server side) the account for a
// telegram user id.
func (c *Client) GetUser(ctx context.Context, userID int64) (*model.User, error) {
	body, err := c.do(ctx, http.MethodGet, "/users/"+strconv.FormatInt(userID, 10), nil, nil)
	if err != nil {
		return nil, err
	}
	var u model.User
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("user %d: %w", userID, err)
	}
	return &u, nil
}

// SaveUser patches the remote account with the fields set on u.
func (c *Client) SaveUser(ctx context.Context, u *model.User) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	_, err = c.do(ctx, http.MethodPatch, "/users/"+strconv.FormatInt(u.ID, 10), nil, payload)
	return err
}

// Vote records an up or down vote on a gift for a user.
func (c *Client) Vote(ctx context.Context, userID int64, giftID string, up bool) error {
	payload, err := json.Marshal(map[string]interface{}{
		"userId": userID,
		"giftId": giftID,
		"up":     up,
	})
	if err != nil {
		return fmt.Errorf("encode vote: %w", err)
	}
	_, err = c.do(ctx, http.MethodPost, "/votes", nil, payload)
	return err
}

// SendImage uploads a rendered JPEG for delivery through the bot relay.
// The upload bypasses the JSON body path but still runs through the
// limiter and breaker.
func (c *Client) SendImage(ctx context.Context, jpeg []byte, caption string) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", "heatmap.jpg")
	if err != nil {
		return err
	}
	if _, err := fw.Write(jpeg); err != nil {
		return err
	}
	if caption != "" {
		if err := mw.WriteField("caption", caption); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err = c.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/images", &buf)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		if c.secret != "" {
			req.Header.Set(SecretHeader, c.secret)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &StatusError{Code: resp.StatusCode}
		}
		return nil, nil
	})
	return err
}
