package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// StravaClient is a minimal Strava API client.
type StravaClient struct {
	apiURL       string
	tokenURL     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

// NewStravaClient constructs a client with sane defaults.
func NewStravaClient(apiURL, tokenURL, clientID, clientSecret string) *StravaClient {
	return &StravaClient{
		apiURL:       strings.TrimRight(apiURL, "/"),
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// StravaActivity is the subset of a Strava summary activity the engine reads.
// Raw keeps the exact payload for integrity hashing.
type StravaActivity struct {
	ID          int64           `json:"id"`
	Type        string          `json:"type"`
	SportType   string          `json:"sport_type"`
	StartDate   time.Time       `json:"start_date"`
	ElapsedTime int             `json:"elapsed_time"`
	Distance    *float64        `json:"distance"`
	Raw         json.RawMessage `json:"-"`
}

// Refresh implements Refresher with grant_type=refresh_token.
func (c *StravaClient) Refresh(ctx context.Context, refreshToken string) (Token, error) {
	data := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"refresh_token": {refreshToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return Token{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Token{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Token{}, fmt.Errorf("strava token error: status=%d body=%s", resp.StatusCode, body)
	}

	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresAt    int64  `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Token{}, err
	}
	if payload.AccessToken == "" {
		return Token{}, fmt.Errorf("strava token error: empty access token")
	}
	return Token{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		ExpiresAt:    time.Unix(payload.ExpiresAt, 0).UTC(),
	}, nil
}

// ListActivities fetches one page of the athlete's activities.
func (c *StravaClient) ListActivities(ctx context.Context, accessToken string, page, perPage int) ([]StravaActivity, error) {
	q := url.Values{
		"page":     {strconv.Itoa(page)},
		"per_page": {strconv.Itoa(perPage)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/athlete/activities?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("strava api error: status=%d body=%s", resp.StatusCode, body)
	}

	var raw []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	out := make([]StravaActivity, 0, len(raw))
	for _, item := range raw {
		var a StravaActivity
		if err := json.Unmarshal(item, &a); err != nil {
			return nil, fmt.Errorf("decode strava activity: %w", err)
		}
		a.Raw = item
		out = append(out, a)
	}
	return out, nil
}
