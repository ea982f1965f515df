package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// AuthServiceClient validates end-user tokens against the auth service.
type AuthServiceClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

type ValidateResponse struct {
	UserID      string   `json:"user_id"`
	DeviceID    string   `json:"device_id"`
	SteamID     string   `json:"steam_id,omitempty"`
	DisplayName string   `json:"display_name,omitempty"`
	AvatarURL   string   `json:"avatar_url,omitempty"`
	Roles       []string `json:"roles"`
}

func NewAuthServiceClient(baseURL, token string) *AuthServiceClient {
	return &AuthServiceClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// ValidateToken calls /auth/validate on the auth service.
func (c *AuthServiceClient) ValidateToken(ctx context.Context, accessToken, deviceID string) (*ValidateResponse, error) {
	jsonData, err := json.Marshal(map[string]string{
		"access_token": accessToken,
		"device_id":    deviceID,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/auth/validate", bytes.NewReader(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth service request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, fmt.Errorf("failed to read auth service response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth validation failed: %d", resp.StatusCode)
	}

	var out ValidateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode auth service response: %w", err)
	}
	return &out, nil
}

// TokenSession is a SessionProvider backed by a token the auth service
// vouches for.
type TokenSession struct {
	Client      *AuthServiceClient
	AccessToken string
	DeviceID    string
}

func (s TokenSession) CurrentUser(ctx context.Context) (*ExternalIdentity, error) {
	if s.AccessToken == "" || s.DeviceID == "" {
		return nil, nil
	}
	resp, err := s.Client.ValidateToken(ctx, s.AccessToken, s.DeviceID)
	if err != nil {
		return nil, err
	}
	return &ExternalIdentity{
		AuthID:      resp.UserID,
		ProviderID:  resp.SteamID,
		DisplayName: resp.DisplayName,
		AvatarURL:   resp.AvatarURL,
	}, nil
}
