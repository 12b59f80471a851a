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

// PolicyServiceClient asks an external policy service whether a user may
// verify for an organization. It is used instead of MembershipAuthorizer when
// VERIFIER_POLICY_URL is set.
type PolicyServiceClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

type verifierCheckResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func NewPolicyServiceClient(baseURL, token string) *PolicyServiceClient {
	return &PolicyServiceClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// IsAuthorizedVerifier calls POST {BaseURL}/verifiers/check. Transport
// failures and 5xx answers surface as ErrStorage so the caller may retry.
func (c *PolicyServiceClient) IsAuthorizedVerifier(ctx context.Context, userID, organizationID string) (bool, error) {
	jsonData, err := json.Marshal(map[string]string{
		"user_id":         userID,
		"organization_id": organizationID,
	})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/verifiers/check", bytes.NewReader(jsonData))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.Client.Do(req)
	if err != nil {
		return false, &StorageError{Op: "policy service request", Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= 500:
		return false, &StorageError{Op: "policy service request", Err: fmt.Errorf("status %d: %s", resp.StatusCode, body)}
	case resp.StatusCode != http.StatusOK:
		return false, fmt.Errorf("policy service returned %d: %s", resp.StatusCode, body)
	}

	var out verifierCheckResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return false, fmt.Errorf("decode policy response: %w", err)
	}
	return out.Allowed, nil
}
