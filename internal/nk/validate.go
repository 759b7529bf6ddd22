package nk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Validator checks the bot's API key against the key-management service.
// A failed check gates every role mutation: when availability cannot be
// confirmed, the pipeline proposes nothing.
type Validator struct {
	validateURL string
	key         string
	httpClient  *http.Client
}

// NewValidator creates a validator for the given endpoint and key
func NewValidator(validateURL, key string) *Validator {
	return &Validator{
		validateURL: validateURL,
		key:         key,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Validate is the strict startup check: any failure is an error, and the
// caller is expected to abort.
func (v *Validator) Validate(ctx context.Context) error {
	valid, err := v.check(ctx)
	if err != nil {
		return fmt.Errorf("API key validation failed: %w", err)
	}
	if !valid {
		return fmt.Errorf("API key rejected by validation service")
	}
	return nil
}

// KeyValid is the runtime check used as the availability gate. Never
// errors; any failure reads as "not confirmed valid".
func (v *Validator) KeyValid(ctx context.Context) bool {
	valid, err := v.check(ctx)
	return err == nil && valid
}

func (v *Validator) check(ctx context.Context) (bool, error) {
	checkURL := v.validateURL + "?key=" + url.QueryEscape(v.key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, checkURL, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result struct {
		Valid bool `json:"valid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, err
	}
	return result.Valid, nil
}
