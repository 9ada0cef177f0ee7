package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

type nodeStatusResponse struct {
	Registered bool `json:"registered"`
}

// checkNodeRegistered queries the configured container manager's node
// status endpoint for address. A non-200 response or malformed body is
// treated as "not yet registered" rather than an error, since the
// investigator's retry loop already tolerates transient failures.
func checkNodeRegistered(ctx context.Context, apiBase, address string) (bool, error) {
	if apiBase == "" {
		return false, fmt.Errorf("no container manager endpoint configured")
	}

	url := fmt.Sprintf("%s/api/v1/nodes/%s", apiBase, address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, nil
	}

	var status nodeStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return false, nil
	}
	return status.Registered, nil
}
