package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/clerk/clerk-sdk-go/v2"
	"github.com/clerk/clerk-sdk-go/v2/user"
)

type ClerkClient struct {
	users *user.Client
}

// NewClerkClient talks to the default Clerk API unless apiURL is set.
// apiURL is the base URL without the version segment, the SDK appends /v1.
func NewClerkClient(secretKey string, apiURL string, httpClient *http.Client) ClerkClient {
	config := &user.ClientConfig{}
	config.Key = clerk.String(secretKey)
	config.HTTPClient = httpClient
	if apiURL != "" {
		config.URL = clerk.String(apiURL)
	}

	return ClerkClient{
		users: user.NewClient(config),
	}
}

// SetLocalUserID stores the local user id in the public metadata of the identity provider's user.
func (c ClerkClient) SetLocalUserID(ctx context.Context, externalID string, localID string) error {
	metadata, err := json.Marshal(map[string]string{"userId": localID})
	if err != nil {
		return err
	}
	raw := json.RawMessage(metadata)

	_, err = c.users.UpdateMetadata(ctx, externalID, &user.UpdateMetadataParams{
		PublicMetadata: &raw,
	})
	if err != nil {
		return fmt.Errorf("could not update metadata of user %s: %w", externalID, err)
	}

	return nil
}
