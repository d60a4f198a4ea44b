package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"

	"github.com/sable-sec/appregctl/internal/message"
)

// Session holds an authenticated Microsoft Graph client for the lifetime
// of one CLI invocation.
type Session struct {
	credential *azidentity.DefaultAzureCredential
	client     *msgraphsdk.GraphServiceClient
	tenantID   string
	tenantName string
}

// Connect acquires default Azure credentials and verifies them against the
// tenant's organization object before returning a usable session.
func Connect(ctx context.Context) (*Session, error) {
	// Get default Azure credentials (supports multiple auth methods)
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get Azure credentials: %w", err)
	}

	client, err := msgraphsdk.NewGraphServiceClientWithCredentials(cred, []string{"https://graph.microsoft.com/.default"})
	if err != nil {
		return nil, fmt.Errorf("failed to create Graph client: %w", err)
	}

	// Test authentication by getting tenant info
	testCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	org, err := client.Organization().Get(testCtx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate to Graph API: %w", err)
	}

	s := &Session{credential: cred, client: client}

	if orgValue := org.GetValue(); len(orgValue) > 0 {
		if id := orgValue[0].GetId(); id != nil {
			s.tenantID = *id
		}
		if name := orgValue[0].GetDisplayName(); name != nil {
			s.tenantName = *name
		}
		message.Info("Connected to tenant %s (%s)", s.tenantName, s.tenantID)
	}

	return s, nil
}

// IsConnected reports whether the session carries a usable Graph client.
func (s *Session) IsConnected() bool {
	return s != nil && s.client != nil
}

// Client returns the underlying Graph service client.
func (s *Session) Client() *msgraphsdk.GraphServiceClient {
	return s.client
}

// TenantID returns the connected tenant's directory id.
func (s *Session) TenantID() string {
	return s.tenantID
}

// TenantName returns the connected tenant's display name.
func (s *Session) TenantName() string {
	return s.tenantName
}
