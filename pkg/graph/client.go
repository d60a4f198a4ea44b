package graph

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	"github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/serviceprincipals"
)

// DefaultPageSize is the Graph page size requested when listing service
// principals. 999 is the documented maximum.
const DefaultPageSize int32 = 999

// DirectoryClient is the slice of the Graph API the catalog needs: paged
// enumeration of application-type service principals and a point lookup
// by appId. The catalog refresh engine and query facade consume this
// interface; tests substitute a fake.
type DirectoryClient interface {
	// ListServicePrincipals fetches every application-type service
	// principal, invoking page for each full page of results. Paging
	// stops on the first page or callback error.
	ListServicePrincipals(ctx context.Context, page func(sps []models.ServicePrincipalable) error) error

	// LookupByAppID returns the service principal whose appId matches,
	// or nil when the directory has no such object.
	LookupByAppID(ctx context.Context, appID string) (models.ServicePrincipalable, error)
}

// GraphDirectoryClient implements DirectoryClient against the Microsoft
// Graph SDK.
type GraphDirectoryClient struct {
	client *msgraphsdk.GraphServiceClient
}

// NewDirectoryClient wraps an authenticated session's Graph client.
func NewDirectoryClient(session *Session) *GraphDirectoryClient {
	return &GraphDirectoryClient{client: session.Client()}
}

var servicePrincipalSelect = []string{
	"id", "appId", "displayName", "description", "publisherName",
	"servicePrincipalType", "appRoles", "oauth2PermissionScopes",
}

func (c *GraphDirectoryClient) ListServicePrincipals(ctx context.Context, page func(sps []models.ServicePrincipalable) error) error {
	requestConfig := &serviceprincipals.ServicePrincipalsRequestBuilderGetRequestConfiguration{
		QueryParameters: &serviceprincipals.ServicePrincipalsRequestBuilderGetQueryParameters{
			Filter: to.Ptr("servicePrincipalType eq 'Application'"),
			Select: servicePrincipalSelect,
			Top:    to.Ptr(DefaultPageSize),
		},
	}

	response, err := c.client.ServicePrincipals().Get(ctx, requestConfig)
	if err != nil {
		return fmt.Errorf("failed to get first page of service principals: %w", err)
	}

	for {
		if err := page(response.GetValue()); err != nil {
			return err
		}

		odataNextLink := response.GetOdataNextLink()
		if odataNextLink == nil || *odataNextLink == "" {
			return nil
		}

		response, err = c.client.ServicePrincipals().WithUrl(*odataNextLink).Get(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to get next page of service principals: %w", err)
		}
	}
}

func (c *GraphDirectoryClient) LookupByAppID(ctx context.Context, appID string) (models.ServicePrincipalable, error) {
	requestConfig := &serviceprincipals.ServicePrincipalsRequestBuilderGetRequestConfiguration{
		QueryParameters: &serviceprincipals.ServicePrincipalsRequestBuilderGetQueryParameters{
			Filter: to.Ptr(fmt.Sprintf("appId eq '%s'", appID)),
			Select: servicePrincipalSelect,
			Top:    to.Ptr(int32(1)),
		},
	}

	response, err := c.client.ServicePrincipals().Get(ctx, requestConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to look up service principal by appId %s: %w", appID, err)
	}

	value := response.GetValue()
	if len(value) == 0 {
		return nil, nil
	}
	return value[0], nil
}
