package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/google/uuid"
	"github.com/microsoftgraph/msgraph-sdk-go/applications"
	"github.com/microsoftgraph/msgraph-sdk-go/models"
	msgraphcore "github.com/microsoftgraph/msgraph-sdk-go-core"
)

// SecretResult describes a freshly created password credential. SecretText
// is only ever returned by the directory at creation time.
type SecretResult struct {
	KeyID      string
	SecretText string
	ExpiresAt  time.Time
}

// FindApplicationByAppID resolves an app registration object by its appId.
// Returns nil when no application matches.
func (s *Session) FindApplicationByAppID(ctx context.Context, appID string) (models.Applicationable, error) {
	requestConfig := &applications.ApplicationsRequestBuilderGetRequestConfiguration{
		QueryParameters: &applications.ApplicationsRequestBuilderGetQueryParameters{
			Filter: to.Ptr(fmt.Sprintf("appId eq '%s'", appID)),
			Top:    to.Ptr(int32(1)),
		},
	}

	response, err := s.client.Applications().Get(ctx, requestConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to look up application by appId %s: %w", appID, err)
	}

	value := response.GetValue()
	if len(value) == 0 {
		return nil, nil
	}
	return value[0], nil
}

// AddSecret creates a new password credential on the application object.
func (s *Session) AddSecret(ctx context.Context, objectID, displayName string, validity time.Duration) (*SecretResult, error) {
	endDateTime := time.Now().UTC().Add(validity)

	credential := models.NewPasswordCredential()
	credential.SetDisplayName(&displayName)
	credential.SetEndDateTime(&endDateTime)

	requestBody := applications.NewItemAddPasswordPostRequestBody()
	requestBody.SetPasswordCredential(credential)

	result, err := s.client.Applications().ByApplicationId(objectID).AddPassword().Post(ctx, requestBody, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to add password credential to application %s: %w", objectID, err)
	}

	res := &SecretResult{ExpiresAt: endDateTime}
	if keyID := result.GetKeyId(); keyID != nil {
		res.KeyID = keyID.String()
	}
	if text := result.GetSecretText(); text != nil {
		res.SecretText = *text
	}
	return res, nil
}

// RemoveSecret deletes a password credential from the application object.
func (s *Session) RemoveSecret(ctx context.Context, objectID string, keyID uuid.UUID) error {
	requestBody := applications.NewItemRemovePasswordPostRequestBody()
	requestBody.SetKeyId(&keyID)

	if err := s.client.Applications().ByApplicationId(objectID).RemovePassword().Post(ctx, requestBody, nil); err != nil {
		return fmt.Errorf("failed to remove password credential %s from application %s: %w", keyID, objectID, err)
	}
	return nil
}

// AddCertificate uploads a certificate as a key credential on the
// application object. certDER is the raw DER-encoded certificate.
func (s *Session) AddCertificate(ctx context.Context, objectID, displayName string, certDER []byte) error {
	keyCredential := models.NewKeyCredential()
	keyCredential.SetDisplayName(&displayName)
	keyCredential.SetTypeEscaped(to.Ptr("AsymmetricX509Cert"))
	keyCredential.SetUsage(to.Ptr("Verify"))
	keyCredential.SetKey(certDER)

	patch := models.NewApplication()
	patch.SetKeyCredentials([]models.KeyCredentialable{keyCredential})

	if _, err := s.client.Applications().ByApplicationId(objectID).Patch(ctx, patch, nil); err != nil {
		return fmt.Errorf("failed to add key credential to application %s: %w", objectID, err)
	}
	return nil
}

// GrantAppRole assigns an application permission (app role) on a resource
// service principal to the given principal service principal.
func (s *Session) GrantAppRole(ctx context.Context, principalID, resourceID, appRoleID uuid.UUID) error {
	assignment := models.NewAppRoleAssignment()
	assignment.SetPrincipalId(&principalID)
	assignment.SetResourceId(&resourceID)
	assignment.SetAppRoleId(&appRoleID)

	if _, err := s.client.ServicePrincipals().ByServicePrincipalId(principalID.String()).AppRoleAssignments().Post(ctx, assignment, nil); err != nil {
		return fmt.Errorf("failed to grant app role %s on resource %s: %w", appRoleID, resourceID, err)
	}
	return nil
}

// ListAppRoleAssignments returns every app role assignment held by the
// given service principal, following pagination.
func (s *Session) ListAppRoleAssignments(ctx context.Context, servicePrincipalID string) ([]models.AppRoleAssignmentable, error) {
	result, err := s.client.ServicePrincipals().ByServicePrincipalId(servicePrincipalID).AppRoleAssignments().Get(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get app role assignments for %s: %w", servicePrincipalID, err)
	}

	var assignments []models.AppRoleAssignmentable

	pageIterator, err := msgraphcore.NewPageIterator[models.AppRoleAssignmentable](result, s.client.GetAdapter(), models.CreateAppRoleAssignmentCollectionResponseFromDiscriminatorValue)
	if err != nil {
		return nil, fmt.Errorf("failed to create page iterator: %w", err)
	}

	err = pageIterator.Iterate(ctx, func(assignment models.AppRoleAssignmentable) bool {
		if assignment != nil {
			assignments = append(assignments, assignment)
		}
		return true // continue iteration
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate app role assignments: %w", err)
	}

	return assignments, nil
}
