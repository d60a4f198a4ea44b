package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sable-sec/appregctl/internal/message"
	"github.com/sable-sec/appregctl/pkg/graph"
)

var appCmd = &cobra.Command{
	Use:   "app",
	Short: "Manage app registration credentials and permission grants",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var appSecretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manage client secrets",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var (
	secretAppID        string
	secretName         string
	secretValidityDays int
	secretKeyID        string
)

// resolveApplication maps an appId to the application object id.
func resolveApplication(cmd *cobra.Command, session *graph.Session, appID string) (string, error) {
	app, err := session.FindApplicationByAppID(cmd.Context(), appID)
	if err != nil {
		return "", err
	}
	if app == nil {
		return "", fmt.Errorf("no application found with appId %s", appID)
	}
	if app.GetId() == nil {
		return "", fmt.Errorf("application %s has no object id", appID)
	}
	return *app.GetId(), nil
}

var appSecretAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a client secret to an app registration",
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := graph.Connect(cmd.Context())
		if err != nil {
			return err
		}

		objectID, err := resolveApplication(cmd, session, secretAppID)
		if err != nil {
			return err
		}

		validity := time.Duration(secretValidityDays) * 24 * time.Hour
		result, err := session.AddSecret(cmd.Context(), objectID, secretName, validity)
		if err != nil {
			return err
		}

		message.Success("Secret created (keyId %s, expires %s)", result.KeyID, result.ExpiresAt.Format("2006-01-02"))
		message.Warning("The secret value is shown once and cannot be retrieved again:")
		fmt.Println(result.SecretText)
		return nil
	},
}

var appSecretRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove a client secret from an app registration",
	RunE: func(cmd *cobra.Command, args []string) error {
		keyID, err := uuid.Parse(secretKeyID)
		if err != nil {
			return fmt.Errorf("invalid key id %q: %w", secretKeyID, err)
		}

		session, err := graph.Connect(cmd.Context())
		if err != nil {
			return err
		}

		objectID, err := resolveApplication(cmd, session, secretAppID)
		if err != nil {
			return err
		}

		if err := session.RemoveSecret(cmd.Context(), objectID, keyID); err != nil {
			return err
		}
		message.Success("Secret %s removed", secretKeyID)
		return nil
	},
}

var (
	certAppID string
	certName  string
	certFile  string
)

var appCertAddCmd = &cobra.Command{
	Use:   "cert",
	Short: "Add a certificate credential to an app registration",
	RunE: func(cmd *cobra.Command, args []string) error {
		certDER, err := os.ReadFile(certFile)
		if err != nil {
			return fmt.Errorf("failed to read certificate %s: %w", certFile, err)
		}

		session, err := graph.Connect(cmd.Context())
		if err != nil {
			return err
		}

		objectID, err := resolveApplication(cmd, session, certAppID)
		if err != nil {
			return err
		}

		if err := session.AddCertificate(cmd.Context(), objectID, certName, certDER); err != nil {
			return err
		}
		message.Success("Certificate credential added to %s", certAppID)
		return nil
	},
}

var (
	grantAppID      string
	grantResourceID string
	grantRole       string
)

var appGrantCmd = &cobra.Command{
	Use:   "grant",
	Short: "Grant an application permission on a resource API",
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := graph.Connect(cmd.Context())
		if err != nil {
			return err
		}
		client := graph.NewDirectoryClient(session)

		principal, err := client.LookupByAppID(cmd.Context(), grantAppID)
		if err != nil {
			return err
		}
		if principal == nil || principal.GetId() == nil {
			return fmt.Errorf("no service principal found for appId %s (is the app consented into the tenant?)", grantAppID)
		}

		resource, err := client.LookupByAppID(cmd.Context(), grantResourceID)
		if err != nil {
			return err
		}
		if resource == nil || resource.GetId() == nil {
			return fmt.Errorf("no resource service principal found for appId %s", grantResourceID)
		}

		var roleID *uuid.UUID
		for _, role := range resource.GetAppRoles() {
			if role.GetValue() != nil && *role.GetValue() == grantRole {
				roleID = role.GetId()
				break
			}
		}
		if roleID == nil {
			return fmt.Errorf("resource %s exposes no application permission named %q", grantResourceID, grantRole)
		}

		principalID, err := uuid.Parse(*principal.GetId())
		if err != nil {
			return fmt.Errorf("invalid principal object id: %w", err)
		}
		resourceID, err := uuid.Parse(*resource.GetId())
		if err != nil {
			return fmt.Errorf("invalid resource object id: %w", err)
		}

		if err := session.GrantAppRole(cmd.Context(), principalID, resourceID, *roleID); err != nil {
			return err
		}
		message.Success("Granted %s on %s to %s", grantRole, grantResourceID, grantAppID)
		return nil
	},
}

var grantsAppID string

var appGrantsCmd = &cobra.Command{
	Use:   "grants",
	Short: "List app role assignments held by an app's service principal",
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := graph.Connect(cmd.Context())
		if err != nil {
			return err
		}
		client := graph.NewDirectoryClient(session)

		principal, err := client.LookupByAppID(cmd.Context(), grantsAppID)
		if err != nil {
			return err
		}
		if principal == nil || principal.GetId() == nil {
			return fmt.Errorf("no service principal found for appId %s", grantsAppID)
		}

		assignments, err := session.ListAppRoleAssignments(cmd.Context(), *principal.GetId())
		if err != nil {
			return err
		}

		if len(assignments) == 0 {
			message.Info("No app role assignments for %s", grantsAppID)
			return nil
		}
		for _, assignment := range assignments {
			resourceName := ""
			if assignment.GetResourceDisplayName() != nil {
				resourceName = *assignment.GetResourceDisplayName()
			}
			roleID := ""
			if assignment.GetAppRoleId() != nil {
				roleID = assignment.GetAppRoleId().String()
			}
			message.Info("%s: role %s", resourceName, roleID)
		}
		return nil
	},
}

func init() {
	appSecretAddCmd.Flags().StringVar(&secretAppID, "app-id", "", "appId of the app registration")
	appSecretAddCmd.Flags().StringVar(&secretName, "name", "appregctl", "display name for the secret")
	appSecretAddCmd.Flags().IntVar(&secretValidityDays, "validity-days", 180, "secret lifetime in days")
	appSecretAddCmd.MarkFlagRequired("app-id")

	appSecretRemoveCmd.Flags().StringVar(&secretAppID, "app-id", "", "appId of the app registration")
	appSecretRemoveCmd.Flags().StringVar(&secretKeyID, "key-id", "", "keyId of the secret to remove")
	appSecretRemoveCmd.MarkFlagRequired("app-id")
	appSecretRemoveCmd.MarkFlagRequired("key-id")

	appCertAddCmd.Flags().StringVar(&certAppID, "app-id", "", "appId of the app registration")
	appCertAddCmd.Flags().StringVar(&certName, "name", "appregctl", "display name for the certificate")
	appCertAddCmd.Flags().StringVar(&certFile, "file", "", "path to a DER-encoded certificate")
	appCertAddCmd.MarkFlagRequired("app-id")
	appCertAddCmd.MarkFlagRequired("file")

	appGrantCmd.Flags().StringVar(&grantAppID, "app-id", "", "appId of the app registration receiving the grant")
	appGrantCmd.Flags().StringVar(&grantResourceID, "resource", "", "appId of the resource API")
	appGrantCmd.Flags().StringVar(&grantRole, "role", "", "application permission name, e.g. User.Read.All")
	appGrantCmd.MarkFlagRequired("app-id")
	appGrantCmd.MarkFlagRequired("resource")
	appGrantCmd.MarkFlagRequired("role")

	appGrantsCmd.Flags().StringVar(&grantsAppID, "app-id", "", "appId of the app registration")
	appGrantsCmd.MarkFlagRequired("app-id")

	appSecretCmd.AddCommand(appSecretAddCmd)
	appSecretCmd.AddCommand(appSecretRemoveCmd)
	appCmd.AddCommand(appSecretCmd)
	appCmd.AddCommand(appCertAddCmd)
	appCmd.AddCommand(appGrantCmd)
	appCmd.AddCommand(appGrantsCmd)
	rootCmd.AddCommand(appCmd)
}
