package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/sable-sec/appregctl/internal/message"
	"github.com/sable-sec/appregctl/pkg/catalog"
	"github.com/sable-sec/appregctl/pkg/graph"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the local service-permission catalog",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var (
	refreshIncludeGraph  bool
	refreshIncludeCustom bool
	refreshForce         bool
	refreshLegacy        bool
)

var catalogRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Rebuild the catalog from the directory service",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := newCatalogEnv(true)
		if err != nil {
			return err
		}

		session, err := graph.Connect(cmd.Context())
		if err != nil {
			return err
		}

		pref := env.prefs.Resolve(false)
		refresher := catalog.NewRefresher(graph.NewDirectoryClient(session), session, env.store, env.cache)

		summary, err := refresher.Refresh(cmd.Context(), catalog.RefreshOptions{
			IncludeMicrosoftGraph: refreshIncludeGraph,
			IncludeCustomApis:     refreshIncludeCustom,
			Force:                 refreshForce,
			WriteLegacy:           refreshLegacy || !pref.UseNormalizedStorage,
		})
		if err != nil {
			return err
		}

		if summary.Skipped {
			message.Info("Refresh skipped: %s", summary.SkipReason)
			return nil
		}

		message.Success("Catalog refreshed: %d services, %d application permissions, %d delegated permissions, %d unique definitions (%d pages)",
			summary.Services, summary.ApplicationPermissions, summary.DelegatedPermissions, summary.UniqueDefinitions, summary.Pages)
		return nil
	},
}

var initForce bool

var catalogInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an empty normalized catalog structure",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := newCatalogEnv(true)
		if err != nil {
			return err
		}

		result, err := env.store.InitializeStructure(initForce)
		if err != nil {
			return err
		}

		for _, name := range result.Created {
			message.Success("Created %s", name)
		}
		if len(result.Existing) > 0 {
			message.Warning("Left existing files untouched (use --force to overwrite): %s", strings.Join(result.Existing, ", "))
		}
		return nil
	},
}

var (
	findPermissions bool
	findLive        bool
)

var catalogFindCmd = &cobra.Command{
	Use:   "find [pattern]",
	Short: "Find catalog services by name or appId",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := newCatalogEnv(false)
		if err != nil {
			return err
		}

		pattern := ""
		if len(args) > 0 {
			pattern = args[0]
		}

		query := &catalog.Query{Cache: env.cache, Prefs: env.prefs}
		if findLive {
			session, err := graph.Connect(cmd.Context())
			if err != nil {
				return err
			}
			query.Session = session
			query.Client = graph.NewDirectoryClient(session)
		}

		results, err := query.FindServices(cmd.Context(), pattern, catalog.FindOptions{
			IncludePermissions:          findPermissions,
			IncludeLiveServicePrincipal: findLive,
		})
		if err != nil {
			return err
		}

		if len(results) == 0 {
			message.Info("No services match %q", pattern)
			return nil
		}

		for _, info := range results {
			message.Section("%s", info.Service.ServiceKey)
			message.Info("AppId:       %s", info.Service.AppId)
			message.Info("DisplayName: %s", info.Service.DisplayName)
			if info.Service.Publisher != "" {
				message.Info("Publisher:   %s", info.Service.Publisher)
			}
			printPermissions("Application permissions", info.ApplicationPermissions)
			printPermissions("Delegated permissions", info.DelegatedPermissions)
			if info.Live != nil {
				if id := info.Live.GetId(); id != nil {
					message.Info("Live object id: %s", *id)
				}
			}
		}
		return nil
	},
}

func printPermissions(label string, defs []catalog.PermissionDefinition) {
	if len(defs) == 0 {
		return
	}
	message.Info("%s:", label)
	for _, def := range defs {
		if def.DisplayName != "" {
			message.Info("  %s - %s", def.Name, def.DisplayName)
		} else {
			message.Info("  %s", def.Name)
		}
	}
}

var catalogStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show catalog location, format, and freshness",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := newCatalogEnv(false)
		if err != nil {
			return err
		}

		message.Info("Catalog directory: %s", env.dir)

		pref := env.prefs.Resolve(false)
		format := "legacy"
		if pref.UseNormalizedStorage {
			format = "normalized"
		}
		message.Info("Storage format: %s (%s)", format, pref.Reason)

		if env.store.HasRefreshMarker() {
			message.Warning("A previous refresh did not complete; re-run 'catalog refresh --force'")
		}

		index, err := env.cache.Index()
		if err != nil {
			return err
		}
		if index == nil {
			message.Info("Normalized catalog: not present")
			return nil
		}

		message.Info("Last updated: %s (refresh interval %d days, auto-refresh %t)",
			index.Metadata.LastUpdated.Format("2006-01-02 15:04:05 MST"),
			index.Metadata.RefreshIntervalDays,
			index.Metadata.AutoRefreshEnabled)

		if sps, err := env.cache.ServicePrincipals(); err == nil {
			message.Info("Services: %d", len(sps))
		}
		if defs, err := env.cache.PermissionDefinitions(); err == nil && defs != nil {
			message.Info("Unique definitions: %d application, %d delegated", len(defs.Application), len(defs.Delegated))
		}
		return nil
	},
}

var catalogStorageCmd = &cobra.Command{
	Use:   "storage <legacy|normalized>",
	Short: "Persist the preferred storage format",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := newCatalogEnv(true)
		if err != nil {
			return err
		}

		var useNormalized bool
		switch strings.ToLower(args[0]) {
		case "normalized":
			useNormalized = true
		case "legacy":
			useNormalized = false
		default:
			return cmd.Usage()
		}

		if err := env.prefs.Persist(useNormalized); err != nil {
			return err
		}
		message.Success("Storage preference saved: %s", strings.ToLower(args[0]))
		return nil
	},
}

func init() {
	catalogRefreshCmd.Flags().BoolVar(&refreshIncludeGraph, "include-graph", false, "include the built-in Microsoft Graph service")
	catalogRefreshCmd.Flags().BoolVar(&refreshIncludeCustom, "include-custom", false, "include non-Microsoft custom APIs")
	catalogRefreshCmd.Flags().BoolVarP(&refreshForce, "force", "f", false, "refresh even if the catalog is fresh")
	catalogRefreshCmd.Flags().BoolVar(&refreshLegacy, "legacy", false, "also write the legacy single-file catalog")

	catalogInitCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite existing catalog files")

	catalogFindCmd.Flags().BoolVarP(&findPermissions, "permissions", "p", false, "include permission definitions")
	catalogFindCmd.Flags().BoolVar(&findLive, "live", false, "attach the live directory object for each match")

	catalogCmd.AddCommand(catalogRefreshCmd)
	catalogCmd.AddCommand(catalogInitCmd)
	catalogCmd.AddCommand(catalogFindCmd)
	catalogCmd.AddCommand(catalogStatusCmd)
	catalogCmd.AddCommand(catalogStorageCmd)
	rootCmd.AddCommand(catalogCmd)
}
