package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ausaccessfed/aaf-mdqt/internal/core/domain"
	"github.com/ausaccessfed/aaf-mdqt/internal/core/service"
)

func (a *App) hashCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash <entity-id>...",
		Short: "Print the {sha1} form of entity IDs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, id := range args {
				if domain.ValidSHA1Identifier(id) {
					fmt.Fprintln(a.stdout, id)
					continue
				}
				fmt.Fprintln(a.stdout, domain.HashIdentifier(id))
			}
			return nil
		},
	}
}

func (a *App) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Maintain the response cache",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "tidy",
			Short: "Remove expired entries that can no longer be revalidated",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withLocalLookup(func(l *service.Lookup) error {
					removed, err := l.Tidy(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(a.stdout, "removed %d cache entries\n", removed)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "purge",
			Short: "Remove every cached response",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withLocalLookup(func(l *service.Lookup) error {
					if err := l.Purge(cmd.Context()); err != nil {
						return err
					}
					fmt.Fprintln(a.stdout, "cache purged")
					return nil
				})
			},
		},
	)
	return cmd
}

func (a *App) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "mdqt %s\n", a.version)
		},
	}
}
