package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ausaccessfed/aaf-mdqt/internal/core/domain"
	"github.com/ausaccessfed/aaf-mdqt/internal/core/service"
)

func (a *App) checkCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check <file>...",
		Short: "Verify local entity metadata files",
		Long: `Verify local entity metadata files against the trust anchors.

Aggregates are refused: each file must hold a single EntityDescriptor.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLocalLookup(func(l *service.Lookup) error {
				failed := newFailures(a.stderr)
				for _, path := range args {
					resp, err := a.openEntityFile(l, path)
					if err == nil {
						a.explain(resp)
						a.warnExpired(path, resp)
						fmt.Fprintf(a.stdout, "%s: %s %s\n", path, firstEntityID(resp), resp.Verification().State)
						if resp.Verification().State == domain.Failed {
							err = signatureFailure(path)
						}
					}
					if err != nil && !failed.add(path, err) {
						return err
					}
				}
				return failed.err(len(args), "files")
			})
		},
	}
}

func (a *App) lnCommand() *cobra.Command {
	var (
		dir   string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "ln <file>...",
		Short: "Link entity metadata files under their {sha1} names",
		Long: `Create {sha1}<hash>.xml symlinks to entity metadata files, so a
directory of files can be served as a static MDQ tree.

Each file must hold one EntityDescriptor and must not fail verification.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLocalLookup(func(l *service.Lookup) error {
				for _, path := range args {
					if err := a.link(l, path, dir, force); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&dir, "dir", ".", "directory to create the links in")
	cmd.Flags().BoolVar(&force, "force", false, "replace existing links")
	return cmd
}

func (a *App) link(l *service.Lookup, path, dir string, force bool) error {
	target, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	if info, err := os.Lstat(target); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return nil
	}

	resp, err := a.openEntityFile(l, target)
	if err != nil {
		return err
	}
	a.explain(resp)
	if resp.Verification().State == domain.Failed {
		return signatureFailure(path)
	}

	entityID := firstEntityID(resp)
	linkName := filepath.Join(dir, domain.HashIdentifier(entityID)+".xml")
	if existing, err := os.Readlink(linkName); err == nil {
		if !force {
			msg := "conflicts with " + target
			if existing == target {
				msg = "already exists"
			}
			return fmt.Errorf("%s -> %s [%s] %s; use --force to replace it", linkName, existing, entityID, msg)
		}
		if err := os.Remove(linkName); err != nil {
			return fmt.Errorf("remove %s: %w", linkName, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s exists and is not a link", linkName)
	}

	if err := os.Symlink(target, linkName); err != nil {
		return fmt.Errorf("link %s: %w", path, err)
	}
	if a.flags.verbose {
		fmt.Fprintf(a.stderr, "%s -> %s [%s]\n", linkName, target, entityID)
	}
	return nil
}

// openEntityFile opens a local document and refuses aggregates.
func (a *App) openEntityFile(l *service.Lookup, path string) (*domain.MetadataResponse, error) {
	resp, err := l.Open(path, a.requestOptions())
	if err != nil {
		return nil, err
	}
	if resp.IsAggregate() {
		return nil, &domain.AppError{
			Code:       domain.ErrCodeMalformedDocument,
			Message:    "file is a metadata aggregate, expected a single EntityDescriptor",
			Identifier: path,
		}
	}
	if firstEntityID(resp) == "" {
		return nil, &domain.AppError{
			Code:       domain.ErrCodeMalformedDocument,
			Message:    "cannot find entityID",
			Identifier: path,
		}
	}
	return resp, nil
}

func firstEntityID(resp *domain.MetadataResponse) string {
	if ids := resp.EntityIDs(); len(ids) > 0 {
		return ids[0]
	}
	return ""
}

func signatureFailure(path string) error {
	return &domain.AppError{
		Code:       domain.ErrCodeSignatureInvalid,
		Message:    "signature verification failed",
		Identifier: path,
	}
}
