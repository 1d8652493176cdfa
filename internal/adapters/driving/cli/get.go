package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ausaccessfed/aaf-mdqt/internal/core/domain"
	"github.com/ausaccessfed/aaf-mdqt/internal/core/service"
)

func (a *App) getCommand() *cobra.Command {
	var (
		saveTo          string
		requireVerified bool
		concurrency     int
	)
	cmd := &cobra.Command{
		Use:   "get <entity-id>...",
		Short: "Download metadata for one or more entities",
		Long: `Download metadata for one or more entities.

Entity IDs may be literal URIs or {sha1} hashes. Documents are written to
stdout, or to one file per entity with --save-to.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLookup(func(l *service.Lookup) error {
				results := l.GetAll(cmd.Context(), args, concurrency, a.requestOptions())
				return a.writeResults(results, saveTo, requireVerified)
			})
		},
	}
	cmd.Flags().StringVar(&saveTo, "save-to", "", "write each document to <dir>/{sha1}<hash>.xml")
	cmd.Flags().BoolVar(&requireVerified, "validate", false, "fail unless every document is verified")
	cmd.Flags().IntVar(&concurrency, "concurrency", service.DefaultBatchLimit, "maximum parallel requests")
	return cmd
}

func (a *App) listCommand() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the entity IDs published by the service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLookup(func(l *service.Lookup) error {
				resp, err := l.List(cmd.Context(), a.requestOptions())
				if err != nil {
					return err
				}
				a.explain(resp)
				if raw {
					_, err = a.stdout.Write(resp.Body())
					return err
				}
				for _, id := range resp.EntityIDs() {
					fmt.Fprintln(a.stdout, id)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print the aggregate document instead of its entity IDs")
	return cmd
}

func (a *App) existsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "exists <entity-id>...",
		Short: "Check whether the service publishes each entity",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLookup(func(l *service.Lookup) error {
				failed := newFailures(a.stderr)
				missing := 0
				for _, raw := range args {
					found, err := l.Exists(cmd.Context(), raw)
					if err != nil {
						if !failed.add(raw, err) {
							return err
						}
						continue
					}
					answer := "yes"
					if !found {
						answer = "no"
						missing++
					}
					fmt.Fprintf(a.stdout, "%s: %s\n", raw, answer)
				}
				if err := failed.err(len(args), "existence checks"); err != nil {
					return err
				}
				if missing > 0 {
					return &exitError{
						code: domain.ErrCodeHTTPStatus.ExitCode(),
						msg:  fmt.Sprintf("%d of %d entities not found", missing, len(args)),
					}
				}
				return nil
			})
		},
	}
}

// writeResults prints every document that was retrieved and reports each
// failure without stopping at the first one.
func (a *App) writeResults(results []service.Result, saveTo string, requireVerified bool) error {
	failed := newFailures(a.stderr)
	for _, r := range results {
		if r.Err != nil {
			failed.add(r.Identifier, r.Err)
			continue
		}
		a.explain(r.Response)
		a.warnExpired(r.Identifier, r.Response)
		if requireVerified && !r.Response.Verified() {
			failed.add(r.Identifier, &domain.AppError{
				Code:       domain.ErrCodeSignatureInvalid,
				Message:    fmt.Sprintf("metadata is %s", r.Response.Verification().State),
				Identifier: r.Identifier,
			})
			continue
		}
		if err := a.writeDocument(r.Response, saveTo); err != nil {
			failed.add(r.Identifier, err)
		}
	}
	return failed.err(len(results), "lookups")
}

func (a *App) writeDocument(resp *domain.MetadataResponse, dir string) error {
	if dir == "" {
		_, err := a.stdout.Write(resp.Body())
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	path := filepath.Join(dir, documentFileName(resp))
	if err := os.WriteFile(path, resp.Body(), 0o644); err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}
	fmt.Fprintln(a.stdout, path)
	return nil
}

// documentFileName names a saved document after the hashed entityID it
// holds, so the directory can be served as a static MDQ tree.
func documentFileName(resp *domain.MetadataResponse) string {
	if ids := resp.EntityIDs(); len(ids) == 1 {
		return domain.HashIdentifier(ids[0]) + ".xml"
	}
	if resp.Identifier().IsAggregate() {
		return "aggregate.xml"
	}
	if resp.Identifier().IsHashed() {
		return resp.Identifier().Raw() + ".xml"
	}
	return domain.HashIdentifier(resp.Identifier().Raw()) + ".xml"
}

type explanation struct {
	Identifier   string                    `yaml:"identifier"`
	Source       string                    `yaml:"source"`
	Cache        domain.CacheOutcome       `yaml:"cache"`
	TLSVerified  bool                      `yaml:"tls_verified"`
	Verification domain.VerificationResult `yaml:"verification"`
}

// explain writes the verification trace to stderr when it was requested
// by flag or by configuration.
func (a *App) explain(resp *domain.MetadataResponse) {
	if resp == nil || (!a.flags.explain && len(resp.Explanation()) == 0) {
		return
	}
	enc := yaml.NewEncoder(a.stderr)
	enc.SetIndent(2)
	_ = enc.Encode(explanation{
		Identifier:   resp.Identifier().String(),
		Source:       resp.SourceURL(),
		Cache:        resp.CacheOutcome(),
		TLSVerified:  resp.TLSVerified(),
		Verification: resp.Verification(),
	})
	_ = enc.Close()
}
