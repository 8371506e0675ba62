package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"docchat/internal/app"
	"docchat/internal/bootstrap"
)

func newRegisterCmd() *cobra.Command {
	var (
		orgID      string
		documentID string
		name       string
		createdBy  string
		ingest     bool
	)
	cmd := &cobra.Command{
		Use:   "register <pdf-path>",
		Short: "copy a PDF into storage and register it on a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *bootstrap.App) error {
				key, err := storeFile(a.Config.Storage.Root, orgID, args[0])
				if err != nil {
					return err
				}
				file, err := a.Documents.RegisterFile(cmd.Context(), app.RegisterFileInput{
					OrganizationID: orgID,
					DocumentID:     documentID,
					DocumentName:   name,
					Filename:       filepath.Base(args[0]),
					ContentType:    "application/pdf",
					StorageKey:     key,
					CreatedBy:      createdBy,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "document %s file %s registered\n", file.DocumentID, file.ID)
				if !ingest {
					return nil
				}
				file, err = a.Ingest.IngestFile(cmd.Context(), orgID, file.DocumentID, file.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "file %s %s, %d pages\n", file.ID, file.Status, file.PageCount)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "organization id")
	cmd.Flags().StringVar(&documentID, "document", "", "existing document id, empty creates one")
	cmd.Flags().StringVar(&name, "name", "", "name of a new document")
	cmd.Flags().StringVar(&createdBy, "user", "", "registering user id")
	cmd.Flags().BoolVar(&ingest, "ingest", false, "ingest the file right away")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}

func newIngestCmd() *cobra.Command {
	var orgID string
	cmd := &cobra.Command{
		Use:   "ingest <document-id> <file-id>",
		Short: "index and summarize an uploaded file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *bootstrap.App) error {
				file, err := a.Ingest.IngestFile(cmd.Context(), orgID, args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "file %s %s, %d pages\n", file.ID, file.Status, file.PageCount)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "organization id")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}

func newRequeueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <chat-id>",
		Short: "move a failed or awaiting chat back onto the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *bootstrap.App) error {
				if err := a.Chats.Requeue(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "chat %s requeued\n", args[0])
				return nil
			})
		},
	}
}

func newSetCredentialCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-credential <org-id>",
		Short: "store an organization's model API key, read from stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), 4096))
			if err != nil {
				return fmt.Errorf("read key failed: %w", err)
			}
			key := strings.TrimSpace(string(raw))
			if key == "" {
				return fmt.Errorf("empty key on stdin")
			}
			return withApp(cmd.Context(), func(a *bootstrap.App) error {
				return a.Credentials.SetModelCredential(cmd.Context(), args[0], key)
			})
		},
	}
}

// storeFile copies src under root and returns its storage key.
func storeFile(root, orgID, src string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open source file failed: %w", err)
	}
	defer in.Close()

	key := filepath.ToSlash(filepath.Join(orgID, ulid.Make().String()+"-"+filepath.Base(src)))
	dst := filepath.Join(root, key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create storage dir failed: %w", err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create stored file failed: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return "", fmt.Errorf("copy file failed: %w", err)
	}
	return key, out.Close()
}
