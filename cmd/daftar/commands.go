package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nhartono/daftar/internal/config"
	"github.com/nhartono/daftar/internal/progress"
	"github.com/nhartono/daftar/internal/schema"
	"github.com/nhartono/daftar/internal/session"
	"github.com/nhartono/daftar/internal/storage"
)

// --- schema ---

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect the form definition",
}

var schemaValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Validate a form definition file (or the embedded default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			f := schema.Default()
			printSuccess("embedded form %q v%s is valid (%d sections)", f.FormName, f.Version, len(f.Sections))
			return nil
		}

		f, err := schema.LoadFile(args[0])
		if err != nil {
			printError("%v", err)
			return err
		}
		printSuccess("%s: form %q v%s is valid (%d sections)", args[0], f.FormName, f.Version, len(f.Sections))
		return nil
	},
}

var schemaShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the active form definition as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		f, err := loadSchema(cfg.Form.SchemaPath)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"form_name": f.FormName,
			"version":   f.Version,
			"sections":  f.Sections,
		})
	},
}

// --- session ---

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect stored registration sessions",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored session ids",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, store *storage.Store) error {
			ids, err := store.SessionStore().ListIDs(ctx)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				printStatus("Sessions", "none")
				return nil
			}
			for _, id := range ids {
				fmt.Println(id)
			}
			return nil
		})
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a session's collected data and progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, store *storage.Store) error {
			st, err := store.SessionStore().Get(ctx, args[0])
			if errors.Is(err, session.ErrNotFound) {
				printError("session %s not found", args[0])
				return err
			}
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			f, err := loadSchema(cfg.Form.SchemaPath)
			if err != nil {
				return err
			}

			printStatus("Session", "%s", st.SessionID)
			printStatus("Section", "%s", st.CurrentSection)
			printStatus("Progress", "%.0f%%", progress.CompletionPercentage(f, st.Data))
			printStatus("Turns", "%d", len(st.History))

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(st.Data)
		})
	},
}

var sessionDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a stored session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, store *storage.Store) error {
			err := store.SessionStore().Delete(ctx, args[0])
			if errors.Is(err, session.ErrNotFound) {
				printError("session %s not found", args[0])
				return err
			}
			if err != nil {
				return err
			}
			printSuccess("deleted session %s", args[0])
			return nil
		})
	},
}

func withStore(fn func(context.Context, *storage.Store) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()
	return fn(context.Background(), store)
}

func init() {
	schemaCmd.AddCommand(schemaValidateCmd)
	schemaCmd.AddCommand(schemaShowCmd)
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionDeleteCmd)
}
