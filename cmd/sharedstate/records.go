package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vango-dev/sharedstate/internal/errors"
)

func keysCmd(flags *globalFlags) *cobra.Command {
	var persistent bool

	cmd := &cobra.Command{
		Use:   "keys",
		Short: "List durable keys",
		Long: `List the durable keys stored in the namespace.

By default every record is loaded and the keys that decode are listed.
With --persistent, keys are listed from storage without decoding, which
also shows corrupt records.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx, flags, false)
			if err != nil {
				return err
			}
			defer e.Close()

			var keys []string
			if persistent {
				keys, err = e.rt.Persistence().ListDurableKeys(ctx)
				if err != nil {
					return err
				}
			} else {
				if _, err := e.rt.Hydrate(ctx); err != nil {
					return err
				}
				keys = e.rt.Utils().Keys()
			}

			for _, k := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&persistent, "persistent", "p", false, "List stored keys without decoding records")

	return cmd
}

func getCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print a durable value as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx, flags, false)
			if err != nil {
				return err
			}
			defer e.Close()

			key := durableKey(args[0])
			if key == "" {
				return errors.New("E001")
			}
			raw, ok := e.rt.Persistence().Load(ctx, key)
			if !ok {
				if err := e.err(); err != nil {
					return err
				}
				return errors.Newf(errors.CategoryCLI, "key %s not found", key)
			}

			data, err := json.Marshal(raw)
			if err != nil {
				return errors.New("E102").Wrap(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func setCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <json>",
		Short: "Write a durable value",
		Long: `Write a durable value. The value is parsed as JSON:

  sharedstate set user '{"name":"ann"}'
  sharedstate set theme '"dark"'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx, flags, true)
			if err != nil {
				return err
			}
			defer e.Close()

			key := durableKey(args[0])
			if key == "" {
				return errors.New("E001")
			}
			var v any
			if err := json.Unmarshal([]byte(args[1]), &v); err != nil {
				return errors.New("E101").
					WithDetail("value is not valid JSON").
					WithSuggestion(`Quote strings: sharedstate set theme '"dark"'`).
					Wrap(err)
			}

			e.rt.Set(key, v)
			if err := e.err(); err != nil {
				return err
			}
			success(cmd, "Set %s", key)
			return nil
		},
	}
}

func deleteCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <key>",
		Aliases: []string{"rm"},
		Short:   "Delete a durable value",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx, flags, true)
			if err != nil {
				return err
			}
			defer e.Close()

			key := durableKey(args[0])
			if key == "" {
				return errors.New("E001")
			}
			e.rt.Utils().Delete(key)
			if err := e.err(); err != nil {
				return err
			}
			success(cmd, "Deleted %s", key)
			return nil
		},
	}
}

func clearCmd(flags *globalFlags) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every durable value in the namespace",
		Long: `Delete every durable value in the namespace.

With --all, records outside the namespace that share the same storage
are deleted too.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx, flags, true)
			if err != nil {
				return err
			}
			defer e.Close()

			removed := len(e.rt.Utils().PersistentKeys())
			e.rt.Utils().Clear(true)
			if err := e.err(); err != nil {
				return err
			}

			if all {
				n, err := removeAll(ctx, cmd, e)
				if err != nil {
					return err
				}
				removed += n
			}

			success(cmd, "Cleared %d records", removed)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Also delete records outside the namespace")

	return cmd
}

// removeAll deletes every remaining storage key.
func removeAll(ctx context.Context, cmd *cobra.Command, e *env) (int, error) {
	keys, err := e.storage.Keys(ctx)
	if err != nil {
		return 0, errors.New("E104").Wrap(err)
	}
	if len(keys) > 0 {
		warn(cmd, "Deleting %d records outside namespace %s", len(keys), e.cfg.Namespace)
	}
	for _, k := range keys {
		if err := e.storage.RemoveItem(ctx, k); err != nil {
			return 0, errors.New("E105").WithDetailf("key %q", k).Wrap(err)
		}
	}
	return len(keys), nil
}
