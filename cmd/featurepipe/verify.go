package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/avolkov/featurepipe/internal/featurestore"
	"github.com/avolkov/featurepipe/internal/retry"
)

func newVerifyCmd() *cobra.Command {
	var (
		key      string
		attempts int
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Fetch a published snapshot by account key and print its features",
		Long: "Post-publish validation: reads the feature store record for an account\n" +
			"key and prints it. Retries with backoff to ride out store propagation lag.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup()
			if err != nil {
				return err
			}
			if key == "" {
				return fmt.Errorf("--key is required")
			}

			store, err := newStore(cfg)
			if err != nil {
				return fmt.Errorf("feature store: %w", err)
			}
			defer func() { _ = store.Close() }()

			ctx := cmd.Context()
			var features []featurestore.Feature
			err = retry.Do(ctx, attempts, 200*time.Millisecond, func() error {
				var getErr error
				features, getErr = store.Get(ctx, key)
				if errors.Is(getErr, featurestore.ErrNotFound) {
					return getErr // possibly not propagated yet, retry
				}
				if getErr != nil {
					return retry.Permanent(getErr)
				}
				return nil
			})
			if err != nil {
				return fmt.Errorf("verify %s: %w", key, err)
			}

			fmt.Printf("key: %s\n", key)
			for _, f := range features {
				fmt.Printf("  %s = %s\n", f.Name, f.Value)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "account key to fetch (required)")
	cmd.Flags().IntVar(&attempts, "attempts", 5, "max read attempts before giving up")
	return cmd
}
