package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/jmehdipour/subscribers/internal/config"
	"github.com/jmehdipour/subscribers/internal/db"
	"github.com/jmehdipour/subscribers/internal/model"
	"github.com/jmehdipour/subscribers/internal/repository"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var seedAPIKey string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with a demo operator and subscribers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		storeDB, err := db.Open(cfg.Database.Driver, cfg.Database.DSN, db.OptsFrom(cfg.Database))
		if err != nil {
			return fmt.Errorf("%s connect: %w", cfg.Database.Driver, err)
		}
		defer storeDB.Close()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		apiKey := operatorAPIKey(seedAPIKey)
		log.Println(">> Seeding demo operator...")
		err = repository.NewOperatorsRepository(storeDB).Upsert(ctx, model.Operator{
			Name:   "Demo Operator",
			APIKey: apiKey,
			Status: model.OperatorActive,
		})
		if err != nil {
			return err
		}
		log.Printf(">> Demo operator API key: %s", apiKey)

		log.Println(">> Seeding demo subscribers...")
		store := repository.NewSubscribersRepository(storeDB, repository.NewOutboxRepository(storeDB))
		n, err := seedSubscribers(ctx, store)
		if err != nil {
			return err
		}

		log.Printf(">> Seed completed: %d new subscribers", n)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedAPIKey, "api-key", "", "API key of the demo operator (random when empty)")
}

// operatorAPIKey returns key, or a fresh random 32-char hex key when key is empty.
func operatorAPIKey(key string) string {
	if key = strings.TrimSpace(key); key != "" {
		return key
	}
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// seedSubscribers inserts a fixed demo list; rerunning it is a no-op.
func seedSubscribers(ctx context.Context, store repository.SubscribersRepository) (int, error) {
	demo := []struct{ name, email string }{
		{"Ada Lovelace", "ada@example.com"},
		{"Grace Hopper", "grace@example.com"},
		{"Alan Turing", "alan@example.com"},
		{"Katherine Johnson", "katherine@example.com"},
	}
	inserted := 0
	for _, d := range demo {
		_, err := store.Insert(ctx, d.name, d.email, model.SourceSeed)
		if errors.Is(err, repository.ErrDuplicate) {
			continue
		}
		if err != nil {
			return inserted, fmt.Errorf("seed %s: %w", d.email, err)
		}
		inserted++
	}
	return inserted, nil
}
