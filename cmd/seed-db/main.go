// Command seed-db runs migrations and upserts items and users from a JSON
// seed file. Safe to run repeatedly.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/freshcart-io/freshcart/internal/domain/item"
	"github.com/freshcart-io/freshcart/internal/domain/user"
	"github.com/freshcart-io/freshcart/internal/repository"
)

type seedFile struct {
	Items []itemJSON `json:"items"`
	Users []userJSON `json:"users"`
}

type itemJSON struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
	Image    string          `json:"image"`
}

type userJSON struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func main() {
	var (
		databaseURL string
		seedPath    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedPath, "seed-file", "db/seed/data.json", "path to seed JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, seedPath); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, seedPath string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	slog.Info("reading seed file", slog.String("path", seedPath))

	data, err := os.ReadFile(seedPath)
	if err != nil {
		return errors.Wrap(err, "read seed file")
	}

	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return errors.Wrap(err, "parse seed JSON")
	}

	items := repository.NewItemRepository(pool)
	slog.Info("upserting items", slog.Int("count", len(seed.Items)))
	for _, it := range seed.Items {
		err := items.Upsert(ctx, &item.Item{
			ID:       it.ID,
			Name:     it.Name,
			Category: it.Category,
			Price:    it.Price,
			Quantity: it.Quantity,
			Image:    it.Image,
		})
		if err != nil {
			return errors.Wrapf(err, "upsert item %s", it.ID)
		}
		slog.Info("upserted item", slog.String("id", it.ID), slog.String("name", it.Name))
	}

	users := repository.NewUserRepository(pool)
	slog.Info("upserting users", slog.Int("count", len(seed.Users)))
	for _, u := range seed.Users {
		err := users.Upsert(ctx, &user.User{
			ID:    u.ID,
			Name:  u.Name,
			Email: u.Email,
			Role:  user.Role(u.Role),
		})
		if err != nil {
			return errors.Wrapf(err, "upsert user %s", u.ID)
		}
		slog.Info("upserted user", slog.String("id", u.ID), slog.String("role", u.Role))
	}

	return nil
}
