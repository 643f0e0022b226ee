package cmd

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/sendstuff/campaign-gateway/internal/config"
	"github.com/sendstuff/campaign-gateway/internal/db"
	"github.com/sendstuff/campaign-gateway/internal/model"
	"github.com/sendstuff/campaign-gateway/internal/util"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with a demo user, subscribers and a draft campaign",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		dbx, err := db.NewMySQL(cfg.MySQL.DSN, db.PoolOpts{
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
			PingTimeout:     cfg.MySQL.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer dbx.Close()

		userID, err := seedUser(dbx)
		if err != nil {
			return err
		}
		if err := seedSubscribers(dbx, userID); err != nil {
			return err
		}
		if err := seedCampaign(dbx, userID); err != nil {
			return err
		}

		fmt.Println(">> Seed complete ✅ (api key: demo-key)")
		return nil
	},
}

func seedUser(dbx *sqlx.DB) (int64, error) {
	const q = `
INSERT INTO users (name, email, api_key, status, rate_limit_rps, created_at, updated_at)
VALUES ('Demo', 'demo@sendstuff.com', 'demo-key', 'active', 20, NOW(), NOW())
ON DUPLICATE KEY UPDATE status = 'active', updated_at = NOW()
`
	if _, err := dbx.Exec(q); err != nil {
		return 0, fmt.Errorf("seed user: %w", err)
	}

	var id int64
	if err := dbx.Get(&id, `SELECT id FROM users WHERE api_key = 'demo-key'`); err != nil {
		return 0, fmt.Errorf("seed user lookup: %w", err)
	}
	return id, nil
}

func seedSubscribers(dbx *sqlx.DB, userID int64) error {
	var count int
	if err := dbx.Get(&count, `SELECT COUNT(*) FROM subscribers WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("count subscribers: %w", err)
	}
	if count > 0 {
		log.Printf("seed: user %d already has %d subscribers, skipping", userID, count)
		return nil
	}

	subs := []model.Subscriber{
		{Email: "alice@example.com", Name: "Alice", Metadata: model.Attributes{"plan": "pro"}},
		{Email: "bob@example.com", Name: "Bob", Tags: model.Tags{"beta"}},
		{Email: "carol@example.com", Name: ""},
	}

	const q = `
INSERT INTO subscribers (id, user_id, email, name, status, tags, metadata, created_at, updated_at)
VALUES (?, ?, ?, ?, 'active', ?, ?, NOW(), NOW())
`
	for _, s := range subs {
		if _, err := dbx.Exec(q, util.NewID(), userID, s.Email, s.Name, s.Tags, s.Metadata); err != nil {
			return fmt.Errorf("seed subscriber %s: %w", s.Email, err)
		}
	}
	return nil
}

func seedCampaign(dbx *sqlx.DB, userID int64) error {
	var count int
	if err := dbx.Get(&count, `SELECT COUNT(*) FROM campaigns WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("count campaigns: %w", err)
	}
	if count > 0 {
		return nil
	}

	const q = `
INSERT INTO campaigns (id, user_id, title, subject, content, status, created_at, updated_at)
VALUES (?, ?, 'Welcome series', 'Hello {{ name | default: "there" }}!', 'Thanks for joining us.\n\nWe are glad to have you.', 'draft', NOW(), NOW())
`
	if _, err := dbx.Exec(q, util.NewID(), userID); err != nil {
		return fmt.Errorf("seed campaign: %w", err)
	}
	return nil
}
