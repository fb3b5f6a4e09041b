package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"

	"quizbot-gateway/internal/config"
	"quizbot-gateway/internal/domain"
	"quizbot-gateway/internal/infra/postgres"
)

// NewSeedCmd loads the demo tenant into Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert the demo tenant, questions, and reply rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), *configPath)
		},
	}
}

func runSeed(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}
	if err := runMigrationsWithConfig(ctx, cfg); err != nil {
		return err
	}

	db := postgres.Connect(cfg.Postgres.URL)
	defer db.Close()

	if err := seedDemoTenant(ctx, db); err != nil {
		return err
	}
	slog.Info("demo tenant seeded", slog.String("tenant_id", demoTenantID))
	return nil
}

func seedDemoTenant(ctx context.Context, db *bun.DB) error {
	tenant := demoTenantConfig()
	if _, err := db.NewInsert().Model(&tenant).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("seed tenant config: %w", err)
	}

	questions := demoQuestions()
	if _, err := db.NewInsert().Model(&questions).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("seed questions: %w", err)
	}

	rules := demoRules()
	if _, err := db.NewInsert().Model(&rules).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("seed reply rules: %w", err)
	}
	return nil
}

const demoTenantID = "tenant-demo"

// Demo fixtures back local runs without Postgres; the seed command writes the
// same rows into a real database.
func demoTenantConfig() domain.TenantChannelConfig {
	return domain.TenantChannelConfig{
		ID:        "cfg-demo",
		TenantID:  demoTenantID,
		ChannelID: "demo-channel",
		Language:  "en",
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
}

func demoQuestions() []domain.QuizQuestion {
	return []domain.QuizQuestion{
		{
			ID:            "q-demo-1",
			TenantID:      demoTenantID,
			OrderIndex:    0,
			Text:          "How often do you learn something new about our products?",
			Options:       []string{"Every week", "Once a month", "Rarely"},
			CorrectAnswer: "Every week",
			Points:        2,
		},
		{
			ID:            "q-demo-2",
			TenantID:      demoTenantID,
			OrderIndex:    1,
			Text:          "Which channel do you prefer for updates?",
			Options:       []string{"Chat", "Email", "Phone"},
			CorrectAnswer: "Chat",
			Points:        1,
		},
		{
			ID:            "q-demo-3",
			TenantID:      demoTenantID,
			OrderIndex:    2,
			Text:          "Would you recommend us to a friend?",
			Options:       []string{"Definitely", "Maybe", "No"},
			CorrectAnswer: "Definitely",
			Points:        2,
		},
	}
}

func demoRules() []domain.AutoReplyRule {
	return []domain.AutoReplyRule{
		{
			ID:              "rule-demo-1",
			TenantID:        demoTenantID,
			TriggerKeywords: []string{"hours", "open"},
			ResponseText:    "We're online around the clock. Send \"quiz\" to try our quick quiz!",
			Priority:        10,
			IsActive:        true,
		},
		{
			ID:              "rule-demo-2",
			TenantID:        demoTenantID,
			TriggerKeywords: []string{"price", "cost"},
			ResponseText:    "Our plans start free. Ask me anything or send \"quiz\" to play.",
			Priority:        5,
			IsActive:        true,
		},
	}
}
