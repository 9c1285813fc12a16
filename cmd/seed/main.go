// Command seed loads a demo project, the sales pipeline workflow and a few
// business rules into the configured PostgreSQL database.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"projectflow/backend/internal/auth"
	"projectflow/backend/internal/config"
	"projectflow/backend/internal/logging"
	"projectflow/backend/internal/repository"
	"projectflow/backend/internal/services"
	"projectflow/backend/pkg/models"
)

func main() {
	configFile := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(context.Background(), cfg, logger); err != nil {
		logger.Error("Seeding failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Seeding complete!")
}

func run(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	store := repository.NewPostgresStore(pool, logger.Named("postgres"))
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	// 1. Ensure the dev user exists
	user, err := store.GetUserByEmail(ctx, auth.DevEmail)
	if errors.Is(err, repository.ErrNotFound) {
		user = &models.User{Email: auth.DevEmail, FullName: "Local Developer", IsActive: true}
		if err := store.CreateUser(ctx, user); err != nil {
			return fmt.Errorf("creating user: %w", err)
		}
		logger.Info("Created dev user", "id", user.ID)
	} else if err != nil {
		return err
	}

	workflows := services.NewWorkflowService(store, store, logger)
	rules := services.NewRuleService(store, nil, logger)

	// 2. Sales pipeline workflow
	wf, err := seedWorkflow(ctx, workflows, logger)
	if err != nil {
		return err
	}

	// 3. Demo project bound to the pipeline
	if err := seedProject(ctx, store, user.ID, wf.ID, logger); err != nil {
		return err
	}

	// 4. Rules
	return seedRules(ctx, rules, logger)
}

func stage(order int, label string) models.Value {
	return models.Object(models.Map{
		"order": models.Int(int64(order)),
		"label": models.String(label),
	})
}

func seedWorkflow(ctx context.Context, workflows *services.WorkflowService, logger *logging.Logger) (*models.Workflow, error) {
	const name = "Sales Pipeline"

	existing, err := workflows.List(ctx, nil, false)
	if err != nil {
		return nil, err
	}
	for _, w := range existing {
		if w.Name == name {
			logger.Info("Skipping existing workflow", "name", name, "id", w.ID)
			return w, nil
		}
	}

	desc := "Lead to close for inbound deals."
	wf, err := workflows.Create(ctx, models.WorkflowCreate{
		Name:        name,
		Description: &desc,
		Type:        models.WorkflowTypeSales,
		Stages: models.Map{
			string(models.StageLead):          stage(1, "Lead"),
			string(models.StageQualification): stage(2, "Qualification"),
			string(models.StageProposal):      stage(3, "Proposal"),
			string(models.StageNegotiation):   stage(4, "Negotiation"),
			string(models.StageClosedWon):     stage(5, "Closed Won"),
			string(models.StageClosedLost):    stage(6, "Closed Lost"),
		},
		Rules: models.Map{
			"require_amount_at": models.String(string(models.StageProposal)),
		},
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Seeded workflow", "name", name, "id", wf.ID)
	return wf, nil
}

func seedProject(ctx context.Context, store repository.ProjectStore, ownerID, workflowID int64, logger *logging.Logger) error {
	const name = "Acme Rollout"

	existing, err := store.ListProjects(ctx)
	if err != nil {
		return err
	}
	for _, p := range existing {
		if p.Name == name {
			logger.Info("Skipping existing project", "name", name, "id", p.ID)
			return nil
		}
	}

	p := &models.Project{
		Name:       name,
		OwnerID:    ownerID,
		WorkflowID: &workflowID,
		Status:     models.ProjectStatusInProgress,
	}
	if err := store.CreateProject(ctx, p); err != nil {
		return fmt.Errorf("creating project: %w", err)
	}
	logger.Info("Seeded project", "name", name, "id", p.ID)
	return nil
}

func seedRules(ctx context.Context, rules *services.RuleService, logger *logging.Logger) error {
	existing, err := rules.List(ctx, nil, false)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(existing))
	for _, r := range existing {
		seen[r.Name] = true
	}

	seeds := []models.RuleCreate{
		{
			Name:       "High value deal review",
			RuleType:   models.RuleTypeNotification,
			Conditions: models.Map{"stage": models.String(string(models.StageNegotiation)), "tier": models.String("enterprise")},
			Actions:    models.Map{"notify": models.String("sales-leads"), "priority": models.String("high")},
		},
		{
			Name:       "Auto assign qualified leads",
			RuleType:   models.RuleTypeAutomation,
			Conditions: models.Map{"stage": models.String(string(models.StageQualification))},
			Actions:    models.Map{"assign_to": models.String("account-executive")},
		},
		{
			Name:       "Proposal requires amount",
			RuleType:   models.RuleTypeValidation,
			Conditions: models.Map{"stage": models.String(string(models.StageProposal)), "has_amount": models.Bool(false)},
			Actions:    models.Map{"reject": models.Bool(true), "message": models.String("amount is required before proposal")},
		},
	}

	for _, in := range seeds {
		if seen[in.Name] {
			logger.Info("Skipping existing rule", "name", in.Name)
			continue
		}
		r, err := rules.Create(ctx, in)
		if err != nil {
			return fmt.Errorf("creating rule %q: %w", in.Name, err)
		}
		logger.Info("Seeded rule", "name", r.Name, "id", r.ID)
	}
	return nil
}
