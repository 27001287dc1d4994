package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/requestping/requestping/internal/app"
	"github.com/requestping/requestping/internal/auth"
	"github.com/requestping/requestping/internal/model"
	"github.com/requestping/requestping/internal/repository"
	"github.com/requestping/requestping/internal/service"
)

type apiKeyOutput struct {
	UserID    string   `json:"user_id"`
	Email     string   `json:"email"`
	KeyID     string   `json:"key_id"`
	Key       string   `json:"key"`
	KeyPrefix string   `json:"key_prefix"`
	Scopes    []string `json:"scopes"`
	Tier      string   `json:"rate_limit_tier"`
}

func newAPIKeyCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage service-account API keys",
	}
	cmd.AddCommand(newAPIKeyCreateCmd(c))
	return cmd
}

func newAPIKeyCreateCmd(c *cli) *cobra.Command {
	var (
		userID string
		email  string
		name   string
		scopes string
		tier   string
		env    string
		format string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user if needed and mint an API key for it",
		Long: `Create ensures the user exists (with the default monthly request limit)
and mints a new API key. The plaintext key is printed once and cannot be
recovered later.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsedScopes, err := parseScopes(scopes)
			if err != nil {
				return err
			}
			if format != "plain" && format != "json" {
				return fmt.Errorf("invalid format %q; use plain or json", format)
			}

			ctx := cmd.Context()
			repo, err := repository.New(ctx, c.cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect database: %s", app.SanitizeError(err, c.cfg.DatabaseURL))
			}
			defer repo.Close()

			user, err := repo.EnsureUser(ctx, &model.User{
				ID:                  userID,
				Email:               email,
				MonthlyRequestLimit: c.cfg.DefaultMonthlyRequestLimit,
			})
			if err != nil {
				return fmt.Errorf("ensure user: %w", err)
			}
			if !strings.EqualFold(user.Email, email) {
				return fmt.Errorf("user %s exists with a different email: %s", userID, user.Email)
			}

			created, err := service.NewAPIKeyService(repo, c.logger).CreateAPIKey(ctx, service.CreateAPIKeyInput{
				UserID: user.ID,
				Name:   name,
				Scopes: parsedScopes,
				Tier:   tier,
				Env:    env,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if format == "plain" {
				_, err := fmt.Fprintln(out, created.Key)
				return err
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(apiKeyOutput{
				UserID:    user.ID,
				Email:     user.Email,
				KeyID:     created.ID,
				Key:       created.Key,
				KeyPrefix: created.KeyPrefix,
				Scopes:    created.Scopes,
				Tier:      created.RateLimitTier,
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&userID, "user-id", "system", "user that owns the key")
	flags.StringVar(&email, "email", "system@requestping.local", "user email, used when the user is created")
	flags.StringVar(&name, "name", "bootstrap", "key name")
	flags.StringVar(&scopes, "scopes", model.ScopeAdmin, "comma-separated scopes (read,write,admin)")
	flags.StringVar(&tier, "tier", model.TierUnlimited, "rate limit tier (free,pro,unlimited)")
	flags.StringVar(&env, "env", auth.EnvLive, "key environment (live,test)")
	flags.StringVar(&format, "format", "plain", "output format: plain or json")
	return cmd
}

// parseScopes splits a comma-separated scope list. Empty input means admin.
func parseScopes(input string) ([]string, error) {
	var scopes []string
	for _, part := range strings.Split(input, ",") {
		scope := strings.TrimSpace(part)
		if scope == "" {
			continue
		}
		if !isValidScope(scope) {
			return nil, fmt.Errorf("invalid scope: %s", scope)
		}
		scopes = append(scopes, scope)
	}
	if len(scopes) == 0 {
		scopes = []string{model.ScopeAdmin}
	}
	return scopes, nil
}

func isValidScope(scope string) bool {
	for _, allowed := range model.ValidScopes {
		if scope == allowed {
			return true
		}
	}
	return false
}
