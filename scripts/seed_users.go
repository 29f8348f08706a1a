package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"companion/internal/api"
	"companion/internal/database"
	"companion/internal/domain"
	"companion/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type seedUser struct {
	ID          int64    `yaml:"id"`
	DisplayName string   `yaml:"display_name"`
	Email       string   `yaml:"email"`
	City        string   `yaml:"city"`
	Interests   []string `yaml:"interests"`
	HourlyRate  string   `yaml:"hourly_rate"`
	IsCompanion bool     `yaml:"is_companion"`
	Admin       bool     `yaml:"admin"`
}

type usersFile struct {
	Users []seedUser `yaml:"users"`
}

// Заливает пользователей из YAML и печатает dev-токены для них.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		usersPath = flag.String("users", "configs/users.yaml", "path to users.yaml")
		dbPath    = flag.String("db", "./data/companion.db", "path to sqlite db")
		secret    = flag.String("secret", os.Getenv("JWT_SECRET"), "JWT secret; tokens are not printed when empty")
		issuer    = flag.String("issuer", "companion", "JWT issuer")
		ttl       = flag.Duration("ttl", 24*time.Hour, "token lifetime")
	)
	flag.Parse()

	data, err := os.ReadFile(*usersPath)
	if err != nil {
		return fmt.Errorf("read users: %w", err)
	}
	var cfg usersFile
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse users: %w", err)
	}
	if len(cfg.Users) == 0 {
		return fmt.Errorf("no users in yaml")
	}

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var auth *api.TokenAuth
	if *secret != "" {
		auth = api.NewTokenAuth(*secret, *issuer)
	}

	created := 0
	updated := 0
	for _, su := range cfg.Users {
		if su.DisplayName == "" {
			continue
		}
		rate := decimal.Zero
		if su.HourlyRate != "" {
			if rate, err = decimal.NewFromString(su.HourlyRate); err != nil {
				return fmt.Errorf("%s: hourly_rate: %w", su.DisplayName, err)
			}
		}

		if su.ID > 0 {
			_, err = db.GetUserByID(ctx, su.ID)
			switch {
			case err == nil:
				updated++
			case errors.Is(err, domain.ErrUserNotFound):
				created++
			default:
				return fmt.Errorf("get %s: %w", su.DisplayName, err)
			}
		} else {
			created++
		}

		user := &models.User{
			ID:          su.ID,
			DisplayName: su.DisplayName,
			Email:       su.Email,
			City:        su.City,
			Interests:   su.Interests,
			HourlyRate:  rate,
			IsCompanion: su.IsCompanion,
		}
		if err = db.CreateOrUpdateUser(ctx, user); err != nil {
			return fmt.Errorf("save %s: %w", su.DisplayName, err)
		}
		if su.Admin {
			if err = db.GrantRole(ctx, user.ID, models.RoleAdmin, 0); err != nil {
				return fmt.Errorf("grant admin to %s: %w", su.DisplayName, err)
			}
		}

		if auth != nil {
			token, err := auth.Issue(user.ID, *ttl)
			if err != nil {
				return fmt.Errorf("issue token for %s: %w", su.DisplayName, err)
			}
			fmt.Printf("%d\t%s\t%s\n", user.ID, su.DisplayName, token)
		}
	}

	fmt.Printf("done: created=%d updated=%d\n", created, updated)
	return nil
}
