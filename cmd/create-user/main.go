package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

const minPasswordLength = 6

func main() {
	var (
		roleFlag  string
		emailFlag string
		nameFlag  string
	)
	flag.StringVar(&roleFlag, "role", string(model.RoleStudent), "Account role: STUDENT or ADMIN")
	flag.StringVar(&emailFlag, "email", "", "Account email (prompted when empty)")
	flag.StringVar(&nameFlag, "name", "", "Display name (prompted when empty)")
	flag.Parse()

	role := model.Role(strings.ToUpper(strings.TrimSpace(roleFlag)))
	if role != model.RoleStudent && role != model.RoleAdmin {
		fmt.Fprintf(os.Stderr, "Error: unknown role %q\n", roleFlag)
		os.Exit(2)
	}

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	users := repository.NewUserRepository(pool)

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Printf("=== Create %s Account ===\n", role)

	email := prompt(reader, "Enter Email: ", emailFlag)
	if email == "" {
		fmt.Println("Error: Email is required")
		return
	}

	existing, err := users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		log.Fatal().Err(err).Msg("Failed to look up user")
	}

	name := ""
	if existing == nil {
		name = prompt(reader, "Enter Name: ", nameFlag)
		if name == "" {
			fmt.Println("Error: Name is required")
			return
		}
	} else {
		fmt.Printf("User %s already exists (ID %d, %s); setting a new password.\n", existing.Email, existing.ID, existing.Role)
	}

	password, err := readPassword()
	if err != nil {
		fmt.Printf("\nError: %v\n", err)
		return
	}

	// ─── Logic ─────────────────────────────────────────────────────────
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cfg.BcryptCost)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash password")
	}

	if existing != nil {
		if err := users.UpdatePassword(ctx, existing.ID, string(hashed)); err != nil {
			log.Fatal().Err(err).Msg("Failed to update password")
		}
		fmt.Printf("\nSuccess! Password updated for '%s' (%s)\n", existing.Name, existing.Email)
		return
	}

	user := &model.User{
		Email:        email,
		Name:         name,
		Role:         role,
		PasswordHash: string(hashed),
	}
	if err := users.Create(ctx, user); err != nil {
		log.Fatal().Err(err).Msg("Failed to create user")
	}

	fmt.Printf("\nSuccess! %s '%s' (%s) created with ID: %d\n", user.Role, user.Name, user.Email, user.ID)
}

// prompt returns preset when it is set, otherwise reads one trimmed line.
func prompt(reader *bufio.Reader, label, preset string) string {
	if preset = strings.TrimSpace(preset); preset != "" {
		return preset
	}
	fmt.Print(label)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

func readPassword() (string, error) {
	fmt.Print("Enter Password: ")
	first, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", errors.New("could not read password")
	}
	if len(first) < minPasswordLength {
		return "", fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}

	fmt.Print("Confirm Password: ")
	second, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", errors.New("could not read password")
	}
	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	return string(first), nil
}
