// Command main manages Tech Tribune editor (admin) accounts.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"tribune/internal/config"
	"tribune/internal/database"
	"tribune/internal/models"
	"tribune/internal/repository"
	"tribune/internal/service"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	users := service.NewUserService(repository.NewUserRepository(db))
	ctx := context.Background()

	switch os.Args[1] {
	case "promote":
		if len(os.Args) < 3 {
			fmt.Println("Error: email required")
			printUsage()
			os.Exit(1)
		}
		setAdmin(ctx, users, os.Args[2], true)
	case "demote":
		if len(os.Args) < 3 {
			fmt.Println("Error: email required")
			printUsage()
			os.Exit(1)
		}
		setAdmin(ctx, users, os.Args[2], false)
	case "list":
		listAdmins(ctx, users)
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Admin Management Tool")
	fmt.Println("\nUsage:")
	fmt.Println("  go run ./cmd/admin promote <email>  - Make an account an editor")
	fmt.Println("  go run ./cmd/admin demote <email>   - Remove editor rights")
	fmt.Println("  go run ./cmd/admin list             - List all editors")
}

func setAdmin(ctx context.Context, users *service.UserService, email string, isAdmin bool) {
	user, err := users.SetAdmin(ctx, email, isAdmin)
	if err != nil {
		var appErr *models.AppError
		if errors.As(err, &appErr) && appErr.Code == models.CodeNotFound {
			fmt.Printf("No account with email %s\n", email)
			os.Exit(1)
		}
		log.Fatalf("Failed to update account: %v", err)
	}

	verb := "promoted"
	if !isAdmin {
		verb = "demoted"
	}
	fmt.Printf("Successfully %s %s (ID: %d)\n", verb, user.Username, user.ID)
}

func listAdmins(ctx context.Context, users *service.UserService) {
	const pageSize = 200
	var admins []models.User
	for offset := 0; ; offset += pageSize {
		batch, err := users.ListUsers(ctx, pageSize, offset)
		if err != nil {
			log.Fatalf("Failed to fetch users: %v", err)
		}
		for _, u := range batch {
			if u.IsAdmin {
				admins = append(admins, u)
			}
		}
		if len(batch) < pageSize {
			break
		}
	}

	if len(admins) == 0 {
		fmt.Println("No editors found")
		return
	}

	fmt.Println("\nCurrent editors:")
	for _, admin := range admins {
		fmt.Printf("ID: %d | Username: %s | Email: %s\n", admin.ID, admin.Username, admin.Email)
	}
}
