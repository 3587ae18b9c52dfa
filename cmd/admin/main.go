package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"taskhive/internal/config"
	"taskhive/internal/database"
	"taskhive/internal/models"
	"taskhive/internal/repository"
	"taskhive/internal/service"
)

func main() {
	// Define subcommands
	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)
	retryCmd := flag.NewFlagSet("retry-failed", flag.ExitOnError)
	promoteCmd := flag.NewFlagSet("promote", flag.ExitOnError)

	// Export flags
	exportOutput := exportCmd.String("output", "", "Output file path (default: backup_YYYYMMDD_HHMMSS.json)")

	// Promote flags
	promoteUsername := promoteCmd.String("username", "", "Username to grant the admin role")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Run migrations to ensure schema is up to date
	if err := db.RunMigrations(cfg.MigrationsPath); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	userRepo := repository.NewUserRepository(db)
	taskRepo := repository.NewTaskRepository(db)

	switch os.Args[1] {
	case "export":
		exportCmd.Parse(os.Args[2:])
		handleExport(service.NewBackupService(userRepo, taskRepo), *exportOutput)

	case "retry-failed":
		retryCmd.Parse(os.Args[2:])
		handleRetryFailed(taskRepo)

	case "promote":
		promoteCmd.Parse(os.Args[2:])
		handlePromote(userRepo, *promoteUsername)

	default:
		printUsage()
		os.Exit(1)
	}
}

// handleRetryFailed promotes every failed reminder back to pending so
// the scheduler picks it up on its next tick.
func handleRetryFailed(taskRepo *repository.TaskRepository) {
	n, err := taskRepo.RetryFailedReminders()
	if err != nil {
		log.Fatalf("Retry failed: %v", err)
	}
	log.Printf("Re-queued %d failed reminder(s)", n)
}

// handlePromote grants the admin role to an existing account. The new
// role lands in tokens on the user's next login or refresh.
func handlePromote(userRepo *repository.UserRepository, username string) {
	if username == "" {
		log.Fatal("promote requires -username")
	}

	user, err := userRepo.GetUserByUsername(username)
	if err != nil {
		log.Fatalf("Failed to look up user: %v", err)
	}
	if user == nil {
		log.Fatalf("No such user: %s", username)
	}
	if user.HasRole(models.RoleAdmin) {
		log.Printf("User %s is already an admin", username)
		return
	}

	user.Roles = append(user.Roles, models.RoleAdmin)
	if err := userRepo.UpdateUser(user); err != nil {
		log.Fatalf("Failed to update user: %v", err)
	}
	log.Printf("Granted admin to %s", username)
}

func handleExport(backupService *service.BackupService, outputPath string) {
	if outputPath == "" {
		timestamp := time.Now().Format("20060102_150405")
		outputPath = fmt.Sprintf("backup_%s.json", timestamp)
	}

	dir := filepath.Dir(outputPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create output directory: %v", err)
		}
	}

	log.Printf("Exporting database to: %s", outputPath)
	if err := backupService.Export(outputPath); err != nil {
		log.Fatalf("Export failed: %v", err)
	}

	fileInfo, _ := os.Stat(outputPath)
	log.Printf("Export complete! File size: %.2f KB", float64(fileInfo.Size())/1024)
}

func printUsage() {
	fmt.Println("Usage: admin <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  retry-failed   Re-queue all failed reminders")
	fmt.Println("  export         Export users and tasks to a JSON file")
	fmt.Println("  promote        Grant the admin role to a user")
	fmt.Println()
	fmt.Println("Flags for export:")
	fmt.Println("  -output string   Output file path")
	fmt.Println()
	fmt.Println("Flags for promote:")
	fmt.Println("  -username string   Username to grant the admin role")
}
