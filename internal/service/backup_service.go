package service

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"taskhive/internal/models"
	"taskhive/internal/repository"
)

// BackupData is the JSON export structure
type BackupData struct {
	Version    string        `json:"version"`
	ExportedAt time.Time     `json:"exported_at"`
	Users      []models.User `json:"users"`
	Tasks      []models.Task `json:"tasks"`
}

// BackupService exports users and tasks for offline backups
type BackupService struct {
	userRepo *repository.UserRepository
	taskRepo *repository.TaskRepository
}

// NewBackupService creates a new backup service
func NewBackupService(userRepo *repository.UserRepository, taskRepo *repository.TaskRepository) *BackupService {
	return &BackupService{
		userRepo: userRepo,
		taskRepo: taskRepo,
	}
}

// Export writes all users and tasks to a JSON file
func (s *BackupService) Export(outputPath string) error {
	users, err := s.userRepo.ListUsers()
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}
	tasks, err := s.taskRepo.ListAllTasks()
	if err != nil {
		return fmt.Errorf("failed to list tasks: %w", err)
	}

	data := BackupData{
		Version:    "1.0",
		ExportedAt: time.Now().UTC(),
		Users:      users,
		Tasks:      tasks,
	}

	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}
	return nil
}
