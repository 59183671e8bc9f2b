package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/config"
	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/repository"
	"github.com/Karthikchakala/HospitalManagement/pkg/database"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the chat_messages table",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("config")
			withDirectory, _ := cmd.Flags().GetBool("directory")

			cfg, err := config.LoadFrom(dir)
			if err != nil {
				return err
			}

			db, err := database.New(cfg.Database.ToDatabaseConfig())
			if err != nil {
				return err
			}
			defer database.Close(db)

			models := repository.ChatModels()
			if withDirectory {
				models = append(models, repository.DirectoryModels()...)
			}
			if err := database.AutoMigrate(db, models...); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Migrated %d table(s) on %s.\n", len(models), cfg.Database.Driver)
			return nil
		},
	}
	cmd.Flags().Bool("directory", false, "Also create the User/Patient/Doctor/Appointments tables (local development)")
	return cmd
}
