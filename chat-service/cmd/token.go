package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/config"
	"github.com/Karthikchakala/HospitalManagement/pkg/jwt"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token signed with the configured secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("config")
			userID, _ := cmd.Flags().GetString("user")
			role, _ := cmd.Flags().GetString("role")

			cfg, err := config.LoadFrom(dir)
			if err != nil {
				return err
			}
			tokens, err := jwt.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.Issuer)
			if err != nil {
				return err
			}

			token, exp, err := tokens.GenerateToken(userID, role)
			if err != nil {
				return err
			}
			fmt.Println(token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", exp.Format("2006-01-02 15:04:05 MST"))
			return nil
		},
	}
	cmd.Flags().String("user", "", "User id (the User table primary key)")
	cmd.Flags().String("role", jwt.RolePatient, "Role: patient or doctor")
	cmd.MarkFlagRequired("user")
	return cmd
}
