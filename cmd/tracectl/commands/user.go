package commands

import (
	"encoding/json"
	"errors"
	"os"

	"fruittrace/cmd/tracectl/output"
	"fruittrace/internal/database"
	"fruittrace/internal/service"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newUserCmd(g *globalFlags) *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage back-office accounts",
	}

	var req service.CreateUserRequest
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an admin or staff account",
		Long: `Create an account. The password is read from --password or TRACECTL_PASSWORD.

Examples:
  tracectl user create --username lan --email lan@example.com --role admin
  TRACECTL_PASSWORD=... tracectl user create --username minh --email minh@example.com --role staff`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.Password == "" {
				req.Password = os.Getenv("TRACECTL_PASSWORD")
			}
			if req.Password == "" {
				return errors.New("password is required (--password or TRACECTL_PASSWORD)")
			}

			db, cfg, err := g.open()
			if err != nil {
				return err
			}
			defer database.Close(db)

			user, err := newServices(db, cfg).users.CreateUser(cmd.Context(), uuid.Nil, req)
			if err != nil {
				return err
			}
			if g.jsonOutput {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(user)
			}
			output.Success(cmd.OutOrStdout(), "Created %s %s (%s)", user.Role, user.Username, user.ID)
			return nil
		},
	}
	createCmd.Flags().StringVar(&req.Username, "username", "", "Login name")
	createCmd.Flags().StringVar(&req.Email, "email", "", "E-mail address")
	createCmd.Flags().StringVar(&req.Role, "role", "staff", "admin or staff")
	createCmd.Flags().StringVar(&req.Password, "password", "", "Password")
	_ = createCmd.MarkFlagRequired("username")
	_ = createCmd.MarkFlagRequired("email")

	userCmd.AddCommand(createCmd)
	return userCmd
}
