package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vaporform/meshgate/internal/auth"
	"github.com/vaporform/meshgate/models"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage authentication credentials",
	Long:  `Generate password hashes and access tokens for API accounts`,
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash [password]",
	Short: "Hash a password for the users section of the config file",
	Long: `Generate a bcrypt hash of a password.

Put the hash into the security.users section of your config file:

  security:
    users:
      operator:
        password_hash: "<hash>"
        role: write`,
	Args: cobra.ExactArgs(1),
	RunE: runHashPassword,
}

var generateTokenCmd = &cobra.Command{
	Use:   "generate [username]",
	Short: "Generate an access token for a configured account",
	Long: `Generate a JWT access token for an account declared in the config
file, signed with the configured jwt_secret. Useful for scripting against a
server where interactive login is inconvenient.

Examples:
  # Token for the operator account
  meshgate token generate operator`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerateToken,
}

func init() {
	tokenCmd.AddCommand(hashPasswordCmd)
	tokenCmd.AddCommand(generateTokenCmd)
}

func runHashPassword(cmd *cobra.Command, args []string) error {
	hash, err := auth.HashPassword(args[0])
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	fmt.Println(hash)
	return nil
}

func runGenerateToken(cmd *cobra.Command, args []string) error {
	username := args[0]

	if cfg.Security.JWTSecret == "" {
		return fmt.Errorf(`jwt_secret not found in config file

Add to your config.yaml:
  security:
    jwt_secret: your-secret-here`)
	}

	user, ok := cfg.Security.Users[username]
	if !ok {
		return fmt.Errorf("user %q is not declared in security.users", username)
	}

	svc := auth.NewJWTService(cfg)
	token, err := svc.GenerateToken(username, auth.RolesFor(models.Role(user.Role)))
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}

	fmt.Printf("Access Token Generated Successfully\n")
	fmt.Printf("===================================\n\n")
	fmt.Printf("Username:   %s\n", username)
	fmt.Printf("Role:       %s\n", user.Role)
	fmt.Printf("Expiration: %s\n", cfg.Security.JWTExpiration)
	fmt.Printf("\nToken:\n%s\n\n", token)
	fmt.Printf("Keep this token secure! It grants %s access to your Meshgate instance.\n", user.Role)

	return nil
}
