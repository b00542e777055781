package cli

import (
	"errors"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Inspect registered users",
}

var usersListCmd = &cobra.Command{
	Use:         "list",
	Short:       "List users with their roles and clearance",
	Args:        cobra.NoArgs,
	Annotations: needs(ScopeFull),
	RunE:        runUsersList,
}

func init() {
	usersCmd.AddCommand(usersListCmd)
	rootCmd.AddCommand(usersCmd)
}

func runUsersList(cmd *cobra.Command, _ []string) error {
	if accessService == nil {
		return errors.New("access service not configured")
	}

	users := accessService.Users()
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })

	cmd.Printf("%-14s %-13s %-8s %s\n", "USER", "CLEARANCE", "ACTIVE", "ROLES")
	for _, u := range users {
		active := "yes"
		if !u.Active {
			active = "no"
		}
		cmd.Printf("%-14s %-13s %-8s %s\n", u.ID, u.Clearance, active, strings.Join(u.Roles, ","))
	}
	return nil
}
