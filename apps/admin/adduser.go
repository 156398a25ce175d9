package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/spf13/cobra"

	"github.com/stenolearn/backend/core"
	"github.com/stenolearn/backend/core/user"
)

func (cli *commandLine) addUserCmd() *cobra.Command {
	var (
		uname, email, name string
		isAdmin, isTeacher bool
	)
	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create a user, or update the one with this username or email. The password is prompted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if uname == "" && email == "" {
				_ = cmd.Usage()
				return errHelp
			}
			pwd, err := cli.promptPassword()
			if err != nil {
				if err == errHelp {
					_ = cmd.Usage()
				}
				return err
			}
			roles := user.StudentRoles
			switch {
			case isAdmin:
				roles = user.AllRoles
			case isTeacher:
				roles = user.TeacherRoles
			}
			_, err = cli.addUser(name, uname, email, pwd, roles)
			return err
		},
	}
	cmd.Flags().StringVar(&uname, "username", "", "the user's username")
	cmd.Flags().StringVar(&email, "email", "", "the user's email")
	cmd.Flags().StringVar(&name, "name", "", "the user's name (defaults to the username or email)")
	cmd.Flags().BoolVar(&isAdmin, "admin", false, "give all the roles to the user")
	cmd.Flags().BoolVar(&isTeacher, "teacher", false, "make the user a teacher")
	return cmd
}

// addUser updates or creates an active user.User
func (cli *commandLine) addUser(name, uname, email, pwd string, roles []string) (user.User, error) {
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)
	if err := vala.BeginValidation().Validate(
		vala.StringNotEmpty(pwd, "password"),
		vala.GreaterThan(len(roles), 0, "roles"),
	).Check(); err != nil {
		return user.User{}, err
	}

	ctx := context.Background()
	now := time.Now().UTC()
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: core.CleanStrings([]string{uname, email})})
	if err != nil {
		if err != user.ErrNotFound {
			return user.User{}, err
		}
		usr = user.User{ID: uuid.NewString(), Username: uname, Email: email, CreatedAt: now}
	}
	if name = core.CleanString(name); name != "" {
		usr.Name = name
	}
	if usr.Name == "" {
		usr.Name = uname
		if usr.Name == "" {
			usr.Name = email
		}
	}
	usr.Roles = roles
	usr.IsActive = true
	usr.UpdatedAt = now
	if err = usr.SetPassword(pwd); err != nil {
		return user.User{}, err
	}
	return cli.usrRepo.UpdateOrCreateUser(ctx, usr)
}
