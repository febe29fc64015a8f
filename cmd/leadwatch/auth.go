package main

import (
	"context"
	"fmt"

	"github.com/ternarybob/leadwatch/internal/app"
	"github.com/ternarybob/leadwatch/internal/models"
	"github.com/urfave/cli/v3"
)

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Sign in and store both credentials",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Required: true},
			&cli.StringFlag{Name: "password", Required: true, Sources: cli.EnvVars("LEADWATCH_PASSWORD")},
			&cli.StringFlag{Name: "workspace", Usage: "Workspace id sent with every request"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			tokens, err := a.Gateway.Login(ctx, models.LoginRequest{
				Email:    cmd.String("email"),
				Password: cmd.String("password"),
			})
			if err != nil {
				return cli.Exit("login failed: "+models.DisplayMessage(err, "Login failed"), 1)
			}
			if ws := cmd.String("workspace"); ws != "" {
				if err := a.Session.SetWorkspaceID(ctx, ws); err != nil {
					return err
				}
			}
			printSignedIn(ctx, a, tokens.User)
			return nil
		},
	}
}

func registerCommand() *cli.Command {
	return &cli.Command{
		Name:  "register",
		Usage: "Create an account and sign in",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Required: true},
			&cli.StringFlag{Name: "password", Required: true, Sources: cli.EnvVars("LEADWATCH_PASSWORD")},
			&cli.StringFlag{Name: "name", Usage: "Full name"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			tokens, err := a.Gateway.Register(ctx, models.RegisterRequest{
				Email:    cmd.String("email"),
				Password: cmd.String("password"),
				FullName: cmd.String("name"),
			})
			if err != nil {
				return cli.Exit("registration failed: "+models.DisplayMessage(err, "Registration failed"), 1)
			}
			printSignedIn(ctx, a, tokens.User)
			return nil
		},
	}
}

func printSignedIn(ctx context.Context, a *app.App, user *models.User) {
	workspace := a.Session.WorkspaceID(ctx)
	if user != nil {
		fmt.Printf("Signed in as %s (workspace %s)\n", user.Email, workspace)
		return
	}
	fmt.Printf("Signed in (workspace %s)\n", workspace)
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Clear stored credentials",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Gateway.Logout(ctx); err != nil {
				return err
			}
			fmt.Println("Signed out")
			return nil
		},
	}
}

func whoamiCommand() *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "Show the signed-in user",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withSession(ctx, cmd, func(ctx context.Context, a *app.App) error {
				user, err := a.Gateway.Me(ctx)
				if err != nil {
					return cli.Exit(models.DisplayMessage(err, "Could not load profile"), 1)
				}
				name := user.FullName
				if name == "" {
					name = "-"
				}
				fmt.Printf("%s\t%s\tworkspace %s\n", user.Email, name, a.Session.WorkspaceID(ctx))
				return nil
			})
		},
	}
}
