package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/jeremyhahn/go-oauthsession/pkg/api"
	"github.com/jeremyhahn/go-oauthsession/pkg/session"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func loggingCallbacks() session.Callbacks {
	return session.Callbacks{
		OnRestored: func(agent session.Agent) {
			logrus.WithField("sub", agent.Sub()).Info("Session restored")
		},
		OnSignedIn: func(agent session.Agent, state string) {
			logrus.WithFields(logrus.Fields{
				"sub":   agent.Sub(),
				"state": state,
			}).Info("Signed in")
		},
		OnSignedOut: func() {
			logrus.Info("Signed out")
		},
	}
}

// signalContext is cancelled on interrupt or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

var loginCmd = &cobra.Command{
	Use:   "login [identifier]",
	Short: "Sign in and store the session",
	Long: `Opens the provider's authorization page and waits for the redirect.
The optional identifier is sent to the provider as a login hint.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	rs, err := openSession(cfg, nil, loggingCallbacks())
	if err != nil {
		return err
	}
	defer rs.Close()

	status, err := rs.ready(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize session: %w", err)
	}

	force, _ := cmd.Flags().GetBool("force")
	if status.IsLoggedIn && !force {
		fmt.Printf("Already signed in as %s\n", status.Subject)
		return nil
	}

	req := api.LoginRequest{}
	if len(args) > 0 {
		req.Identifier = args[0]
	}
	req.Prompt, _ = cmd.Flags().GetString("prompt")
	req.Scope, _ = cmd.Flags().GetString("scope")
	req.State, _ = cmd.Flags().GetString("state")

	fmt.Println("Waiting for authorization...")

	if err := rs.service.Login(ctx, req); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	fmt.Printf("Signed in as %s\n", rs.service.Status().Subject)
	return nil
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and revoke the stored session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		rs, err := openSession(cfg, nil, loggingCallbacks())
		if err != nil {
			return err
		}
		defer rs.Close()

		status, err := rs.ready(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize session: %w", err)
		}
		if !status.IsLoggedIn {
			fmt.Println("Not signed in")
			return nil
		}

		rs.service.Logout(ctx)
		fmt.Printf("Signed out %s\n", status.Subject)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		rs, err := openSession(cfg, nil, session.Callbacks{})
		if err != nil {
			return err
		}
		defer rs.Close()

		status, err := rs.ready(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize session: %w", err)
		}

		printStatus(status)
		return nil
	},
}

func printStatus(status api.Status) {
	if !status.IsLoggedIn {
		fmt.Println("Status:  signed out")
		return
	}
	fmt.Println("Status:  signed in")
	fmt.Printf("Subject: %s\n", status.Subject)
}

var callbackCmd = &cobra.Command{
	Use:   "callback <redirect-url>",
	Short: "Complete a sign-in from an authorization redirect",
	Long: `Processes the redirect the provider sent the browser to. When another
oauthsession process is waiting for this redirect it is handed over to that
process through the shared store; otherwise the sign-in completes here.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		redirect, err := url.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid redirect URL: %w", err)
		}
		params := redirect.Query()
		if len(params) == 0 {
			return fmt.Errorf("redirect URL has no query parameters")
		}

		ctx, cancel := signalContext()
		defer cancel()

		rs, err := openSession(cfg, params, loggingCallbacks())
		if err != nil {
			return err
		}
		defer rs.Close()

		status, err := rs.ready(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize session: %w", err)
		}

		// A redirect handed to a waiting process leaves this one signed out.
		if status.IsLoggedIn {
			fmt.Printf("Signed in as %s\n", status.Subject)
			return nil
		}
		fmt.Println("Redirect processed; no session was established here")
		return nil
	},
}

func init() {
	loginCmd.Flags().Bool("force", false, "Sign in again even when a session exists")
	loginCmd.Flags().String("prompt", "", "Prompt parameter: none, login, consent, select_account or create")
	loginCmd.Flags().String("scope", "", "Space separated scopes overriding the configured scopes")
	loginCmd.Flags().String("state", "", "Application state returned with the session")
}
