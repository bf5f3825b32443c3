package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"report-desk/internal/session"
)

var (
	loginPassword    string
	registerName     string
	registerPassword string
)

// registerCmd creates an account and signs in
var registerCmd = &cobra.Command{
	Use:   "register [email]",
	Short: "Create an account and sign in",
	Args:  cobra.ExactArgs(1),
	RunE:  runRegister,
}

// loginCmd signs in with email and password
var loginCmd = &cobra.Command{
	Use:   "login [email]",
	Short: "Sign in to the report server",
	Long: `Sign in and store the session locally. Any previous session is replaced.

The password is read from --password or, when omitted, from standard input.`,
	Args: cobra.ExactArgs(1),
	RunE: runLogin,
}

// logoutCmd clears the stored session
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		services.Sessions.Logout()
		printSuccess(cmd.OutOrStdout(), "Signed out")
		return nil
	},
}

// whoamiCmd shows the signed-in account
var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in account",
	Args:  cobra.NoArgs,
	RunE:  runWhoami,
}

func init() {
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Account password")
	registerCmd.Flags().StringVarP(&registerName, "name", "n", "", "Display name (required)")
	registerCmd.Flags().StringVarP(&registerPassword, "password", "p", "", "Account password")
}

func runRegister(cmd *cobra.Command, args []string) error {
	password, err := passwordFrom(cmd, registerPassword)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(cmd)
	defer cancel()

	sess, err := services.Sessions.Register(ctx, session.RegisterInput{
		Name:     registerName,
		Email:    args[0],
		Password: password,
	})
	if err != nil {
		return err
	}
	printSuccess(cmd.OutOrStdout(), "Registered and signed in as %s <%s>", sess.Identity.DisplayName, sess.Identity.Email)
	return nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	password, err := passwordFrom(cmd, loginPassword)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(cmd)
	defer cancel()

	sess, err := services.Sessions.Login(ctx, args[0], password)
	if err != nil {
		return err
	}
	printSuccess(cmd.OutOrStdout(), "Signed in as %s <%s>", sess.Identity.DisplayName, sess.Identity.Email)
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	sess, ok := services.Sessions.CurrentSession()
	if !ok {
		printWarning(out, "Not signed in")
		return nil
	}

	fmt.Fprintf(out, "%s <%s> (id %d)\n", sess.Identity.DisplayName, sess.Identity.Email, sess.Identity.ID)
	if sess.ExpiresAt != nil {
		fmt.Fprintf(out, "session expires %s\n", sess.ExpiresAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

// passwordFrom prefers the flag value and falls back to the first stdin line.
func passwordFrom(cmd *cobra.Command, flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}

	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
