package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"snscraper/pkg/automation"
	"snscraper/pkg/config"
	"snscraper/pkg/credentials"
	"snscraper/pkg/events"
	"snscraper/pkg/login"
	"snscraper/pkg/logger"
	"snscraper/pkg/session"
)

// loginCmd represents the login command
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in by scanning a QR code",
	Long: `Start a QR-code login session against the automation bridge.

The command requests a fresh QR code, prints its URL, and then polls the
bridge until the code is scanned and confirmed on a phone. Confirmed
session cookies are stored securely (system keychain when available,
encrypted file otherwise) under the logged-in account's identity.

Starting a new login while one is pending cancels the pending one; only
a single login session is ever active.`,
	Example: `  # Start a QR login and wait for confirmation
  snscraper login

  # List stored accounts
  snscraper login --list

  # Remove a stored account
  snscraper login --remove myaccount`,
	RunE: runLogin,
}

var (
	listAccounts  bool
	removeAccount string
)

func init() {
	rootCmd.AddCommand(loginCmd)

	loginCmd.Flags().BoolVar(&listAccounts, "list", false, "list stored accounts and exit")
	loginCmd.Flags().StringVar(&removeAccount, "remove", "", "remove a stored account and exit")
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}

	logger.Initialize(&cfg.Logging)
	log := logger.GetLogger()

	promptPassphraseIfNeeded()

	credManager, err := newCredentialManager(cfg)
	if err != nil {
		return err
	}

	if listAccounts {
		return runLoginList(credManager)
	}
	if removeAccount != "" {
		if err := credManager.Delete(removeAccount); err != nil {
			return fmt.Errorf("failed to remove account %q: %w", removeAccount, err)
		}
		fmt.Printf("Removed account %s\n", removeAccount)
		return nil
	}

	client := automation.NewClient(cfg.Platform.AutomationURL, cfg.Crawl.FetchTimeout, log)
	client.SetHeader("User-Agent", cfg.Platform.UserAgent)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	info, err := client.CreateLoginSession(ctx)
	if err != nil {
		return fmt.Errorf("failed to create login session: %w", err)
	}

	fmt.Println("Scan this QR code with the platform app:")
	fmt.Printf("\n  %s\n\n", info.QRCodeURL)

	sess := session.New(info.SessionID, cfg.Login.SessionTTL)

	pollCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	manager := session.NewManager(log)
	manager.SetCurrent(sess.SessionID, cancel)
	defer manager.Clear(sess.SessionID)

	sink := events.MultiSink{events.NewLogSink(log)}
	poller := login.NewPoller(client, client, credManager, sink,
		cfg.Login.PollInterval, cfg.Login.MaxPolls, log)

	outcome, err := poller.Poll(pollCtx, sess)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	switch outcome {
	case events.OutcomeSuccess:
		fmt.Println("Login confirmed, credentials stored.")
	case events.OutcomeTimeout:
		fmt.Println("QR code was not scanned in time. Run 'snscraper login' to try again.")
	case events.OutcomeExpired:
		fmt.Println("QR code expired. Run 'snscraper login' to try again.")
	case events.OutcomeRejected:
		fmt.Println("Login was rejected on the phone.")
	default:
		fmt.Printf("Login ended: %s\n", outcome)
	}

	return nil
}

func runLoginList(credManager *credentials.Manager) error {
	accounts, err := credManager.List()
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}
	if len(accounts) == 0 {
		fmt.Println("No stored accounts. Run 'snscraper login' to add one.")
		return nil
	}
	fmt.Println("Stored accounts:")
	for _, acct := range accounts {
		name := acct.DisplayName
		if name == "" {
			name = acct.Identity
		}
		fmt.Printf("  %s (%s)\n", acct.Identity, name)
	}
	return nil
}

// promptPassphraseIfNeeded asks for the encrypted-store passphrase when the
// keychain is unavailable and no passphrase is set. Skipped for non-terminal
// stdin so scripted runs fall back to the generated passphrase file.
func promptPassphraseIfNeeded() {
	if os.Getenv("SNSCRAPER_PASSPHRASE") != "" {
		return
	}
	if !term.IsTerminal(int(syscall.Stdin)) {
		return
	}

	fmt.Print("Passphrase for encrypted credential store (empty to auto-generate): ")
	passphrase, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil || len(passphrase) == 0 {
		return
	}
	os.Setenv("SNSCRAPER_PASSPHRASE", string(passphrase))
}

// newCredentialManager builds the credential store chain: keyring, then
// encrypted file, then Redis when the redis backend is configured
func newCredentialManager(cfg *config.Config) (*credentials.Manager, error) {
	credManager, err := credentials.NewManager()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	if cfg.Storage.Backend == "redis" {
		credManager.AddStore(credentials.NewRedisStore(
			cfg.Storage.Redis.Addr,
			cfg.Storage.Redis.Password,
			cfg.Storage.Redis.DB,
			cfg.Storage.Namespace,
			cfg.Storage.Redis.TTL,
		))
	}

	return credManager, nil
}

// loadConfig loads configuration with global flags applied
func loadConfig(flags map[string]interface{}) (*config.Config, error) {
	if flags == nil {
		flags = make(map[string]interface{})
	}
	if logLevel != "info" {
		flags["log-level"] = logLevel
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}
