package notify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/mikeyg42/sentinel/internal/config"
	"github.com/mikeyg42/sentinel/internal/crypto"
	"github.com/mikeyg42/sentinel/internal/watcher"
	"github.com/mikeyg42/sentinel/internal/watchlog"
)

const (
	oauthTimeout  = 5 * time.Minute
	sendTimeout   = 30 * time.Second
	callbackPath  = "/oauth2/callback"
	callbackAddr  = "127.0.0.1:8787"
	tokenFilePerm = 0o600
)

// GmailNotifier sends alerts through the Gmail API with a send-only OAuth2
// scope. The token is sealed at rest with the key from the configuration.
type GmailNotifier struct {
	cfg        config.GmailConfig
	svc        *gmail.Service
	systemName string
	log        watchlog.Logger
}

// NewGmailNotifier loads the stored token, refreshing credentials via the
// oauth2 client transport. When no usable token exists it fails; run the
// interactive Authorize flow first.
func NewGmailNotifier(ctx context.Context, cfg config.GmailConfig, systemName string) (*GmailNotifier, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("gmail: client_id and client_secret are required")
	}
	if len(cfg.To) == 0 {
		return nil, fmt.Errorf("gmail: at least one recipient is required")
	}

	token, err := loadToken(cfg.TokenFile, cfg.TokenKey)
	if err != nil {
		return nil, fmt.Errorf("gmail: no stored token (%w); run with -setup-email first", err)
	}

	svc, err := newGmailService(ctx, oauthConfig(cfg), token)
	if err != nil {
		return nil, err
	}

	return &GmailNotifier{
		cfg:        cfg,
		svc:        svc,
		systemName: systemName,
		log:        watchlog.L().Named("gmail"),
	}, nil
}

// Notify renders and sends one alert email.
func (n *GmailNotifier) Notify(ctx context.Context, info watcher.SessionInfo) error {
	msg := AlertMessage(info, n.systemName, n.from(), n.cfg.To)
	raw, err := BuildMIME(msg, time.Now())
	if err != nil {
		return err
	}

	return SendWithRetry(ctx, RetryConfig{
		MaxAttempts: 3,
		Delay:       time.Second,
		MaxDelay:    5 * time.Second,
	}, func(ctx context.Context) error {
		return n.sendRaw(ctx, raw)
	})
}

// SendTest sends a plain test message to verify the configuration.
func (n *GmailNotifier) SendTest(ctx context.Context) error {
	msg := &Message{
		From:     n.from(),
		FromName: n.systemName,
		To:       n.cfg.To,
		Subject:  fmt.Sprintf("[%s] Test alert", n.systemName),
		TextBody: "This is a test alert. Email delivery is configured correctly.\n",
	}
	raw, err := BuildMIME(msg, time.Now())
	if err != nil {
		return err
	}
	return n.sendRaw(ctx, raw)
}

func (n *GmailNotifier) Close() error { return nil }

func (n *GmailNotifier) from() string {
	if n.cfg.From != "" {
		return n.cfg.From
	}
	return "me"
}

func (n *GmailNotifier) sendRaw(ctx context.Context, raw []byte) error {
	encoded := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(raw)
	_, err := n.svc.Users.Messages.Send("me", &gmail.Message{Raw: encoded}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("gmail send: %w", err)
	}
	return nil
}

func oauthConfig(cfg config.GmailConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  fmt.Sprintf("http://%s%s", callbackAddr, callbackPath),
		Scopes:       []string{gmail.GmailSendScope},
	}
}

func newGmailService(ctx context.Context, oc *oauth2.Config, token *oauth2.Token) (*gmail.Service, error) {
	client := oc.Client(ctx, token)
	client.Timeout = sendTimeout
	svc, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("gmail service: %w", err)
	}
	return svc, nil
}

// Authorize runs the interactive browser flow, exchanges the code, and
// stores the sealed token at cfg.TokenFile. It returns the token key used,
// which the caller must persist when cfg.TokenKey was empty.
func Authorize(ctx context.Context, cfg config.GmailConfig) (string, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return "", fmt.Errorf("gmail: client_id and client_secret are required")
	}

	key := cfg.TokenKey
	if key == "" {
		generated, err := crypto.GenerateKey()
		if err != nil {
			return "", fmt.Errorf("gmail: generate token key: %w", err)
		}
		key = generated
	}

	token, err := runInteractiveOAuth(ctx, oauthConfig(cfg))
	if err != nil {
		return "", err
	}
	if err := saveToken(cfg.TokenFile, token, key); err != nil {
		return "", err
	}
	return key, nil
}

func loadToken(path, key string) (*oauth2.Token, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	plaintext, err := crypto.Open(blob, key)
	if err != nil {
		return nil, fmt.Errorf("unseal token: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(plaintext, &token); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if token.AccessToken == "" && token.RefreshToken == "" {
		return nil, fmt.Errorf("token has no credentials")
	}
	return &token, nil
}

func saveToken(path string, token *oauth2.Token, key string) error {
	plaintext, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	blob, err := crypto.Seal(plaintext, key)
	if err != nil {
		return fmt.Errorf("seal token: %w", err)
	}
	if err := os.WriteFile(path, blob, tokenFilePerm); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}

func runInteractiveOAuth(ctx context.Context, oc *oauth2.Config) (*oauth2.Token, error) {
	parsed, err := url.Parse(oc.RedirectURL)
	if err != nil {
		return nil, fmt.Errorf("redirect url: %w", err)
	}

	listener, err := net.Listen("tcp", parsed.Host)
	if err != nil {
		// Port taken; fall back to an ephemeral one and rewrite the URL.
		listener, err = net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return nil, fmt.Errorf("oauth callback listener: %w", err)
		}
		parsed.Host = listener.Addr().String()
		oc.RedirectURL = parsed.String()
	}
	defer listener.Close()

	state, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("oauth state: %w", err)
	}

	authURL := oc.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Printf("\nVisit this URL to authorize email alerts:\n\n%s\n\nWaiting for authorization...\n", authURL)

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	srv := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != callbackPath {
				http.NotFound(w, r)
				return
			}
			if r.FormValue("state") != state {
				http.Error(w, "invalid state", http.StatusBadRequest)
				errCh <- fmt.Errorf("oauth state mismatch")
				return
			}
			if msg := r.FormValue("error"); msg != "" {
				http.Error(w, "authorization failed: "+msg, http.StatusBadRequest)
				errCh <- fmt.Errorf("oauth provider error: %s", msg)
				return
			}
			code := r.FormValue("code")
			if code == "" {
				http.Error(w, "missing code", http.StatusBadRequest)
				errCh <- fmt.Errorf("missing oauth authorization code")
				return
			}
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, "<html><body><h1>Authorized</h1><p>You can close this window.</p></body></html>")
			codeCh <- code
		}),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(listener); err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	timeoutCtx, cancel := context.WithTimeout(ctx, oauthTimeout)
	defer cancel()

	var code string
	select {
	case <-timeoutCtx.Done():
		srv.Close()
		return nil, fmt.Errorf("oauth authorization timed out")
	case err := <-errCh:
		srv.Close()
		return nil, err
	case code = <-codeCh:
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
		srv.Shutdown(shutdownCtx)
		shutdownCancel()
	}

	token, err := oc.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("oauth exchange: %w", err)
	}
	return token, nil
}
