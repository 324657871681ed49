// Package profile defines the simulated chat-application user.
//
// A ChatUser registers (best effort) and logs in once when it starts, keeps
// the returned token for its own lifetime, and then repeatedly performs its
// weighted actions. Only Health is enabled by default.
package profile

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	chathttp "github.com/wesleyorama2/chatload/internal/http"
	"github.com/wesleyorama2/chatload/internal/loadgen"
	"github.com/wesleyorama2/chatload/internal/logging"
)

// Endpoints of the chat API.
const (
	RegisterPath = "/api/register"
	LoginPath    = "/api/login"
	HealthPath   = "/api/health"
	MessagesPath = "/api/messages"
	SocketPath   = "/ws"
)

// DefaultPassword is the password every simulated account uses.
const DefaultPassword = "password"

// Credentials is the account a user registers and logs in with.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CredentialsFor derives the account for the user spawned as number n.
func CredentialsFor(n int) Credentials {
	return Credentials{
		Email:    fmt.Sprintf("user%d@example.com", n),
		Password: DefaultPassword,
	}
}

// Weights sets how often each action is picked. Zero disables an action.
type Weights struct {
	Health   int `json:"health" yaml:"health"`
	Messages int `json:"messages" yaml:"messages"`
	Socket   int `json:"socket" yaml:"socket"`
}

// DefaultWeights enables the health check only.
func DefaultWeights() Weights {
	return Weights{Health: 1}
}

// Options configures a ChatUser.
type Options struct {
	// Wait samples the think time between actions. Defaults to Between(1s, 3s).
	Wait loadgen.WaitFunc

	// Weights of the repeatable actions. Defaults to DefaultWeights.
	Weights *Weights

	// Dialer is used by the Socket action. Defaults to websocket.DefaultDialer.
	Dialer SocketDialer

	Logger *zap.Logger
}

// ChatUser is one simulated chat client.
type ChatUser struct {
	count   int
	client  *chathttp.Client
	wait    loadgen.WaitFunc
	weights Weights
	dialer  SocketDialer
	logger  *zap.Logger

	mu    sync.RWMutex
	token *string
}

// NewChatUser creates the user spawned as number count, issuing its requests
// through client.
func NewChatUser(count int, client *chathttp.Client, opts Options) *ChatUser {
	u := &ChatUser{
		count:   count,
		client:  client,
		wait:    opts.Wait,
		weights: DefaultWeights(),
		dialer:  opts.Dialer,
		logger:  logging.OrNop(opts.Logger).With(zap.Int("user", count)),
	}
	if u.wait == nil {
		u.wait = loadgen.Between(time.Second, 3*time.Second)
	}
	if opts.Weights != nil {
		u.weights = *opts.Weights
	}
	if u.dialer == nil {
		u.dialer = defaultDialer()
	}
	return u
}

// Token returns the login token, if the user has one.
func (u *ChatUser) Token() (string, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.token == nil {
		return "", false
	}
	return *u.token, true
}

func (u *ChatUser) setToken(token *string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.token = token
}

// OnStart registers and logs in. It never fails: a failed registration is
// ignored and a failed login leaves the user unauthenticated.
func (u *ChatUser) OnStart(ctx context.Context) error {
	creds := CredentialsFor(u.count)

	resp, err := u.client.Do(ctx, chathttp.NewRequest(http.MethodPost, RegisterPath).WithBody(creds))
	switch {
	case err != nil:
		u.logger.Debug("registration failed", zap.String("email", creds.Email), zap.Error(err))
	case !resp.IsSuccess():
		u.logger.Debug("registration rejected", zap.String("email", creds.Email), zap.Int("status", resp.StatusCode))
	}

	resp, err = u.client.Do(ctx, chathttp.NewRequest(http.MethodPost, LoginPath).WithBody(creds))
	if err != nil {
		u.logger.Warn("login failed", zap.String("email", creds.Email), zap.Error(err))
		return nil
	}
	if !resp.IsSuccess() {
		u.logger.Warn("login rejected", zap.String("email", creds.Email), zap.Int("status", resp.StatusCode))
		return nil
	}

	token, ok := resp.Field("$.token")
	if !ok {
		u.logger.Warn("login response has no token", zap.String("email", creds.Email))
		return nil
	}

	u.setToken(&token)
	u.logger.Debug("logged in", zap.String("email", creds.Email))
	return nil
}

// Health checks the API health endpoint. It does not use the token.
func (u *ChatUser) Health(ctx context.Context) error {
	_, err := u.client.Do(ctx, chathttp.NewRequest(http.MethodGet, HealthPath))
	return err
}

// Messages fetches the message feed, authenticated when a token is held.
func (u *ChatUser) Messages(ctx context.Context) error {
	req := chathttp.NewRequest(http.MethodGet, MessagesPath)
	if token, ok := u.Token(); ok {
		req.WithHeader("Authorization", "Bearer "+token)
	}

	resp, err := u.client.Do(ctx, req)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("messages: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Tasks implements loadgen.User.
func (u *ChatUser) Tasks() []loadgen.Task {
	return []loadgen.Task{
		{Name: "health", Weight: u.weights.Health, Run: u.Health},
		{Name: "messages", Weight: u.weights.Messages, Run: u.Messages},
		{Name: "socket", Weight: u.weights.Socket, Run: u.Socket},
	}
}

// Wait implements loadgen.User.
func (u *ChatUser) Wait() time.Duration {
	return u.wait()
}

// OnStop discards the token.
func (u *ChatUser) OnStop(context.Context) {
	u.setToken(nil)
}

var _ loadgen.User = (*ChatUser)(nil)
