package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"report-desk/internal/client"
	"report-desk/internal/domain"
	"report-desk/internal/storage"
)

// Persisted keys. They are always cleared together.
const (
	KeyIdentity  = "session.identity"
	KeyUserID    = "session.user_id"
	KeyUserName  = "session.user_name"
	KeyUserEmail = "session.user_email"
	KeyToken     = "session.token"
)

var allKeys = []string{KeyIdentity, KeyUserID, KeyUserName, KeyUserEmail, KeyToken}

// requester is the slice of the HTTP gateway the manager needs.
type requester interface {
	Do(ctx context.Context, call client.Call) (client.Payload, error)
}

// RegisterInput is the registration form payload.
type RegisterInput struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// LoginInput is the login form payload.
type LoginInput struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Manager is the sole owner of persisted session state.
type Manager struct {
	mu     sync.RWMutex
	store  storage.Store
	api    requester
	logger *zap.Logger
}

// NewManager builds a manager. api must be an anonymous gateway: login and
// register happen before any credential exists.
func NewManager(store storage.Store, api requester, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:  store,
		api:    api,
		logger: logger.Named("session"),
	}
}

// Register creates an account and signs it in.
func (m *Manager) Register(ctx context.Context, in RegisterInput) (domain.Session, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if err := domain.Validate(in); err != nil {
		return domain.Session{}, err
	}

	payload, err := m.api.Do(ctx, client.Call{
		Method:   http.MethodPost,
		Path:     "/user/register",
		Body:     in,
		Response: client.ResponseJSON,
	})
	if err != nil {
		if statusErr, ok := client.AsStatusError(err); ok {
			return domain.Session{}, domain.WrapError(domain.KindServerRejected, statusErr.Message, err)
		}
		return domain.Session{}, err
	}

	sess, err := m.establish(payload)
	if err != nil {
		return domain.Session{}, err
	}
	m.logger.Info("registered", zap.Int64("user_id", sess.Identity.ID))
	return sess, nil
}

// Login signs in, replacing whatever session was persisted before.
func (m *Manager) Login(ctx context.Context, email, password string) (domain.Session, error) {
	in := LoginInput{Email: strings.TrimSpace(email), Password: password}
	if err := domain.Validate(in); err != nil {
		return domain.Session{}, err
	}

	payload, err := m.api.Do(ctx, client.Call{
		Method:   http.MethodPost,
		Path:     "/user/login",
		Body:     in,
		Response: client.ResponseJSON,
	})
	if err != nil {
		if statusErr, ok := client.AsStatusError(err); ok {
			switch statusErr.Status {
			case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
				return domain.Session{}, domain.WrapError(domain.KindInvalidCredential, "invalid email or password", err)
			default:
				return domain.Session{}, domain.WrapError(domain.KindServerRejected, statusErr.Message, err)
			}
		}
		return domain.Session{}, err
	}

	sess, err := m.establish(payload)
	if err != nil {
		return domain.Session{}, err
	}
	m.logger.Info("logged in", zap.Int64("user_id", sess.Identity.ID))
	return sess, nil
}

// Logout clears every persisted session key. It never fails.
func (m *Manager) Logout() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Write(storage.Batch{Delete: allKeys}); err != nil {
		m.logger.Error("clear session", zap.Error(err))
		return
	}
	m.logger.Info("logged out")
}

// IsAuthenticated reports whether a non-empty credential is persisted.
func (m *Manager) IsAuthenticated() bool {
	_, ok := m.Credential()
	return ok
}

// Credential returns the persisted bearer credential.
func (m *Manager) Credential() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	token := m.get(KeyToken)
	return token, token != ""
}

// Check reads the credential key and reports any store failure.
func (m *Manager) Check() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, _, err := m.store.Get(KeyToken); err != nil {
		return fmt.Errorf("read session store: %w", err)
	}
	return nil
}

// CurrentSession resolves the persisted session. The composite identity record
// is read first; missing fields are filled from the discrete keys. Without a
// credential there is no session, whatever else is stored.
func (m *Manager) CurrentSession() (domain.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	token := m.get(KeyToken)
	if token == "" {
		return domain.Session{}, false
	}

	var identity domain.Identity
	if raw := m.get(KeyIdentity); raw != "" {
		if err := json.Unmarshal([]byte(raw), &identity); err != nil {
			m.logger.Warn("discarding unreadable identity record", zap.Error(err))
			identity = domain.Identity{}
		}
	}

	if !isComplete(identity) {
		if identity.ID == 0 {
			if id, ok := parseID(m.get(KeyUserID)); ok {
				identity.ID = id
			}
		}
		if identity.DisplayName == "" {
			identity.DisplayName = m.get(KeyUserName)
		}
		if identity.Email == "" {
			identity.Email = m.get(KeyUserEmail)
		}
	}

	if identity == (domain.Identity{}) {
		return domain.Session{}, false
	}

	return domain.Session{
		Credential: token,
		Identity:   identity,
		ExpiresAt:  credentialExpiry(token),
	}, true
}

// establish normalizes a login/register reply and persists it in one write.
func (m *Manager) establish(payload client.Payload) (domain.Session, error) {
	sess, err := normalize(payload)
	if err != nil {
		return domain.Session{}, err
	}

	identityJSON, err := json.Marshal(sess.Identity)
	if err != nil {
		return domain.Session{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	batch := storage.Batch{
		Delete: allKeys,
		Set: map[string]string{
			KeyIdentity:  string(identityJSON),
			KeyUserID:    strconv.FormatInt(sess.Identity.ID, 10),
			KeyUserName:  sess.Identity.DisplayName,
			KeyUserEmail: sess.Identity.Email,
			KeyToken:     sess.Credential,
		},
	}
	if err := m.store.Write(batch); err != nil {
		return domain.Session{}, fmt.Errorf("persist session: %w", err)
	}
	return sess, nil
}

func (m *Manager) get(key string) string {
	value, _, err := m.store.Get(key)
	if err != nil {
		m.logger.Warn("read session key", zap.String("key", key), zap.Error(err))
		return ""
	}
	return value
}

// authReply covers every field name the backend has been seen to use.
type authReply struct {
	Token    string          `json:"token"`
	ID       json.RawMessage `json:"id"`
	UserID   json.RawMessage `json:"userId"`
	Name     string          `json:"name"`
	Username string          `json:"username"`
	Email    string          `json:"email"`
}

func normalize(payload client.Payload) (domain.Session, error) {
	var reply authReply
	if err := payload.DecodeJSON(&reply); err != nil {
		return domain.Session{}, domain.WrapError(domain.KindMalformedResponse, "unexpected reply from the server", err)
	}

	token := strings.TrimSpace(reply.Token)
	if token == "" {
		return domain.Session{}, domain.NewError(domain.KindMalformedResponse, "the server did not return a session token")
	}

	id, ok := parseID(string(reply.ID))
	if !ok {
		id, ok = parseID(string(reply.UserID))
	}
	if !ok {
		return domain.Session{}, domain.NewError(domain.KindMalformedResponse, "the server did not return a user id")
	}

	name := strings.TrimSpace(reply.Name)
	if name == "" {
		name = strings.TrimSpace(reply.Username)
	}

	return domain.Session{
		Credential: token,
		Identity: domain.Identity{
			ID:          id,
			DisplayName: name,
			Email:       strings.TrimSpace(reply.Email),
		},
		ExpiresAt: credentialExpiry(token),
	}, nil
}

// parseID accepts a JSON number or a quoted integer.
func parseID(raw string) (int64, bool) {
	raw = strings.Trim(strings.TrimSpace(raw), `"`)
	if raw == "" || raw == "null" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func isComplete(identity domain.Identity) bool {
	return identity.ID != 0 && identity.DisplayName != "" && identity.Email != ""
}

// credentialExpiry reads the exp claim when the credential is a JWT. The
// signature is not checked; the value is informational only.
func credentialExpiry(token string) *time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	t := exp.Time
	return &t
}
