package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"

	"github.com/Wikid82/entitled/internal/config"
	"github.com/Wikid82/entitled/internal/envelope"
	"github.com/Wikid82/entitled/internal/logger"
	"github.com/Wikid82/entitled/internal/metrics"
	"github.com/Wikid82/entitled/internal/models"
	"github.com/Wikid82/entitled/internal/totp"
	"github.com/Wikid82/entitled/internal/util"
)

// dummyHash keeps the cost of a login for an unknown user close to a real one.
const dummyHash = "$2a$10$7EqJtq98hPqEX7fNZaFWoOa1bBbHq0lK0yWk5g1Rk2rWZ8v9kDqvu"

// Claims is the payload of the bearer credential.
type Claims struct {
	UserID string      `json:"user_id"`
	Role   models.Role `json:"role"`
	jwt.RegisteredClaims
}

// AuthService verifies credentials and second factors and issues bearer tokens.
// It is the only component that unwraps stored TOTP secrets.
type AuthService struct {
	db       *gorm.DB
	cfg      config.Config
	cipher   *envelope.Cipher
	verifier *totp.Verifier
	audit    *AuditService
	now      func() time.Time
}

func NewAuthService(db *gorm.DB, cfg config.Config, cipher *envelope.Cipher, verifier *totp.Verifier, audit *AuditService) *AuthService {
	return &AuthService{db: db, cfg: cfg, cipher: cipher, verifier: verifier, audit: audit, now: time.Now}
}

// Login checks the password and returns a signed token. The LOGIN entry is
// written in the same transaction, so a failed audit write fails the login.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, *models.User, error) {
	var user models.User
	var token string

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("username = ?", strings.TrimSpace(username)).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				probe := models.User{PasswordHash: dummyHash}
				probe.CheckPassword(password)
				return newError(ErrAuthentication, "invalid username or password")
			}
			return err
		}
		if !user.CheckPassword(password) {
			return newError(ErrAuthentication, "invalid username or password")
		}

		var err error
		if token, err = s.GenerateToken(&user); err != nil {
			return err
		}
		_, err = s.audit.Record(tx, user.ID, models.ActionLogin)
		return err
	})
	if err != nil {
		metrics.IncLogin("failure")
		if errors.Is(err, ErrAuthentication) {
			logger.WithFields(map[string]interface{}{"username": util.SanitizeForLog(username)}).Warn("login rejected")
		}
		return "", nil, err
	}

	metrics.IncLogin("success")
	logger.WithFields(map[string]interface{}{"user_id": user.ID, "role": user.Role}).Info("user logged in")
	return token, &user, nil
}

// GenerateToken signs a credential carrying the user id, role and expiry.
func (s *AuthService) GenerateToken(user *models.User) (string, error) {
	now := s.now()
	claims := Claims{
		UserID: user.ID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
}

// ValidateToken verifies signature and expiry and returns the claims.
func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, newError(ErrAuthentication, "invalid or expired token")
	}
	if claims.UserID == "" || !claims.Role.Valid() {
		return nil, newError(ErrAuthentication, "invalid token payload")
	}
	return claims, nil
}

// GetUserByID loads a user, mapping absence to ErrNotFound.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newError(ErrNotFound, "user not found")
		}
		return nil, err
	}
	return &user, nil
}

// CreateUser enrolls a user with a fresh TOTP secret, stored only in encrypted
// form. The plaintext secret is returned once so it can be enrolled. actorID
// may be empty for bootstrap, in which case the user is recorded as its own actor.
func (s *AuthService) CreateUser(ctx context.Context, actorID, username, password string, role models.Role) (*models.User, string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, "", newError(ErrValidation, "username is required")
	}
	if len(password) < 8 {
		return nil, "", newError(ErrValidation, "password must be at least 8 characters")
	}
	if !role.Valid() {
		return nil, "", newError(ErrValidation, "unknown role %q", role)
	}

	secret, err := s.verifier.GenerateSecret()
	if err != nil {
		return nil, "", fmt.Errorf("generate totp secret: %w", err)
	}
	sealed, err := s.cipher.EncryptString(secret)
	if err != nil {
		return nil, "", fmt.Errorf("encrypt totp secret: %w", err)
	}

	user := &models.User{Username: username, Role: role, TOTPSecret: sealed}
	if err := user.SetPassword(password); err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return newError(ErrConflict, "username %q is already taken", username)
		}
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		actor := actorID
		if actor == "" {
			actor = user.ID
		}
		_, err := s.audit.Record(tx, actor, models.ActionUserCreated,
			WithTargetUser(user.ID),
			WithMetadata(map[string]interface{}{"role": string(role)}))
		return err
	})
	if err != nil {
		return nil, "", err
	}
	return user, secret, nil
}

// ResetPassword replaces a user's password. It is an operator action with no
// authenticated actor, so the user is recorded as acting on itself.
func (s *AuthService) ResetPassword(ctx context.Context, username, password string) error {
	if len(password) < 8 {
		return newError(ErrValidation, "password must be at least 8 characters")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Where("username = ?", strings.TrimSpace(username)).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return newError(ErrNotFound, "user not found")
			}
			return err
		}
		if err := user.SetPassword(password); err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		if err := tx.Model(&user).Update("password_hash", user.PasswordHash).Error; err != nil {
			return err
		}
		_, err := s.audit.Record(tx, user.ID, models.ActionPasswordReset, WithTargetUser(user.ID))
		return err
	})
}

// ListAdmins returns every admin, for the approver picker.
func (s *AuthService) ListAdmins(ctx context.Context) ([]models.User, error) {
	var admins []models.User
	if err := s.db.WithContext(ctx).Where("role = ?", models.RoleAdmin).Order("username").Find(&admins).Error; err != nil {
		return nil, err
	}
	return admins, nil
}

// secondFactorSecret unwraps the user's stored TOTP secret.
func (s *AuthService) secondFactorSecret(user *models.User) (string, error) {
	secret, err := s.cipher.DecryptString(user.TOTPSecret)
	if err != nil {
		metrics.IncCryptoFailure()
		logger.Security().WithField("user_id", user.ID).Error("stored second-factor secret failed integrity verification")
		return "", newError(ErrCrypto, "stored second-factor secret could not be verified")
	}
	return secret, nil
}

// VerifySecondFactor checks code against the user's enrolled secret.
func (s *AuthService) VerifySecondFactor(user *models.User, code string) error {
	secret, err := s.secondFactorSecret(user)
	if err != nil {
		return err
	}
	if !s.verifier.Verify(secret, code) {
		return newError(ErrAuthentication, "invalid MFA code")
	}
	return nil
}

// ProvisioningURI returns the enrollment URI for the user's authenticator and
// records that it was viewed.
func (s *AuthService) ProvisioningURI(ctx context.Context, user *models.User) (string, error) {
	secret, err := s.secondFactorSecret(user)
	if err != nil {
		return "", err
	}
	uri, err := s.verifier.ProvisioningURI(secret, user.Username)
	if err != nil {
		return "", err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := s.audit.Record(tx, user.ID, models.ActionMFAProvisioningViewed)
		return err
	})
	if err != nil {
		return "", err
	}
	return uri, nil
}
