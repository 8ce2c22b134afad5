package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Wikid82/entitled/internal/config"
	"github.com/Wikid82/entitled/internal/database"
	"github.com/Wikid82/entitled/internal/envelope"
	"github.com/Wikid82/entitled/internal/models"
	"github.com/Wikid82/entitled/internal/totp"
)

// testClock is a manually advanced clock shared by every service in a fixture.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	t         *testing.T
	ctx       context.Context
	db        *gorm.DB
	clock     *testClock
	cipher    *envelope.Cipher
	verifier  *totp.Verifier
	audit     *AuditService
	auth      *AuthService
	requests  *AccessRequestService
	privilege *PrivilegeService
	vault     *VaultService
	notifier  *NotificationService
	secrets   map[string]string
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Connect(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, PrivilegeOptions{Duration: 3 * time.Minute})
}

func newFixtureWith(t *testing.T, opts PrivilegeOptions) *fixture {
	t.Helper()
	db := setupTestDB(t)
	clock := newTestClock()

	cipher, err := envelope.New(bytes.Repeat([]byte{7}, envelope.KeySize))
	require.NoError(t, err)
	verifier := totp.NewVerifier("ENTITLED Vault").WithClock(clock.Now)

	cfg := config.Config{
		JWTSecret: strings.Repeat("j", 40),
		TokenTTL:  time.Hour,
	}

	audit := NewAuditService(db)
	audit.now = clock.Now
	auth := NewAuthService(db, cfg, cipher, verifier, audit)
	auth.now = clock.Now
	notifier := NewNotificationService(nil)
	requests := NewAccessRequestService(db, audit, notifier)
	requests.now = clock.Now
	privilege := NewPrivilegeService(db, audit, auth, opts)
	privilege.now = clock.Now
	vault := NewVaultService(db, cipher, audit)
	vault.now = clock.Now

	return &fixture{
		t: t, ctx: context.Background(), db: db, clock: clock,
		cipher: cipher, verifier: verifier,
		audit: audit, auth: auth, requests: requests, privilege: privilege, vault: vault,
		notifier: notifier,
		secrets:  map[string]string{},
	}
}

// user enrolls a user and keeps the plaintext TOTP secret for code generation.
func (f *fixture) user(username string, role models.Role) *models.User {
	f.t.Helper()
	u, secret, err := f.auth.CreateUser(f.ctx, "", username, "password123", role)
	require.NoError(f.t, err)
	f.secrets[u.ID] = secret
	f.clock.Advance(time.Second)
	return u
}

// code returns the current TOTP code for u.
func (f *fixture) code(u *models.User) string {
	f.t.Helper()
	c, err := f.verifier.GenerateCode(f.secrets[u.ID], f.clock.Now())
	require.NoError(f.t, err)
	return c
}

// item creates a vault item with the given payloads, created by a throwaway admin.
func (f *fixture) item(title string, payloads ...models.RecordPayload) *models.VaultItem {
	f.t.Helper()
	it := &models.VaultItem{Title: title}
	for _, p := range payloads {
		token, err := f.cipher.Encrypt(mustJSON(f.t, p))
		require.NoError(f.t, err)
		it.Records = append(it.Records, models.VaultRecord{EncryptedPayload: token})
	}
	require.NoError(f.t, f.db.Create(it).Error)
	return it
}

// auditActions returns the recorded actions oldest first.
func (f *fixture) auditActions() []string {
	f.t.Helper()
	var entries []models.AuditLog
	require.NoError(f.t, f.db.Order("timestamp asc").Find(&entries).Error)
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Action)
	}
	return out
}

func (f *fixture) countAudit(action string) int64 {
	f.t.Helper()
	var n int64
	require.NoError(f.t, f.db.Model(&models.AuditLog{}).Where("action = ?", action).Count(&n).Error)
	return n
}

// failAuditWrites makes every insert into audit_logs fail from now on.
func failAuditWrites(t *testing.T, db *gorm.DB) {
	t.Helper()
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:fail_audit", func(tx *gorm.DB) {
		if tx.Statement.Table == "audit_logs" {
			_ = tx.AddError(fmt.Errorf("audit store unavailable"))
		}
	}))
}

func samplePayload(name string, amount float64) models.RecordPayload {
	return models.RecordPayload{
		InvestmentName: name,
		InvestedAmount: amount,
		InvestmentDate: "2024-01-15",
		InstrumentType: "Bond",
		Remarks:        "quarterly review",
	}
}
