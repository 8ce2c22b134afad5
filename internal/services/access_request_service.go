package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/Wikid82/entitled/internal/logger"
	"github.com/Wikid82/entitled/internal/metrics"
	"github.com/Wikid82/entitled/internal/models"
)

// Decision is an admin's verdict on a pending request.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// ParseDecision accepts "approve" or "reject" in any case.
func ParseDecision(s string) (Decision, error) {
	switch Decision(strings.ToLower(strings.TrimSpace(s))) {
	case DecisionApprove:
		return DecisionApprove, nil
	case DecisionReject:
		return DecisionReject, nil
	default:
		return "", newError(ErrValidation, "invalid decision, must be 'approve' or 'reject'")
	}
}

// RequestView is an access request with names resolved for display.
type RequestView struct {
	models.AccessRequest
	EmployeeUsername string `json:"employee_username"`
	AdminUsername    string `json:"admin_username"`
	VaultItemTitle   string `json:"vault_item_title"`
}

// AccessRequestService runs the employee -> admin approval workflow.
type AccessRequestService struct {
	db       *gorm.DB
	audit    *AuditService
	notifier *NotificationService
	now      func() time.Time
}

func NewAccessRequestService(db *gorm.DB, audit *AuditService, notifier *NotificationService) *AccessRequestService {
	return &AccessRequestService{db: db, audit: audit, notifier: notifier, now: time.Now}
}

// Create files a pending request from employee to the designated admin.
func (s *AccessRequestService) Create(ctx context.Context, employee *models.User, adminID, vaultItemID, reason string, kind models.AccessType) (*models.AccessRequest, error) {
	switch employee.Role {
	case models.RoleEmployee:
	case models.RoleAdmin, models.RoleAuditor:
		return nil, newError(ErrAuthorization, "only employees can request vault access")
	default:
		return nil, newError(ErrAuthorization, "unknown role")
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, newError(ErrValidation, "a reason is required")
	}
	if kind != models.AccessRead && kind != models.AccessWrite {
		return nil, newError(ErrValidation, "invalid access type")
	}

	var (
		req   *models.AccessRequest
		admin models.User
		item  models.VaultItem
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", adminID).First(&admin).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return newError(ErrValidation, "invalid admin selected")
			}
			return err
		}
		if admin.Role != models.RoleAdmin {
			return newError(ErrValidation, "invalid admin selected")
		}
		if err := tx.Where("id = ?", vaultItemID).First(&item).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return newError(ErrValidation, "vault item does not exist")
			}
			return err
		}

		req = &models.AccessRequest{
			EmployeeID:  employee.ID,
			AdminID:     admin.ID,
			VaultItemID: item.ID,
			Reason:      reason,
			AccessType:  kind,
			Status:      models.RequestPending,
			CreatedAt:   s.now().UTC(),
		}
		if err := tx.Create(req).Error; err != nil {
			return err
		}

		_, err := s.audit.Record(tx, employee.ID, models.ActionAccessRequestCreated,
			WithVaultItem(item.ID),
			WithTargetUser(admin.ID),
			WithMetadata(map[string]interface{}{
				"request_id":  req.ID,
				"reason":      reason,
				"access_type": string(kind),
			}))
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"request_id":    req.ID,
		"employee_id":   employee.ID,
		"admin_id":      admin.ID,
		"vault_item_id": item.ID,
	}).Info("access request created")
	s.notifier.NotifyAccessRequestCreated(req.ID, employee.Username, admin.Username, item.Title)

	return req, nil
}

// Decide applies an approve/reject decision. Only the assigned admin may
// decide, and only once: a decided request never changes again.
func (s *AccessRequestService) Decide(ctx context.Context, admin *models.User, requestID string, decision Decision) (*models.AccessRequest, error) {
	var (
		status models.RequestStatus
		action string
	)
	switch decision {
	case DecisionApprove:
		status, action = models.RequestApproved, models.ActionAccessRequestApproved
	case DecisionReject:
		status, action = models.RequestRejected, models.ActionAccessRequestRejected
	default:
		return nil, newError(ErrValidation, "invalid decision, must be 'approve' or 'reject'")
	}

	var req models.AccessRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", requestID).First(&req).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return newError(ErrNotFound, "access request not found")
			}
			return err
		}
		if admin.Role != models.RoleAdmin || req.AdminID != admin.ID {
			return newError(ErrAuthorization, "you can only decide on requests assigned to you")
		}
		if req.Status.IsTerminal() {
			return newError(ErrConflict, "request already decided")
		}

		decidedAt := s.now().UTC()
		// Conditional on pending so a concurrent decision cannot also succeed.
		res := tx.Model(&models.AccessRequest{}).
			Where("id = ? AND status = ?", req.ID, models.RequestPending).
			Updates(map[string]interface{}{"status": status, "decided_at": decidedAt})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return newError(ErrConflict, "request already decided")
		}
		req.Status = status
		req.DecidedAt = &decidedAt

		_, err := s.audit.Record(tx, admin.ID, action,
			WithVaultItem(req.VaultItemID),
			WithTargetUser(req.EmployeeID),
			WithMetadata(map[string]interface{}{"request_id": req.ID}))
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.IncRequestDecision(string(status))
	logger.WithFields(map[string]interface{}{
		"request_id": req.ID,
		"admin_id":   admin.ID,
		"status":     req.Status,
	}).Info("access request decided")
	s.notifier.NotifyAccessRequestDecided(req.ID, admin.Username, string(status))

	return &req, nil
}

// Get returns one request with names resolved. Only the requesting employee
// and the assigned admin may see it.
func (s *AccessRequestService) Get(ctx context.Context, viewer *models.User, id string) (*RequestView, error) {
	views, err := s.list(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("id = ?", id)
	})
	if err != nil {
		return nil, err
	}
	if len(views) == 0 {
		return nil, newError(ErrNotFound, "access request not found")
	}
	v := views[0]
	if viewer.ID != v.EmployeeID && viewer.ID != v.AdminID {
		return nil, newError(ErrAuthorization, "not a party to this access request")
	}
	return &v, nil
}

// ListForEmployee returns every request filed by the employee, newest first.
func (s *AccessRequestService) ListForEmployee(ctx context.Context, employeeID string) ([]RequestView, error) {
	return s.list(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("employee_id = ?", employeeID)
	})
}

// ListPendingForAdmin returns the admin's queue of undecided requests.
func (s *AccessRequestService) ListPendingForAdmin(ctx context.Context, adminID string) ([]RequestView, error) {
	return s.list(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("admin_id = ? AND status = ?", adminID, models.RequestPending)
	})
}

func (s *AccessRequestService) list(ctx context.Context, scope func(*gorm.DB) *gorm.DB) ([]RequestView, error) {
	var reqs []models.AccessRequest
	err := s.db.WithContext(ctx).Scopes(scope).
		Preload("Employee").Preload("Admin").Preload("VaultItem").
		Order("created_at desc").
		Find(&reqs).Error
	if err != nil {
		return nil, err
	}

	views := make([]RequestView, 0, len(reqs))
	for _, r := range reqs {
		v := RequestView{AccessRequest: r}
		if r.Employee != nil {
			v.EmployeeUsername = r.Employee.Username
		}
		if r.Admin != nil {
			v.AdminUsername = r.Admin.Username
		}
		if r.VaultItem != nil {
			v.VaultItemTitle = r.VaultItem.Title
		}
		views = append(views, v)
	}
	return views, nil
}
