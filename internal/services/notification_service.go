package services

import (
	"fmt"
	"strings"
	"sync"

	"github.com/containrrr/shoutrrr"

	"github.com/Wikid82/entitled/internal/logger"
	"github.com/Wikid82/entitled/internal/util"
)

// NotificationService pushes workflow events to external channels (Slack,
// email, webhooks...) addressed by shoutrrr URLs. Delivery is best effort and
// never influences the outcome of the operation that triggered it.
type NotificationService struct {
	urls []string
	send func(url, message string) error
	wg   sync.WaitGroup
}

func NewNotificationService(urls []string) *NotificationService {
	return &NotificationService{urls: urls, send: shoutrrr.Send}
}

// Enabled reports whether any destination is configured.
func (s *NotificationService) Enabled() bool {
	return s != nil && len(s.urls) > 0
}

// NotifyAccessRequestCreated tells the approver a request is waiting.
// The free-text reason is left out; it may carry sensitive context.
func (s *NotificationService) NotifyAccessRequestCreated(requestID, employee, admin, itemTitle string) {
	if !s.Enabled() {
		return
	}
	msg := fmt.Sprintf("New vault access request\n\n%s asked %s for access to %q (request %s).",
		util.SanitizeForLog(employee), util.SanitizeForLog(admin), util.SanitizeForLog(itemTitle), requestID)
	s.dispatch(msg)
}

// NotifyAccessRequestDecided tells subscribers about an approve/reject outcome.
func (s *NotificationService) NotifyAccessRequestDecided(requestID, admin, outcome string) {
	if !s.Enabled() {
		return
	}
	msg := fmt.Sprintf("Vault access request %s\n\n%s %s request %s.",
		strings.ToLower(outcome), util.SanitizeForLog(admin), strings.ToLower(outcome), requestID)
	s.dispatch(msg)
}

func (s *NotificationService) dispatch(msg string) {
	for _, url := range s.urls {
		s.wg.Add(1)
		go func(url string) {
			defer s.wg.Done()
			if err := s.send(url, msg); err != nil {
				logger.Log().WithError(err).WithField("scheme", scheme(url)).Warn("failed to send notification")
			}
		}(url)
	}
}

// Wait blocks until in-flight deliveries finish.
func (s *NotificationService) Wait() {
	if s == nil {
		return
	}
	s.wg.Wait()
}

// scheme keeps credentials embedded in service URLs out of the logs.
func scheme(url string) string {
	if i := strings.Index(url, "://"); i > 0 {
		return url[:i]
	}
	return "unknown"
}
