// Package seed loads demo users and encrypted vault items into an empty
// installation.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Wikid82/entitled/internal/models"
	"github.com/Wikid82/entitled/internal/services"
)

type demoUser struct {
	Username string
	Password string
	Role     models.Role
}

var demoUsers = []demoUser{
	{"employee1", "employee123", models.RoleEmployee},
	{"employee2", "employee123", models.RoleEmployee},
	{"employee3", "employee123", models.RoleEmployee},
	{"admin1", "admin123", models.RoleAdmin},
	{"admin2", "admin123", models.RoleAdmin},
	{"admin3", "admin123", models.RoleAdmin},
	{"auditor", "auditor123", models.RoleAuditor},
}

type demoItem struct {
	Title   string
	Records []models.RecordPayload
}

var demoItems = []demoItem{
	{
		Title: "Q4 2024 Venture Capital Portfolio",
		Records: []models.RecordPayload{
			{InvestmentName: "TechStartup AI Solutions Inc.", InvestedAmount: 2500000, InvestmentDate: "2024-10-15", InstrumentType: "Series A Preferred Stock", Remarks: "Lead investor, board seat secured"},
			{InvestmentName: "GreenEnergy Innovations Ltd.", InvestedAmount: 1800000, InvestmentDate: "2024-11-03", InstrumentType: "Convertible Note", Remarks: "Follow-on investment, 20% discount on conversion"},
			{InvestmentName: "FinanceFlow SaaS Platform", InvestedAmount: 1500000, InvestmentDate: "2024-11-18", InstrumentType: "SAFE Agreement", Remarks: "Valuation cap: $15M, 15% discount"},
		},
	},
	{
		Title: "Private Equity - Manufacturing Sector",
		Records: []models.RecordPayload{
			{InvestmentName: "Precision Engineering Holdings", InvestedAmount: 15000000, InvestmentDate: "2024-09-10", InstrumentType: "Common Equity", Remarks: "40% ownership stake, operational control"},
			{InvestmentName: "Advanced Materials Corp.", InvestedAmount: 12500000, InvestmentDate: "2024-10-01", InstrumentType: "Mezzanine Debt", Remarks: "12% annual interest, equity kicker of 10%"},
		},
	},
	{
		Title: "Real Estate Investment Portfolio",
		Records: []models.RecordPayload{
			{InvestmentName: "Downtown Office Tower", InvestedAmount: 45000000, InvestmentDate: "2024-08-20", InstrumentType: "Direct Ownership", Remarks: "Class A office space, 92% occupancy"},
			{InvestmentName: "Suburban Logistics Park", InvestedAmount: 28000000, InvestmentDate: "2024-10-05", InstrumentType: "REIT Units", Remarks: "Long-term leases with e-commerce tenants"},
		},
	},
}

// Seeder creates the demo data through the service layer so every row is
// encrypted and audited like production data.
type Seeder struct {
	Auth  *services.AuthService
	Vault *services.VaultService
	Out   io.Writer
}

// Run creates missing demo users and items. Existing usernames and titles are
// left untouched, so it is safe to run repeatedly.
func (s *Seeder) Run(ctx context.Context) error {
	var admin *models.User
	for _, du := range demoUsers {
		u, secret, err := s.Auth.CreateUser(ctx, "", du.Username, du.Password, du.Role)
		if errors.Is(err, services.ErrConflict) {
			fmt.Fprintf(s.Out, "  user already exists: %s\n", du.Username)
			continue
		}
		if err != nil {
			return fmt.Errorf("create user %s: %w", du.Username, err)
		}
		uri, err := s.Auth.ProvisioningURI(ctx, u)
		if err != nil {
			return fmt.Errorf("provisioning uri for %s: %w", du.Username, err)
		}
		fmt.Fprintf(s.Out, "created %s %s (secret %s)\n  %s\n", du.Role, du.Username, secret, uri)
		if admin == nil && du.Role == models.RoleAdmin {
			admin = u
		}
	}

	if admin == nil {
		admins, err := s.Auth.ListAdmins(ctx)
		if err != nil {
			return err
		}
		if len(admins) == 0 {
			return errors.New("no admin available to own seeded vault items")
		}
		admin = &admins[0]
	}

	existing, err := s.Vault.ListItems(ctx, admin)
	if err != nil {
		return err
	}
	titles := make(map[string]struct{}, len(existing))
	for _, it := range existing {
		titles[it.Title] = struct{}{}
	}

	for _, di := range demoItems {
		if _, ok := titles[di.Title]; ok {
			fmt.Fprintf(s.Out, "  vault item already exists: %s\n", di.Title)
			continue
		}
		if _, err := s.Vault.CreateItem(ctx, admin, di.Title, di.Records); err != nil {
			return fmt.Errorf("create vault item %q: %w", di.Title, err)
		}
		fmt.Fprintf(s.Out, "created vault item %q with %d encrypted records\n", di.Title, len(di.Records))
	}
	return nil
}
