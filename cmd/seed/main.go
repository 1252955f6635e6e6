// seed inserts development sample data through the session facade: an owner with an organization, a staff member
// joined by invite code and an organization policy. Requires DOCSTORE_DRIVER=postgres or redis.
// Idempotent: skips everything if the dev owner (dev@example.com) can already sign in.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"order-desk/backend/internal/bootstrap"
	"order-desk/backend/internal/config"
	membership "order-desk/backend/internal/membership/domain"
	"order-desk/backend/internal/policy/engine"
	policydomain "order-desk/backend/internal/policy/domain"
	policyrepo "order-desk/backend/internal/policy/repository"
	sessiondomain "order-desk/backend/internal/session/domain"
)

// seedPolicyRules extends the built-in policy: viewers may also export.
const seedPolicyRules = `

allow if {
	input.action == "records.export"
	input.role == "Viewer"
}
`

const (
	devUserEmail = "dev@example.com"
	devPassword  = "Password-123"
	memberEmail  = "member@example.com"
	devOrgName   = "Acme Dev"
	readyTimeout = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DocstoreDriver == config.DriverMemory {
		log.Fatal("seed: DOCSTORE_DRIVER=memory keeps nothing; set postgres or redis")
	}

	ctx := context.Background()
	app, err := bootstrap.New(ctx, cfg, "seed")
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	defer app.Close()
	f := app.Facade

	if _, err := f.Login(ctx, devUserEmail, devPassword); err == nil {
		_ = f.Logout(ctx)
		log.Println("Seed already applied (dev@example.com exists). Skipping.")
		os.Exit(0)
	}

	if _, err := f.SignupAsOwner(ctx, devUserEmail, devPassword, "Dev User", devOrgName); err != nil {
		log.Fatalf("signup owner: %v", err)
	}
	owner := waitReady(ctx, app)
	orgID := owner.OrgID()

	code, err := f.GenerateInviteCode(ctx, membership.RoleStaff, nil, memberEmail)
	if err != nil {
		log.Fatalf("generate invite code: %v", err)
	}
	if err := f.Logout(ctx); err != nil {
		log.Fatalf("logout owner: %v", err)
	}

	if _, err := f.SignupWithInviteCode(ctx, memberEmail, devPassword, "Member User", code.Code); err != nil {
		log.Fatalf("signup member: %v", err)
	}
	waitReady(ctx, app)
	if err := f.Logout(ctx); err != nil {
		log.Fatalf("logout member: %v", err)
	}

	policies := policyrepo.NewDocstoreRepository(app.Store)
	if err := policies.Put(ctx, &policydomain.Policy{
		ID:        uuid.New().String(),
		OrgID:     orgID,
		Rules:     engine.DefaultPolicy() + seedPolicyRules,
		Enabled:   true,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		log.Fatalf("create policy: %v", err)
	}

	log.Println("Seed completed successfully.")
	fmt.Printf("Organization: %s (%s)\n", devOrgName, orgID)
	fmt.Printf("Dev login: %s / %s\n", devUserEmail, devPassword)
	fmt.Printf("Member login: %s / %s\n", memberEmail, devPassword)
}

func waitReady(ctx context.Context, app *bootstrap.App) *sessiondomain.ActiveSession {
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	s, err := app.Facade.WaitReady(ctx)
	if err != nil {
		log.Fatalf("wait for session: %v", err)
	}
	return s
}
