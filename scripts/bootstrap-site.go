// Command bootstrap-site provisions a tenant: a site row with generated
// credentials plus its usage record. The management secret is printed
// once and never stored in plain text.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/sentra/sentra/internal/auth"
	"github.com/sentra/sentra/internal/model"
	"github.com/sentra/sentra/internal/repository"
)

type output struct {
	SiteID        string `json:"site_id"`
	UserID        string `json:"user_id"`
	SiteKey       string `json:"site_key"`
	Secret        string `json:"secret"`
	Quota         int64  `json:"quota"`
	RiskThreshold int    `json:"risk_threshold"`
}

func main() {
	var (
		databaseURL   = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		userID        = flag.String("user-id", "", "Owning account ID (defaults to a new ULID)")
		environment   = flag.String("env", auth.EnvTest, "Key environment: live or test")
		quota         = flag.Int64("quota", 0, "Monthly event quota (0 = unlimited)")
		riskThreshold = flag.Int("risk-threshold", 70, "Auto-block score threshold (0-100)")
		autoBlock     = flag.Bool("auto-block", false, "Enable auto-block at the risk threshold")
		format        = flag.String("format", "plain", "Output format: plain or json")
	)
	flag.Parse()

	if *databaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}
	if *environment != auth.EnvLive && *environment != auth.EnvTest {
		fmt.Fprintln(os.Stderr, "env must be live or test")
		os.Exit(1)
	}
	if *riskThreshold < 0 || *riskThreshold > 100 {
		fmt.Fprintln(os.Stderr, "risk-threshold must be within 0-100")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := repository.New(ctx, *databaseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect database:", err)
		os.Exit(1)
	}
	defer repo.Close()

	creds, err := auth.GenerateCredentials(*environment)
	if err != nil {
		fmt.Fprintln(os.Stderr, "generate credentials:", err)
		os.Exit(1)
	}

	owner := *userID
	if owner == "" {
		owner = ulid.Make().String()
	}

	site := &model.Site{
		ID:                  ulid.Make().String(),
		APIKey:              creds.SiteKey,
		UserID:              owner,
		AutoBlock:           *autoBlock,
		RiskThreshold:       *riskThreshold,
		AutoBlockTrialAbuse: true,
		TrialAbuseThreshold: model.DefaultTrialAbuseThreshold,
		SecretHash:          creds.SecretHash,
		CreatedAt:           time.Now().UTC(),
	}

	if err := repo.CreateSite(ctx, site); err != nil {
		fmt.Fprintln(os.Stderr, "create site:", err)
		os.Exit(1)
	}
	if err := repo.EnsureUsageRecord(ctx, owner, *quota); err != nil {
		fmt.Fprintln(os.Stderr, "create usage record:", err)
		os.Exit(1)
	}

	out := output{
		SiteID:        site.ID,
		UserID:        owner,
		SiteKey:       creds.SiteKey,
		Secret:        creds.Secret,
		Quota:         *quota,
		RiskThreshold: *riskThreshold,
	}

	if *format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			fmt.Fprintln(os.Stderr, "encode output:", err)
			os.Exit(1)
		}
		return
	}

	fmt.Println("Site provisioned.")
	fmt.Println("site_id: ", out.SiteID)
	fmt.Println("user_id: ", out.UserID)
	fmt.Println("site_key:", out.SiteKey)
	fmt.Println("secret:  ", out.Secret)
	fmt.Println()
	fmt.Println("Store the secret now; it cannot be recovered.")
}
