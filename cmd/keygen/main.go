package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/enterprise-universe/universe-gateway/internal/auth"
)

func main() {
	org := flag.String("org", "", "organization ID (required)")
	team := flag.String("team", "", "team ID (required)")
	user := flag.String("user", "", "user ID (optional, omit for service accounts)")
	name := flag.String("name", "", "human-friendly key name (required)")
	env := flag.String("env", "prod", "environment prefix")
	providers := flag.String("providers", "", "comma-separated provider keys or globs, e.g. finance.*,versand.dhl (empty = all)")
	rpm := flag.Int("rpm", 0, "requests per minute (0 = relay default)")
	quota := flag.Int64("daily-quota", 0, "calls per day for the organization (0 = relay default)")
	expires := flag.String("expires", "365d", "expiry duration (e.g., 365d, 720h)")
	dbURL := flag.String("db-url", "", "database URL (overrides env)")
	flag.Parse()

	if *org == "" || *team == "" || *name == "" {
		flag.Usage()
		fmt.Fprintln(os.Stderr, "\nerror: -org, -team, and -name are required")
		os.Exit(1)
	}

	rawKey, err := auth.GenerateKey(*env)
	if err != nil {
		log.Fatalf("failed to generate key: %v", err)
	}

	dur, err := auth.ParseDuration(*expires)
	if err != nil {
		log.Fatalf("invalid expires: %v", err)
	}

	k := auth.NewKey{
		OrganizationID:   *org,
		TeamID:           *team,
		UserID:           *user,
		Name:             *name,
		AllowedProviders: splitList(*providers),
		ExpiresAt:        time.Now().Add(dur),
	}
	if *rpm > 0 {
		k.RPMLimit = rpm
	}
	if *quota > 0 {
		k.DailyCallQuota = quota
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, databaseURL(*dbURL))
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer conn.Close(ctx)

	keyID, err := auth.InsertKey(ctx, conn, rawKey, k)
	if err != nil {
		log.Fatalf("failed to insert key: %v", err)
	}

	fmt.Println("=== Universe Gateway API Key Generated ===")
	fmt.Println()
	fmt.Printf("  Key ID:         %s\n", keyID)
	fmt.Printf("  Key Prefix:     %s\n", auth.KeyPrefix(rawKey))
	fmt.Printf("  Organization:   %s\n", *org)
	fmt.Printf("  Team:           %s\n", *team)
	if *user != "" {
		fmt.Printf("  User:           %s\n", *user)
	}
	if len(k.AllowedProviders) > 0 {
		fmt.Printf("  Providers:      %s\n", strings.Join(k.AllowedProviders, ", "))
	} else {
		fmt.Printf("  Providers:      all\n")
	}
	fmt.Printf("  Expires:        %s\n", k.ExpiresAt.Format(time.RFC3339))
	fmt.Println()
	fmt.Println("  API Key (save this, it will NOT be shown again):")
	fmt.Printf("  %s\n", rawKey)
	fmt.Println()
	fmt.Println("==========================================")
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func databaseURL(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		envOrDefault("DB_USER", "universe"),
		envOrDefault("DB_PASSWORD", "universe-dev"),
		envOrDefault("DB_HOST", "localhost"),
		envOrDefault("DB_PORT", "5432"),
		envOrDefault("DB_NAME", "universe"),
	)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
