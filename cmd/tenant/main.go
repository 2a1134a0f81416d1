// Package main is the merchant provisioning CLI.
//
// Provisioning a merchant takes three steps: create the tenant database,
// bring its schema up with goose, and register the tenant in the
// meta-database so the API starts routing requests to it.
//
// Usage:
//
//	tenant create --slug corner-cafe --name "Corner Cafe" --plan starter
//	tenant list
//	tenant migrate --all
//	tenant migrate --id <tenant-uuid>
//	tenant migrate-meta
//	tenant suspend <tenant-uuid>
//	tenant activate <tenant-uuid>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tillpoint/internal/core/tenant"
)

const (
	tenantMigrationsDir = "db/migrations"
	metaMigrationsDir   = "db/meta"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	ctx := context.Background()

	var err error
	switch os.Args[1] {
	case "create":
		err = runCreate(ctx, os.Args[2:])
	case "list":
		err = runList(ctx)
	case "migrate":
		err = runMigrate(ctx, os.Args[2:])
	case "migrate-meta":
		err = runMigrateMeta()
	case "suspend":
		err = runSetStatus(ctx, os.Args[2:], tenant.StatusSuspended)
	case "activate":
		err = runSetStatus(ctx, os.Args[2:], tenant.StatusActive)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`tenant - merchant provisioning for tillpoint

Usage:
  tenant <command> [options]

Commands:
  create        Provision a new merchant (database + schema + registration)
  list          List registered merchants
  migrate       Run schema migrations for one or all merchants
  migrate-meta  Run migrations for the meta-database itself
  suspend       Suspend a merchant
  activate      Reactivate a suspended merchant
  help          Show this help

Environment:
  META_DATABASE_URL    Meta-database connection string (required)
  TENANT_DB_USER       Role the API uses to connect to tenant databases
  TENANT_DB_PASSWORD   Password for that role
  TENANT_DB_SSLMODE    sslmode for tenant connections (default: disable)
  POSTGRES_ADMIN_URL   Admin connection for CREATE DATABASE
                       (default: META_DATABASE_URL pointed at /postgres)`)
}

// cliEnv is the environment every command draws from.
type cliEnv struct {
	metaDSN    string
	adminDSN   string
	dbUser     string
	dbPassword string
	sslMode    string
}

func loadEnv() (cliEnv, error) {
	env := cliEnv{
		metaDSN:    os.Getenv("META_DATABASE_URL"),
		adminDSN:   os.Getenv("POSTGRES_ADMIN_URL"),
		dbUser:     os.Getenv("TENANT_DB_USER"),
		dbPassword: os.Getenv("TENANT_DB_PASSWORD"),
		sslMode:    os.Getenv("TENANT_DB_SSLMODE"),
	}
	if env.metaDSN == "" {
		return env, fmt.Errorf("META_DATABASE_URL is required")
	}
	if env.adminDSN == "" {
		// The admin role usually lives on the same cluster as the meta
		// database, so point the same DSN at the postgres database.
		env.adminDSN = replaceDatabase(env.metaDSN, "postgres")
	}
	return env, nil
}

// requireTenantCreds checks the credentials used for tenant DSNs.
func (e cliEnv) requireTenantCreds() error {
	if e.dbUser == "" || e.dbPassword == "" {
		return fmt.Errorf("TENANT_DB_USER and TENANT_DB_PASSWORD are required")
	}
	return nil
}

// replaceDatabase swaps the database segment of a postgres:// URL.
func replaceDatabase(dsn, dbName string) string {
	slash := strings.LastIndex(dsn, "/")
	if slash < 0 {
		return dsn
	}
	rest := dsn[slash+1:]
	if q := strings.Index(rest, "?"); q >= 0 {
		return dsn[:slash+1] + dbName + rest[q:]
	}
	return dsn[:slash+1] + dbName
}

func openMetaRegistry(ctx context.Context, env cliEnv) (*pgxpool.Pool, *tenant.PostgresRegistry, error) {
	pool, err := pgxpool.New(ctx, env.metaDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to meta database: %w", err)
	}
	return pool, tenant.NewPostgresRegistry(pool), nil
}

func parsePlan(s string) (tenant.Plan, error) {
	switch tenant.Plan(s) {
	case tenant.PlanStarter, tenant.PlanGrowth, tenant.PlanChain:
		return tenant.Plan(s), nil
	case "":
		return tenant.PlanStarter, nil
	default:
		return "", fmt.Errorf("unknown plan %q (valid: %s, %s, %s)",
			s, tenant.PlanStarter, tenant.PlanGrowth, tenant.PlanChain)
	}
}

func runCreate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	slug := fs.String("slug", "", "URL-safe merchant identifier (required)")
	name := fs.String("name", "", "merchant display name (required)")
	planFlag := fs.String("plan", string(tenant.PlanStarter), "subscription plan: starter, growth or chain")
	dbHost := fs.String("db-host", "localhost", "host of the tenant database")
	dbPort := fs.Int("db-port", 5432, "port of the tenant database")
	if err := fs.Parse(args); err != nil {
		return err
	}

	in := tenant.CreateTenantInput{
		Slug:        *slug,
		DisplayName: *name,
		DBHost:      *dbHost,
		DBPort:      *dbPort,
	}
	if err := in.Validate(); err != nil {
		return err
	}
	plan, err := parsePlan(*planFlag)
	if err != nil {
		return err
	}

	env, err := loadEnv()
	if err != nil {
		return err
	}
	if err := env.requireTenantCreds(); err != nil {
		return err
	}

	metaPool, registry, err := openMetaRegistry(ctx, env)
	if err != nil {
		return err
	}
	defer metaPool.Close()

	t := &tenant.Tenant{
		Slug:        in.Slug,
		DisplayName: in.DisplayName,
		DBName:      in.GenerateDBName(),
		DBHost:      in.DBHost,
		DBPort:      in.DBPort,
		Status:      tenant.StatusActive,
		Plan:        plan,
	}

	fmt.Printf("provisioning merchant %q\n", t.Slug)

	fmt.Printf("  creating database %s\n", t.DBName)
	if err := createDatabase(ctx, env.adminDSN, t.DBName); err != nil {
		return err
	}

	fmt.Println("  running schema migrations")
	if err := gooseUp(tenantMigrationsDir, t.DSN(env.dbUser, env.dbPassword, env.sslMode)); err != nil {
		return fmt.Errorf("migrate %s: %w", t.DBName, err)
	}

	fmt.Println("  registering in meta database")
	if err := registry.Create(ctx, t); err != nil {
		return fmt.Errorf("register tenant: %w", err)
	}

	fmt.Printf("merchant %q is ready\n", t.Slug)
	fmt.Printf("  tenant id: %s\n", t.ID)
	fmt.Printf("  database:  %s\n", t.DBName)
	fmt.Printf("  plan:      %s\n", t.Plan)
	return nil
}

// createDatabase creates the tenant database, tolerating reruns: an
// already existing database is fine, provisioning continues with the
// migrations.
func createDatabase(ctx context.Context, adminDSN, dbName string) error {
	adminPool, err := pgxpool.New(ctx, adminDSN)
	if err != nil {
		return fmt.Errorf("connect as admin: %w", err)
	}
	defer adminPool.Close()

	_, err = adminPool.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", dbName))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "42P04" { // duplicate_database
			fmt.Printf("  database %s already exists, continuing\n", dbName)
			return nil
		}
		return fmt.Errorf("create database %s: %w", dbName, err)
	}
	return nil
}

func runList(ctx context.Context) error {
	env, err := loadEnv()
	if err != nil {
		return err
	}
	metaPool, registry, err := openMetaRegistry(ctx, env)
	if err != nil {
		return err
	}
	defer metaPool.Close()

	tenants, err := registry.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list tenants: %w", err)
	}
	if len(tenants) == 0 {
		fmt.Println("no merchants registered")
		return nil
	}

	fmt.Printf("%-36s %-20s %-30s %-20s %-8s %-10s\n", "TENANT_ID", "SLUG", "NAME", "DATABASE", "PLAN", "STATUS")
	for _, t := range tenants {
		fmt.Printf("%-36s %-20s %-30s %-20s %-8s %-10s\n",
			t.ID,
			truncate(t.Slug, 20),
			truncate(t.DisplayName, 30),
			truncate(t.DBName, 20),
			t.Plan,
			t.Status,
		)
	}
	return nil
}

func runMigrate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	targetID := fs.String("id", "", "migrate a single merchant by tenant id")
	all := fs.Bool("all", false, "migrate every active merchant")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*all && *targetID == "" {
		return fmt.Errorf("specify --id <tenant-uuid> or --all")
	}

	env, err := loadEnv()
	if err != nil {
		return err
	}
	if err := env.requireTenantCreds(); err != nil {
		return err
	}
	metaPool, registry, err := openMetaRegistry(ctx, env)
	if err != nil {
		return err
	}
	defer metaPool.Close()

	var tenants []*tenant.Tenant
	if *all {
		tenants, err = registry.ListActive(ctx)
		if err != nil {
			return fmt.Errorf("list active tenants: %w", err)
		}
	} else {
		t, err := registry.GetByID(ctx, *targetID)
		if err != nil {
			return fmt.Errorf("tenant %s: %w", *targetID, err)
		}
		tenants = []*tenant.Tenant{t}
	}

	var failed int
	for _, t := range tenants {
		fmt.Printf("migrating %s (%s)\n", t.Slug, t.DBName)
		if err := gooseUp(tenantMigrationsDir, t.DSN(env.dbUser, env.dbPassword, env.sslMode)); err != nil {
			fmt.Fprintf(os.Stderr, "  failed: %v\n", err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d merchants failed to migrate", failed, len(tenants))
	}
	fmt.Printf("migrated %d merchant(s)\n", len(tenants))
	return nil
}

func runMigrateMeta() error {
	env, err := loadEnv()
	if err != nil {
		return err
	}
	return gooseUp(metaMigrationsDir, env.metaDSN)
}

func runSetStatus(ctx context.Context, args []string, status tenant.Status) error {
	if len(args) < 1 {
		return fmt.Errorf("tenant id is required")
	}
	tenantID := args[0]

	env, err := loadEnv()
	if err != nil {
		return err
	}
	metaPool, registry, err := openMetaRegistry(ctx, env)
	if err != nil {
		return err
	}
	defer metaPool.Close()

	if err := registry.UpdateStatusByID(ctx, tenantID, status); err != nil {
		return fmt.Errorf("update tenant %s: %w", tenantID, err)
	}
	fmt.Printf("tenant %s is now %s\n", tenantID, status)
	return nil
}

// gooseUp shells out to the goose binary. Keeping migrations outside the
// binary means ops can also run them by hand with the same tool.
func gooseUp(dir, dsn string) error {
	cmd := exec.Command("goose", "-dir", dir, "postgres", dsn, "up")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
