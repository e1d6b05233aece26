// Command genkey mints an API key directly in the database. It exists to
// bootstrap a fresh deployment: the admin endpoints themselves require an
// admin key, so the first one has to come from outside the API.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/noperle/bsides-ldn-2019/internal/config"
	"github.com/noperle/bsides-ldn-2019/internal/store"
	"github.com/noperle/bsides-ldn-2019/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

var validScopes = map[string]bool{"agent": true, "operator": true, "admin": true}

func main() {
	name := flag.String("name", "", "key name, unique per deployment")
	scopes := flag.String("scopes", "operator", "comma-separated scopes: agent, operator, admin")
	dbURL := flag.String("database-url", os.Getenv("DATABASE_URL"), "postgres connection string")
	migrations := flag.String("migrations", "migrations", "path to the migrations directory")
	flag.Parse()

	if *name == "" {
		fmt.Fprintln(os.Stderr, "genkey: -name is required")
		os.Exit(2)
	}
	if *dbURL == "" {
		fmt.Fprintln(os.Stderr, "genkey: -database-url or DATABASE_URL is required")
		os.Exit(2)
	}

	var scopeList []string
	for _, s := range strings.Split(*scopes, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if !validScopes[s] {
			fmt.Fprintf(os.Stderr, "genkey: unknown scope %q\n", s)
			os.Exit(2)
		}
		scopeList = append(scopeList, s)
	}
	if len(scopeList) == 0 {
		fmt.Fprintln(os.Stderr, "genkey: at least one scope is required")
		os.Exit(2)
	}

	// The first eight characters double as the stored lookup prefix.
	raw := make([]byte, 18)
	if _, err := rand.Read(raw); err != nil {
		fmt.Fprintf(os.Stderr, "genkey: generating key: %v\n", err)
		os.Exit(2)
	}
	rawKey := "adv_" + hex.EncodeToString(raw)

	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.DefaultCost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "genkey: hashing key: %v\n", err)
		os.Exit(2)
	}

	ctx := context.Background()
	pool, err := store.Connect(ctx, config.DatabaseConfig{
		URL:             *dbURL,
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "genkey: connecting to database: %v\n", err)
		os.Exit(2)
	}
	defer pool.Close()

	if err := store.RunMigrations(*dbURL, *migrations); err != nil {
		fmt.Fprintf(os.Stderr, "genkey: running migrations: %v\n", err)
		os.Exit(2)
	}

	now := time.Now().UTC()
	key := &models.APIKey{
		ID:        uuid.New(),
		Name:      *name,
		KeyHash:   string(hash),
		KeyPrefix: rawKey[:8],
		Scopes:    scopeList,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := store.NewPostgresStore(pool).CreateAPIKey(ctx, key); err != nil {
		fmt.Fprintf(os.Stderr, "genkey: storing key: %v\n", err)
		os.Exit(2)
	}

	fmt.Println("# ======= API key (shown once) =======")
	fmt.Println()
	fmt.Printf("NAME:       %s\n", key.Name)
	fmt.Printf("KEY_PREFIX: %s\n", key.KeyPrefix)
	fmt.Printf("SCOPES:     %s\n", strings.Join(key.Scopes, ","))
	fmt.Println()
	fmt.Println("API_KEY:")
	fmt.Println(rawKey)
	fmt.Println()
	fmt.Println("# ====================================")
}
