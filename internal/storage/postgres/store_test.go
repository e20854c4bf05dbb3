package postgres

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/sdvuuv/spitec/internal/config"
	"github.com/sdvuuv/spitec/internal/sites"
	"github.com/sdvuuv/spitec/pkg/logger"
)

func TestConnString(t *testing.T) {
	got := ConnString(config.PostgresConfig{
		Host:     "db",
		Port:     5433,
		Username: "gnss",
		Password: "pw",
		Database: "spitec",
		SSLMode:  "disable",
	})
	for _, part := range []string{"host=db", "port=5433", "user=gnss", "password=pw", "dbname=spitec", "sslmode=disable"} {
		if !strings.Contains(got, part) {
			t.Errorf("connection string %q missing %q", got, part)
		}
	}
}

func TestSchemaEmbedded(t *testing.T) {
	schema, err := schemaSQL.ReadFile("schema.sql")
	if err != nil {
		t.Fatalf("schema not embedded: %v", err)
	}
	for _, table := range []string{"sites", "observations"} {
		if !strings.Contains(string(schema), "CREATE TABLE IF NOT EXISTS "+table) {
			t.Errorf("schema missing table %s", table)
		}
	}
}

// Runs only when SPITEC_TEST_POSTGRES_HOST points at a scratch database
func TestStoreAgainstDatabase(t *testing.T) {
	host := os.Getenv("SPITEC_TEST_POSTGRES_HOST")
	if host == "" {
		t.Skip("SPITEC_TEST_POSTGRES_HOST not set")
	}

	cfg := config.Default().Storage.Postgres
	cfg.Host = host
	cfg.Database = "spitec_test"
	cfg.Username = os.Getenv("SPITEC_TEST_POSTGRES_USER")
	cfg.Password = os.Getenv("SPITEC_TEST_POSTGRES_PASSWORD")

	ctx := context.Background()
	s, err := Connect(ctx, cfg, logger.NewNop())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer s.Close()

	if err := s.SaveSite(ctx, sites.Station{Name: "test1", Lat: 0.1, Lon: 0.2}); err != nil {
		t.Fatalf("SaveSite failed: %v", err)
	}
	got, err := s.Sites(ctx)
	if err != nil {
		t.Fatalf("Sites failed: %v", err)
	}
	found := false
	for _, st := range got {
		if st.Name == "test1" {
			found = true
		}
	}
	if !found {
		t.Errorf("saved site not returned: %+v", got)
	}
}
