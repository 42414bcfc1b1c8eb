package db

import (
	"context"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/shinyyama/tripmatch-backend/internal/config"
)

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
		want string
	}{
		{"plain host", config.Config{DBUser: "u", DBPassword: "p", DBHost: "db", DBPort: "3306", DBName: "trips"}, "u:p@tcp(db:3306)/trips?"},
		{"tcp prefix", config.Config{DBUser: "u", DBPassword: "p", DBHost: "tcp(10.0.0.1:3307)", DBName: "trips"}, "u:p@tcp(10.0.0.1:3307)/trips?"},
		{"socket path", config.Config{DBUser: "u", DBPassword: "p", DBHost: "/var/run/mysqld.sock", DBName: "trips"}, "u:p@unix(/var/run/mysqld.sock)/trips?"},
		{"cloud sql", config.Config{DBUser: "u", DBPassword: "p", DBHost: "ignored", DBName: "trips", InstanceConnectionName: "proj:region:inst"}, "u:p@unix(/cloudsql/proj:region:inst)/trips?"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildDSN(&tt.cfg)
			if !strings.HasPrefix(got, tt.want) {
				t.Fatalf("got=%s want prefix %s", got, tt.want)
			}
			if !strings.Contains(got, "loc=UTC") {
				t.Fatalf("dsn must pin UTC: %s", got)
			}
		})
	}
}

func TestBuildPostgresDSN(t *testing.T) {
	cfg := config.Config{DBUser: "u", DBPassword: "p", DBHost: "pg", DBPort: "3306", DBName: "trips"}
	got := BuildPostgresDSN(&cfg)
	if !strings.Contains(got, "host=pg port=5432") || !strings.Contains(got, "dbname=trips") {
		t.Fatalf("got=%s", got)
	}
}

func TestDialectorRejectsUnknownDriver(t *testing.T) {
	if _, err := dialector(&config.Config{DBDriver: "sqlite"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestOpenRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb, err := OpenRedis(context.Background(), "redis://"+mr.Addr()+"/0")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rdb.Close()

	if rdb, err := OpenRedis(context.Background(), ""); rdb != nil || err != nil {
		t.Fatalf("empty url should disable redis, got %v %v", rdb, err)
	}
	if _, err := OpenRedis(context.Background(), "not a url"); err == nil {
		t.Fatalf("expected parse error")
	}
}
