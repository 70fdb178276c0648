package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"

	"github.com/xraph/credits"
	"github.com/xraph/credits/internal/cli"
	"github.com/xraph/credits/internal/config"
	"github.com/xraph/credits/purchase"
	"github.com/xraph/credits/store/sqlite"
	"github.com/xraph/credits/txlog"
	"github.com/xraph/credits/types"
)

// fixture writes a config pointing at a fresh sqlite file and returns both
// paths.
func fixture(t *testing.T, extra string) (cfgPath, dbPath string) {
	t.Helper()
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "credits.db")
	cfgPath = filepath.Join(dir, "credits.yaml")
	body := fmt.Sprintf("store:\n  driver: sqlite\n  dsn: %s\nlog:\n  level: error\n%s", dbPath, extra)
	if err := os.WriteFile(cfgPath, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return cfgPath, dbPath
}

// seed funds acct with 100 credits and leaves a 40 credit hold that expired
// an hour ago.
func seed(t *testing.T, dbPath string) {
	t.Helper()
	ctx := context.Background()
	s, err := sqlite.Open(ctx, dbPath)
	if err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-time.Hour)
	l := credits.New(s,
		credits.WithSweepInterval(0),
		credits.WithClock(types.ClockFunc(func() time.Time { return past })),
	)
	if err := l.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer l.Stop()

	if err := l.CreatePackage(ctx, &purchase.Package{
		Code: "basic", Name: "Basic", Credits: types.Credits(100), Price: types.USD("5.00"), Active: true,
	}); err != nil {
		t.Fatal(err)
	}
	p, err := l.InitiatePurchase(ctx, credits.PurchaseInput{AccountID: "acct", PackageCode: "basic"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.CompletePurchase(ctx, p.ID, "gw-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Reserve(ctx, credits.ReserveInput{AccountID: "acct", Amount: types.Credits(40), TTL: time.Minute}); err != nil {
		t.Fatal(err)
	}
}

func run(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	cmd := cli.NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMigrate(t *testing.T) {
	cfgPath, _ := fixture(t, "")
	out, err := run(t, cfgPath, "migrate")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "migrated sqlite store") {
		t.Errorf("out = %q", out)
	}
}

func TestSweepBalanceHistoryReconcile(t *testing.T) {
	cfgPath, dbPath := fixture(t, "")
	seed(t, dbPath)

	out, err := run(t, cfgPath, "sweep")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "expired 1 reservations") {
		t.Errorf("sweep out = %q", out)
	}

	out, err = run(t, cfgPath, "balance", "acct", "-o", "json")
	if err != nil {
		t.Fatal(err)
	}
	var balances []struct {
		AccountID string          `json:"account_id"`
		Current   decimal.Decimal `json:"current_balance"`
		Reserved  decimal.Decimal `json:"reserved_balance"`
		Available decimal.Decimal `json:"available_balance"`
	}
	if err := json.Unmarshal([]byte(out), &balances); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(balances) != 1 || !balances[0].Current.Equal(decimal.NewFromInt(100)) ||
		!balances[0].Reserved.IsZero() || !balances[0].Available.Equal(decimal.NewFromInt(100)) {
		t.Errorf("balances = %+v", balances)
	}

	out, err = run(t, cfgPath, "history", "acct", "-o", "json")
	if err != nil {
		t.Fatal(err)
	}
	var entries []*txlog.Entry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	want := []txlog.Type{txlog.TypePurchase, txlog.TypeReserve, txlog.TypeExpire}
	if len(entries) != len(want) {
		t.Fatalf("entries = %d, want %d", len(entries), len(want))
	}
	for i, e := range entries {
		if e.Type != want[i] {
			t.Errorf("entry %d = %s, want %s", i, e.Type, want[i])
		}
	}

	out, err = run(t, cfgPath, "history", "acct", "--type", "EXPIRE")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(out, "EXPIRE") != 1 || strings.Contains(out, "PURCHASE") {
		t.Errorf("filtered history = %q", out)
	}

	out, err = run(t, cfgPath, "reconcile", "--all")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "acct\tok\t3 entries") {
		t.Errorf("reconcile out = %q", out)
	}
}

func TestPackages(t *testing.T) {
	cfgPath, _ := fixture(t, "")

	steps := [][]string{
		{"packages", "add", "pro", "--credits", "500", "--price", "20.00", "--order", "2"},
		{"packages", "add", "starter", "--credits", "50", "--price", "2.50", "--order", "1"},
		{"packages", "disable", "pro"},
	}
	for _, args := range steps {
		if _, err := run(t, cfgPath, args...); err != nil {
			t.Fatalf("%v: %v", args, err)
		}
	}

	out, err := run(t, cfgPath, "packages", "list", "-o", "json")
	if err != nil {
		t.Fatal(err)
	}
	var pkgs []*purchase.Package
	if err := json.Unmarshal([]byte(out), &pkgs); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(pkgs) != 2 || pkgs[0].Code != "starter" || pkgs[1].Code != "pro" || pkgs[1].Active {
		t.Errorf("packages = %+v", pkgs)
	}

	out, err = run(t, cfgPath, "packages", "list", "--active")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "pro") || !strings.Contains(out, "starter") {
		t.Errorf("active list = %q", out)
	}
}

func TestCommandErrors(t *testing.T) {
	cfgPath, _ := fixture(t, "")

	tests := []struct {
		name string
		args []string
		is   error
	}{
		{"unknown account", []string{"balance", "ghost"}, credits.ErrAccountNotFound},
		{"reconcile needs a target", []string{"reconcile"}, nil},
		{"bad output", []string{"balance", "acct", "-o", "yaml"}, nil},
		{"bad history type", []string{"history", "acct", "--type", "GIFT"}, nil},
		{"bad time", []string{"history", "acct", "--from", "yesterday"}, nil},
		{"missing credits flag", []string{"packages", "add", "x"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, cfgPath, tt.args...)
			if err == nil {
				t.Fatal("command succeeded")
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("err = %v, want %v", err, tt.is)
			}
		})
	}
}

func TestSweepRespectsLease(t *testing.T) {
	mr := miniredis.RunT(t)
	cfgPath, dbPath := fixture(t, fmt.Sprintf("redis:\n  addr: %s\nsweep:\n  lease_key: sweep\n", mr.Addr()))
	seed(t, dbPath)

	if err := mr.Set("sweep", "other-instance"); err != nil {
		t.Fatal(err)
	}
	out, err := run(t, cfgPath, "sweep")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "sweep skipped") {
		t.Errorf("held lease out = %q", out)
	}

	mr.Del("sweep")
	out, err = run(t, cfgPath, "sweep")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "expired 1 reservations") {
		t.Errorf("free lease out = %q", out)
	}
	if mr.Exists("sweep") {
		t.Error("lease not released after sweep")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := cli.NewLogger(&buf, config.LogConfig{Level: "warn", Format: "json"})
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if rec["msg"] != "shown" || rec["k"] != "v" {
		t.Errorf("record = %v", rec)
	}

	if _, err := cli.NewLogger(&buf, config.LogConfig{Level: "loud"}); err == nil {
		t.Error("unknown level accepted")
	}
}
