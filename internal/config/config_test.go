package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load returned nil config")
	}
	if cfg.GRPCAddr != ":8080" {
		t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, ":8080")
	}
	if cfg.DocstoreDriver != DriverMemory {
		t.Errorf("DocstoreDriver = %q, want %q", cfg.DocstoreDriver, DriverMemory)
	}
	if cfg.JWTIssuer != "orderdesk-auth" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "orderdesk-auth")
	}
	if cfg.JWTAudience != "orderdesk-app" {
		t.Errorf("JWTAudience = %q, want %q", cfg.JWTAudience, "orderdesk-app")
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("BcryptCost = %d, want 12", cfg.BcryptCost)
	}
	if cfg.ProfileMaxRetries != 10 {
		t.Errorf("ProfileMaxRetries = %d, want 10", cfg.ProfileMaxRetries)
	}
	if cfg.ServiceName != "orderdesk-session" {
		t.Errorf("ServiceName = %q, want default", cfg.ServiceName)
	}
	if cfg.DevNotices {
		t.Error("DevNotices should default to false")
	}

	durations := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"IDTokenTTL", cfg.IDTokenTTL(), time.Hour},
		{"ProfileRetryEvery", cfg.ProfileRetryEvery(), 500 * time.Millisecond},
		{"ProfileWaitCeiling", cfg.ProfileWaitCeiling(), 10 * time.Second},
		{"InviteCodeTTL", cfg.InviteCodeTTL(), 30 * 24 * time.Hour},
		{"InvitePurgeInterval", cfg.InvitePurgeInterval(), time.Hour},
		{"PasswordResetTTL", cfg.PasswordResetTTL(), time.Hour},
	}
	for _, d := range durations {
		if d.got != d.want {
			t.Errorf("%s = %v, want %v", d.name, d.got, d.want)
		}
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("GRPC_ADDR", ":9090")
	os.Setenv("JWT_ISSUER", "custom-issuer")
	os.Setenv("BCRYPT_COST", "14")
	os.Setenv("PROFILE_MAX_RETRIES", "3")
	os.Setenv("PROFILE_RETRY_INTERVAL", "250ms")
	os.Setenv("INVITE_CODE_TTL", "48h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GRPCAddr != ":9090" {
		t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, ":9090")
	}
	if cfg.JWTIssuer != "custom-issuer" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "custom-issuer")
	}
	if cfg.BcryptCost != 14 {
		t.Errorf("BcryptCost = %d, want 14", cfg.BcryptCost)
	}
	if cfg.ProfileMaxRetries != 3 {
		t.Errorf("ProfileMaxRetries = %d, want 3", cfg.ProfileMaxRetries)
	}
	if got := cfg.ProfileRetryEvery(); got != 250*time.Millisecond {
		t.Errorf("ProfileRetryEvery = %v, want 250ms", got)
	}
	if got := cfg.InviteCodeTTL(); got != 48*time.Hour {
		t.Errorf("InviteCodeTTL = %v, want 48h", got)
	}
}

func TestLoad_DocstoreDriver(t *testing.T) {
	testCases := []struct {
		name string
		env  map[string]string
		err  bool
	}{
		{"memory", map[string]string{"DOCSTORE_DRIVER": "memory"}, false},
		{"postgres with url", map[string]string{"DOCSTORE_DRIVER": "postgres", "DATABASE_URL": "postgres://localhost/od"}, false},
		{"postgres without url", map[string]string{"DOCSTORE_DRIVER": "postgres"}, true},
		{"redis with url", map[string]string{"DOCSTORE_DRIVER": "Redis", "REDIS_URL": "redis://localhost:6379/0"}, false},
		{"redis without url", map[string]string{"DOCSTORE_DRIVER": "redis"}, true},
		{"unknown", map[string]string{"DOCSTORE_DRIVER": "mongo"}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tc.env {
				os.Setenv(k, v)
			}
			cfg, err := Load()
			if tc.err {
				if err == nil {
					t.Fatal("Load should return error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.DocstoreDriver == "" {
				t.Error("DocstoreDriver is empty")
			}
		})
	}
}

func TestLoad_BCRYPT_COSTRange(t *testing.T) {
	testCases := []struct {
		name  string
		value string
		want  int
		err   bool
	}{
		{"valid min", "4", 4, false},
		{"valid max", "31", 31, false},
		{"valid middle", "12", 12, false},
		{"too low", "3", 0, true},
		{"too high", "32", 0, true},
		{"zero", "0", 12, false}, // Should default to 12
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			os.Clearenv()
			os.Setenv("BCRYPT_COST", tc.value)

			cfg, err := Load()
			if tc.err {
				if err == nil {
					t.Fatal("Load should return error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.BcryptCost != tc.want {
				t.Errorf("BcryptCost = %d, want %d", cfg.BcryptCost, tc.want)
			}
		})
	}
}

func TestLoad_DevNoticesInProduction(t *testing.T) {
	os.Clearenv()
	os.Setenv("DEV_NOTICES", "true")
	os.Setenv("APP_ENV", "production")

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load should return error when DEV_NOTICES=true and APP_ENV=production")
	}
	if cfg != nil {
		t.Error("Load should return nil config on error")
	}
	if err.Error() != "config: DEV_NOTICES must not be true when APP_ENV=production" {
		t.Errorf("error = %q, want production message", err.Error())
	}
}

func TestLoad_DevNoticesDevelopment(t *testing.T) {
	os.Clearenv()
	os.Setenv("DEV_NOTICES", "true")
	os.Setenv("APP_ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.DevNotices {
		t.Error("DevNotices should be true")
	}
	if cfg.IsProduction() {
		t.Error("IsProduction should be false")
	}
}

func TestDurations_FallBackOnInvalid(t *testing.T) {
	for _, raw := range []string{"invalid", "0", "-5m"} {
		os.Clearenv()
		os.Setenv("JWT_ID_TOKEN_TTL", raw)
		os.Setenv("PROFILE_WAIT_TIMEOUT", raw)
		os.Setenv("PASSWORD_RESET_TTL", raw)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load(%q): %v", raw, err)
		}
		if got := cfg.IDTokenTTL(); got != time.Hour {
			t.Errorf("%q: IDTokenTTL = %v, want 1h (default)", raw, got)
		}
		if got := cfg.ProfileWaitCeiling(); got != 10*time.Second {
			t.Errorf("%q: ProfileWaitCeiling = %v, want 10s (default)", raw, got)
		}
		if got := cfg.PasswordResetTTL(); got != time.Hour {
			t.Errorf("%q: PasswordResetTTL = %v, want 1h (default)", raw, got)
		}
	}
}
