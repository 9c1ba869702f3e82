package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != 3001 {
		t.Errorf("Port = %d, want 3001", cfg.Port)
	}
	if cfg.BaseURL != "http://localhost:3001" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if !cfg.ProxyEnabled {
		t.Error("ProxyEnabled should default to true")
	}
	if cfg.FetchTimeout != 8*time.Second {
		t.Errorf("FetchTimeout = %v, want 8s", cfg.FetchTimeout)
	}
	if cfg.MaxIframeDepth != 3 {
		t.Errorf("MaxIframeDepth = %d, want 3", cfg.MaxIframeDepth)
	}
	if cfg.TMDBBaseURL != "https://api.themoviedb.org/3" {
		t.Errorf("TMDBBaseURL = %q", cfg.TMDBBaseURL)
	}
	if cfg.AniListURL != "https://graphql.anilist.co" {
		t.Errorf("AniListURL = %q", cfg.AniListURL)
	}
	if cfg.DBPath != "embedgate.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("PROXY_ENABLED", "false")
	t.Setenv("FETCH_TIMEOUT", "15")
	t.Setenv("MAX_IFRAME_DEPTH", "5")
	t.Setenv("API_PASSWORD", "secret")
	t.Setenv("GLOBAL_PROXIES", "socks5://127.0.0.1:1080, http://proxy.example:8080")

	cfg := Load()

	if cfg.Port != 8080 {
		t.Errorf("Port = %d", cfg.Port)
	}
	if cfg.BaseURL != "http://localhost:8080" {
		t.Errorf("BaseURL = %q, should follow overridden port", cfg.BaseURL)
	}
	if cfg.ProxyEnabled {
		t.Error("ProxyEnabled = true, want false")
	}
	if cfg.FetchTimeout != 15*time.Second {
		t.Errorf("FetchTimeout = %v, bare integers are seconds", cfg.FetchTimeout)
	}
	if cfg.MaxIframeDepth != 5 {
		t.Errorf("MaxIframeDepth = %d", cfg.MaxIframeDepth)
	}
	if cfg.APIPassword != "secret" {
		t.Errorf("APIPassword = %q", cfg.APIPassword)
	}
	if len(cfg.GlobalProxies) != 2 || cfg.GlobalProxies[1] != "http://proxy.example:8080" {
		t.Errorf("GlobalProxies = %v", cfg.GlobalProxies)
	}
}

func TestLoadLegacyGlobalProxy(t *testing.T) {
	t.Setenv("GLOBAL_PROXY", "socks5://127.0.0.1:1080")

	cfg := Load()
	if len(cfg.GlobalProxies) != 1 || cfg.GlobalProxies[0] != "socks5://127.0.0.1:1080" {
		t.Errorf("GlobalProxies = %v, want the legacy single proxy", cfg.GlobalProxies)
	}
}

func TestParseTransportRoutes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []TransportRoute
	}{
		{
			name: "empty",
			in:   "",
			want: nil,
		},
		{
			name: "single route",
			in:   "{URL=vidsrc, PROXY=socks5://127.0.0.1:1080}",
			want: []TransportRoute{{URLPattern: "vidsrc", Proxy: "socks5://127.0.0.1:1080"}},
		},
		{
			name: "multiple routes with flags",
			in:   "{URL=embed.su, DISABLE_SSL=true}, {URL=cloudnestra, DIRECT=true}",
			want: []TransportRoute{
				{URLPattern: "embed.su", DisableSSL: true},
				{URLPattern: "cloudnestra", Direct: true},
			},
		},
		{
			name: "route without URL dropped",
			in:   "{PROXY=socks5://127.0.0.1:1080}",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseTransportRoutes(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d routes, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("route[%d] = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("D_SECONDS", "30")
	t.Setenv("D_GO", "1m30s")
	t.Setenv("D_BAD", "soon")

	if d := getEnvDuration("D_SECONDS", time.Second); d != 30*time.Second {
		t.Errorf("bare integer = %v", d)
	}
	if d := getEnvDuration("D_GO", time.Second); d != 90*time.Second {
		t.Errorf("go duration = %v", d)
	}
	if d := getEnvDuration("D_BAD", time.Second); d != time.Second {
		t.Errorf("unparseable = %v, want default", d)
	}
	if d := getEnvDuration("D_UNSET", 5*time.Second); d != 5*time.Second {
		t.Errorf("unset = %v, want default", d)
	}
}
