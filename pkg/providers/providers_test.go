package providers

import (
	"errors"
	"testing"

	"embedgate/pkg/logging"
)

func TestBuiltinsOrder(t *testing.T) {
	b := Builtins()
	if len(b) != 3 {
		t.Fatalf("expected 3 builtin providers, got %d", len(b))
	}

	wantSlugs := []string{"vidsrc", "vidsrcme", "vidsrcpro"}
	for i, want := range wantSlugs {
		if b[i].Slug != want {
			t.Errorf("builtin[%d].Slug = %q, want %q", i, b[i].Slug, want)
		}
	}

	if b[0].BaseURL != "https://vidsrc.to/embed" {
		t.Errorf("primary provider base = %q", b[0].BaseURL)
	}
}

func TestParseExternal(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int
		wantErr bool
	}{
		{
			name: "valid anime providers",
			raw:  `[{"name":"Cinetaro","slug":"cinetaro","baseUrl":"https://cinetaro.example/anime","mode":"path-mal"}]`,
			want: 1,
		},
		{
			name: "malformed entries dropped",
			raw:  `[{"name":"NoSlug","baseUrl":"https://x.example"},{"name":"Good","slug":"good","baseUrl":"https://y.example"},{"slug":"nobase","name":"NoBase"}]`,
			want: 1,
		},
		{
			name:    "invalid json",
			raw:     `{not json`,
			wantErr: true,
		},
		{
			name: "empty list",
			raw:  `[]`,
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseExternal(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d providers, want %d", len(got), tt.want)
			}
		})
	}
}

func TestLoadMergesExternal(t *testing.T) {
	log := logging.Discard()

	reg := Load(`[{"name":"Cinetaro","slug":"cinetaro","baseUrl":"https://cinetaro.example","mode":"path-mal","supportedTypes":["tv"]}]`, log)
	if reg.Len() != 4 {
		t.Fatalf("expected 4 providers after merge, got %d", reg.Len())
	}

	p, err := reg.BySlug("cinetaro")
	if err != nil {
		t.Fatalf("BySlug(cinetaro): %v", err)
	}
	if p.Mode != ModePathMAL {
		t.Errorf("mode = %q, want %q", p.Mode, ModePathMAL)
	}

	// Broken external list is ignored, builtins survive
	reg = Load(`{broken`, log)
	if reg.Len() != 3 {
		t.Errorf("expected builtins only on broken external list, got %d", reg.Len())
	}
}

func TestRegistryDuplicateSlugDropped(t *testing.T) {
	reg := NewRegistry([]Provider{
		{Name: "First", Slug: "dup", BaseURL: "https://first.example"},
		{Name: "Second", Slug: "dup", BaseURL: "https://second.example"},
	})

	if reg.Len() != 1 {
		t.Fatalf("expected duplicate slug to be dropped, got %d providers", reg.Len())
	}
	p, err := reg.BySlug("dup")
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "First" {
		t.Errorf("kept %q, want the first registration", p.Name)
	}
}

func TestListFiltersByType(t *testing.T) {
	reg := NewRegistry([]Provider{
		{Name: "All", Slug: "all", BaseURL: "https://all.example"},
		{Name: "MoviesOnly", Slug: "movies", BaseURL: "https://m.example", SupportedTypes: []MediaType{MediaMovie}},
		{Name: "TVOnly", Slug: "tv", BaseURL: "https://t.example", SupportedTypes: []MediaType{MediaTV}},
	})

	movies := reg.List(MediaMovie)
	if len(movies) != 2 {
		t.Fatalf("movie providers = %d, want 2", len(movies))
	}
	if movies[0].Slug != "all" || movies[1].Slug != "movies" {
		t.Errorf("movie providers out of registration order: %v", movies)
	}

	tv := reg.List(MediaTV)
	if len(tv) != 2 {
		t.Fatalf("tv providers = %d, want 2", len(tv))
	}

	all := reg.List("")
	if len(all) != 3 {
		t.Errorf("unfiltered list = %d, want 3", len(all))
	}
}

func TestBySlugUnknown(t *testing.T) {
	reg := NewRegistry(Builtins())

	_, err := reg.BySlug("doesnotexist")
	if err == nil {
		t.Fatal("expected error for unknown slug")
	}
	if !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("error = %v, want ErrUnknownProvider", err)
	}
}
