package vectorstore

import (
	"testing"

	"github.com/qdrant/go-client/qdrant"
)

// TestQdrantConfig tests URL parsing without creating a real client.
func TestQdrantConfig(t *testing.T) {
	tests := []struct {
		name     string
		urlStr   string
		apiKey   string
		wantErr  bool
		wantHost string
		wantPort int
		wantTLS  bool
	}{
		{
			name:     "valid URL",
			urlStr:   "http://localhost:6333",
			wantHost: "localhost",
			wantPort: 6334, // gRPC port is HTTP port + 1
		},
		{
			name:     "URL with custom port",
			urlStr:   "http://qdrant.internal:9000",
			wantHost: "qdrant.internal",
			wantPort: 9001,
		},
		{
			name:    "invalid URL",
			urlStr:  "://invalid",
			wantErr: true,
		},
		{
			name:    "invalid port",
			urlStr:  "http://localhost:abc",
			wantErr: true,
		},
		{
			name:     "URL without port",
			urlStr:   "http://localhost",
			wantHost: "localhost",
			wantPort: 6334,
		},
		{
			name:     "URL without hostname",
			urlStr:   "http://:6333",
			wantHost: "localhost",
			wantPort: 6334,
		},
		{
			name:     "https cloud URL with key",
			urlStr:   "https://xyz.cloud.qdrant.io:6333",
			apiKey:   "secret",
			wantHost: "xyz.cloud.qdrant.io",
			wantPort: 6334,
			wantTLS:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := qdrantConfig(tt.urlStr, tt.apiKey)
			if tt.wantErr {
				if err == nil {
					t.Error("qdrantConfig() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("qdrantConfig() error = %v", err)
			}
			if cfg.Host != tt.wantHost {
				t.Errorf("Host = %v, want %v", cfg.Host, tt.wantHost)
			}
			if cfg.Port != tt.wantPort {
				t.Errorf("Port = %v, want %v", cfg.Port, tt.wantPort)
			}
			if cfg.UseTLS != tt.wantTLS {
				t.Errorf("UseTLS = %v, want %v", cfg.UseTLS, tt.wantTLS)
			}
			if cfg.APIKey != tt.apiKey {
				t.Errorf("APIKey = %q, want %q", cfg.APIKey, tt.apiKey)
			}
		})
	}
}

func TestNewQdrantStore_InvalidURL(t *testing.T) {
	if _, err := NewQdrantStore("://invalid", ""); err == nil {
		t.Error("NewQdrantStore() with invalid URL should return error")
	}
}

func TestBuildFilter(t *testing.T) {
	if buildFilter(nil) != nil {
		t.Error("nil filter should produce no Qdrant filter")
	}
	if buildFilter(&Filter{}) != nil {
		t.Error("empty filter should produce no Qdrant filter")
	}

	f := buildFilter(&Filter{
		Section:        "efficacy",
		ItemSeqs:       []string{"1", "2"},
		IngredientKeys: []string{"ibuprofen", "caffeine"},
	})
	if f == nil {
		t.Fatal("buildFilter() returned nil")
	}
	if len(f.Must) != 4 {
		t.Fatalf("len(Must) = %d, want 4 (section, item_seq, one per ingredient)", len(f.Must))
	}

	keys := make([]string, 0, len(f.Must))
	for _, c := range f.Must {
		fc := c.GetField()
		if fc == nil {
			t.Fatalf("condition %v is not a field condition", c)
		}
		keys = append(keys, fc.GetKey())
	}
	want := []string{FieldSection, FieldItemSeq, FieldIngredientKeys, FieldIngredientKeys}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("condition %d key = %q, want %q", i, keys[i], want[i])
		}
	}

	if got := f.Must[1].GetField().GetMatch().GetKeywords().GetStrings(); len(got) != 2 {
		t.Errorf("item_seq keywords = %v, want 2 values", got)
	}
}

func TestPruneFilter(t *testing.T) {
	tests := []struct {
		name        string
		keep        []string
		wantExclude int
	}{
		{name: "no points kept", keep: nil, wantExclude: 0},
		{name: "written points kept", keep: []string{PointID("7", "efficacy", 0), PointID("7", "efficacy", 1)}, wantExclude: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := pruneFilter("7", tt.keep)
			if len(f.Must) != 1 {
				t.Fatalf("len(Must) = %d, want 1", len(f.Must))
			}
			fc := f.Must[0].GetField()
			if fc.GetKey() != FieldItemSeq || fc.GetMatch().GetKeyword() != "7" {
				t.Errorf("Must[0] = %v, want item_seq match on 7", fc)
			}
			if tt.wantExclude == 0 {
				if len(f.MustNot) != 0 {
					t.Errorf("MustNot = %v, want none", f.MustNot)
				}
				return
			}
			if len(f.MustNot) != 1 {
				t.Fatalf("len(MustNot) = %d, want 1", len(f.MustNot))
			}
			ids := f.MustNot[0].GetHasId().GetHasId()
			if len(ids) != tt.wantExclude {
				t.Fatalf("excluded ids = %d, want %d", len(ids), tt.wantExclude)
			}
			if ids[0].GetUuid() != tt.keep[0] {
				t.Errorf("excluded id = %q, want %q", ids[0].GetUuid(), tt.keep[0])
			}
		})
	}
}

func TestConvertValue(t *testing.T) {
	meta := Payload{
		ItemSeq:     "A1",
		Section:     "efficacy",
		PartIdx:     3,
		Aliases:     []string{"Tylenol"},
		Ingredients: []string{"Acetaminophen"},
		IsOTC:       true,
	}.Map()

	values, err := qdrant.TryValueMap(meta)
	if err != nil {
		t.Fatalf("TryValueMap() error = %v", err)
	}

	back := ParsePayload(convertPayloadToMap(values))
	if back.ItemSeq != "A1" || back.Section != "efficacy" || back.PartIdx != 3 || !back.IsOTC {
		t.Errorf("round trip = %+v", back)
	}
	if len(back.Aliases) != 1 || back.Aliases[0] != "Tylenol" {
		t.Errorf("aliases = %v", back.Aliases)
	}

	keys := metaStrings(convertPayloadToMap(values), FieldIngredientKeys)
	if len(keys) != 1 || keys[0] != "acetaminophen" {
		t.Errorf("ingredient_keys = %v, want [acetaminophen]", keys)
	}
}
