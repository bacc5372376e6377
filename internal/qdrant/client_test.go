package qdrant

import (
	"context"
	"testing"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/corner4world/deepdetect/internal/config"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}
	cfg.setDefaults()

	if cfg.Host != DefaultHost || cfg.Port != DefaultPort {
		t.Errorf("unexpected address %s:%d", cfg.Host, cfg.Port)
	}
	if cfg.Prefix != DefaultCollectionPrefix {
		t.Errorf("prefix = %q", cfg.Prefix)
	}
	if cfg.Timeout != DefaultTimeout {
		t.Errorf("timeout = %v", cfg.Timeout)
	}
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.QdrantConfig{
		Host:             "qdrant",
		Port:             7000,
		APIKey:           "k",
		CollectionPrefix: "x_",
		Timeout:          time.Second,
	})
	if cfg.Host != "qdrant" || cfg.Port != 7000 || cfg.APIKey != "k" || cfg.Prefix != "x_" || cfg.Timeout != time.Second {
		t.Errorf("unexpected config %+v", cfg)
	}
}

func TestCollectionName(t *testing.T) {
	c := &Client{cfg: Config{Prefix: "dd_"}}
	tests := []struct {
		input    string
		expected string
	}{
		{"default", "dd_default"},
		{"faces", "dd_faces"},
		{"roi-index", "dd_roi-index"},
	}

	for _, tt := range tests {
		if got := c.collection(tt.input); got != tt.expected {
			t.Errorf("collection(%s) = %s, expected %s", tt.input, got, tt.expected)
		}
	}
}

func TestClosedClient(t *testing.T) {
	c := &Client{cfg: Config{Timeout: time.Second}, closed: true}
	if err := c.Ping(context.Background()); err != errClosed {
		t.Errorf("Ping on closed client = %v", err)
	}
	if _, err := c.Count(context.Background(), "x"); err == nil {
		t.Error("Count on closed client should fail")
	}
}

func TestEnsureCollection_RejectsEmptyVectors(t *testing.T) {
	c := &Client{cfg: Config{Timeout: time.Second}}
	if err := c.EnsureCollection(context.Background(), "x", 0); err == nil {
		t.Error("expected an error for a zero dimension")
	}
}

func TestMetaRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	p := Point{
		ID:     "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		Vector: []float32{0.1, 0.2},
		Meta: Meta{
			URI:       "img.jpg",
			BBox:      &[4]float64{1, 2, 30.5, 40},
			Prob:      0.75,
			Cat:       "car",
			IndexedAt: now,
		},
	}

	got := decodeMeta(toPointStruct(p).Payload)

	if got.URI != "img.jpg" || got.Cat != "car" {
		t.Errorf("unexpected identity: %+v", got)
	}
	if got.BBox == nil || *got.BBox != *p.Meta.BBox {
		t.Errorf("bbox = %v, want %v", got.BBox, p.Meta.BBox)
	}
	if got.Prob != 0.75 {
		t.Errorf("prob = %v, want 0.75", got.Prob)
	}
	if !got.IndexedAt.Equal(now) {
		t.Errorf("indexed_at = %v, want %v", got.IndexedAt, now)
	}
}

func TestMetaWithoutBBox(t *testing.T) {
	ps := toPointStruct(Point{ID: "6ba7b810-9dad-11d1-80b4-00c04fd430c8", Meta: Meta{URI: "a"}})
	if got := decodeMeta(ps.Payload); got.BBox != nil {
		t.Error("whole-sample points should not carry a bbox")
	}
	if _, ok := ps.Payload["cat"]; ok {
		t.Error("whole-sample points should not carry a category")
	}
}

func TestToHit(t *testing.T) {
	sp := &qdrant.ScoredPoint{
		Id:      qdrant.NewIDNum(7),
		Score:   1.5,
		Payload: qdrant.NewValueMap(map[string]any{"uri": "x", "prob": int64(1)}),
	}
	got := toHit(sp)
	if got.ID != "7" || got.Dist != 1.5 || got.Meta.URI != "x" {
		t.Errorf("unexpected hit: %+v", got)
	}
	if got.Meta.Prob != 1 {
		t.Errorf("integer prob should decode as 1, got %v", got.Meta.Prob)
	}
}
