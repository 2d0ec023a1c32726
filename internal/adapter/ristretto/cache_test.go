package ristretto_test

import (
	"context"
	"testing"
	"time"

	"github.com/Strob0t/CaseForge/internal/adapter/ristretto"
	"github.com/Strob0t/CaseForge/internal/port/cache"
	"github.com/Strob0t/CaseForge/internal/port/cache/cachetest"
)

var _ cache.Cache = (*ristretto.Cache)(nil)

func TestRistrettoCompliance(t *testing.T) {
	c, err := ristretto.New(8)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Close)
	cachetest.RunComplianceTests(t, c)
}

func TestRistrettoRejectsOversizedEntry(t *testing.T) {
	c, err := ristretto.New(1)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Close)

	ctx := context.Background()
	big := make([]byte, 2<<20)
	if err := c.Set(ctx, "stats:overall", big, time.Minute); err == nil {
		t.Fatal("expected an error for an entry larger than the cache")
	}
	if _, ok, _ := c.Get(ctx, "stats:overall"); ok {
		t.Error("expected oversized entry to be absent")
	}
}
