package utils

import (
	"testing"
	"time"
)

func TestPoolSettingsDefaults(t *testing.T) {
	got := PoolSettings{}.withDefaults()
	if got.MaxOpenConns != 20 {
		t.Fatalf("MaxOpenConns = %d, want 20", got.MaxOpenConns)
	}
	if got.MaxIdleConns != 10 {
		t.Fatalf("MaxIdleConns = %d, want 10", got.MaxIdleConns)
	}
	if got.PingTimeout != 5*time.Second {
		t.Fatalf("PingTimeout = %v, want 5s", got.PingTimeout)
	}
}

func TestPoolSettingsExplicitValuesKept(t *testing.T) {
	in := PoolSettings{MaxOpenConns: 3, MaxIdleConns: 2, PingTimeout: time.Second}
	got := in.withDefaults()
	if got.MaxOpenConns != 3 || got.MaxIdleConns != 2 || got.PingTimeout != time.Second {
		t.Fatalf("explicit values were overridden: %+v", got)
	}
}
