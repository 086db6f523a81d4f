package cache

import (
	"testing"

	"plinkoengine/internal/config"
)

func TestNew_NoRedis(t *testing.T) {
	_, err := New(config.RedisConfig{Addr: "invalid_host:9999", DB: 0})
	if err == nil {
		t.Fatal("expected an error connecting to an unreachable redis host")
	}
}

func TestService_Interface(t *testing.T) {
	var _ Service = (*service)(nil)
}

// TestNew_Connects requires a local Redis on localhost:6379, matching the
// integration-test convention used across this tree's store tests.
func TestNew_Connects(t *testing.T) {
	svc, err := New(config.RedisConfig{Addr: "localhost:6379", DB: 15})
	if err != nil {
		t.Skipf("redis not reachable: %v", err)
	}
	defer svc.Close()

	health := svc.Health()
	if health["status"] != "up" {
		t.Errorf("expected status up, got %v", health)
	}
}
