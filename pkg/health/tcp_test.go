package health

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestTCPChecker_HealthyEndpoint(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to start listener: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	checker := NewTCPChecker(ln.Addr().String())
	result := checker.Check(context.Background())

	if !result.Healthy {
		t.Errorf("expected healthy, got unhealthy: %s", result.Message)
	}
	if result.Duration <= 0 {
		t.Error("expected positive duration")
	}
}

func TestTCPChecker_UnreachableEndpoint(t *testing.T) {
	checker := NewTCPChecker("127.0.0.1:1").WithTimeout(200 * time.Millisecond)
	result := checker.Check(context.Background())

	if result.Healthy {
		t.Error("expected unhealthy for an unreachable address")
	}
}

func TestTCPChecker_Type(t *testing.T) {
	checker := NewTCPChecker("127.0.0.1:9999")
	if checker.Type() != CheckTypeTCP {
		t.Errorf("expected type %s, got %s", CheckTypeTCP, checker.Type())
	}
}

func TestTCPChecker_WithTimeoutOverridesDefault(t *testing.T) {
	checker := NewTCPChecker("127.0.0.1:9999")
	if checker.Timeout != 5*time.Second {
		t.Fatalf("expected default timeout of 5s, got %s", checker.Timeout)
	}
	checker.WithTimeout(50 * time.Millisecond)
	if checker.Timeout != 50*time.Millisecond {
		t.Errorf("expected timeout to be overridden to 50ms, got %s", checker.Timeout)
	}
}

func TestTCPChecker_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	checker := NewTCPChecker("127.0.0.1:1")
	result := checker.Check(ctx)
	if result.Healthy {
		t.Error("expected unhealthy due to cancelled context")
	}
}
