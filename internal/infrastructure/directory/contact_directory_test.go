package directory

import (
	"context"
	"testing"

	"address-intelligence/internal/infrastructure/config"
)

func TestMemoryContactDirectory(t *testing.T) {
	dir := NewMemoryContactDirectory()
	ctx := context.Background()

	dir.LinkWallets(ctx, "User@Example.com", "wallet-b", "wallet-a")
	dir.LinkWallets(ctx, "+1 555 123 4567", "wallet-c")
	dir.LinkWallets(ctx, "user@example.com", "wallet-a")

	tests := []struct {
		contact string
		want    []string
	}{
		{"user@example.com", []string{"wallet-a", "wallet-b"}},
		{" USER@EXAMPLE.COM ", []string{"wallet-a", "wallet-b"}},
		{"+15551234567", []string{"wallet-c"}},
		{"nobody@example.com", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.contact, func(t *testing.T) {
			got, err := dir.LookupWalletsByContact(ctx, tt.contact)
			if err != nil {
				t.Fatalf("LookupWalletsByContact: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestMemoryContactDirectoryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMemoryContactDirectory().LookupWalletsByContact(ctx, "a@b.c"); err == nil {
		t.Fatal("expected context error")
	}
}

func TestRedisKey(t *testing.T) {
	dir := NewRedisContactDirectory(&config.RedisConfig{Addr: "localhost:6379"})
	defer dir.Close()

	if got := dir.key(" Alice@Example.COM"); got != "contact:alice@example.com:wallets" {
		t.Errorf("key = %q", got)
	}
	if got := dir.key("+1 555 0100"); got != "contact:+15550100:wallets" {
		t.Errorf("key = %q", got)
	}
}
