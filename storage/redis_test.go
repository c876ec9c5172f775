package storage

import (
	"testing"

	"github.com/redis/go-redis/v9"
)

func TestRedisStoreKeys(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	tests := []struct {
		prefix string
		path   string
		want   string
	}{
		{prefix: "", path: SellersPath, want: "sellerwatch:sellers/sellers.json"},
		{prefix: "sw", path: "sellers//inventory/a.json", want: "sw:sellers/inventory/a.json"},
	}
	for _, tt := range tests {
		got, err := newRedisStore(client, tt.prefix).key(tt.path)
		if err != nil {
			t.Fatalf("key(%q): %v", tt.path, err)
		}
		if got != tt.want {
			t.Fatalf("key(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
	if _, err := newRedisStore(client, "").key("../x"); err == nil {
		t.Fatalf("expected escaping path to fail")
	}
}
