package storage

import "testing"

func TestRedisOptions(t *testing.T) {
	opts := RedisOptions("redis://:secret@localhost:6380/2")
	if opts.Addr != "localhost:6380" || opts.Password != "secret" || opts.DB != 2 {
		t.Fatalf("unexpected url options: %+v", opts)
	}

	opts = RedisOptions("cache.example.net:6380,password=pw=,ssl=True,abortConnect=False")
	if opts.Addr != "cache.example.net:6380" || opts.Password != "pw=" {
		t.Fatalf("unexpected connection string options: %+v", opts)
	}
	if opts.TLSConfig == nil {
		t.Fatalf("expected TLS to be enabled")
	}

	if opts := RedisOptions("localhost:6379"); opts.Addr != "localhost:6379" || opts.TLSConfig != nil {
		t.Fatalf("unexpected plain options: %+v", opts)
	}
}
