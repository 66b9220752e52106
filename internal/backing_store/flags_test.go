package backing_store

import "testing"

func TestFlags_AccessMode(t *testing.T) {
	tests := []struct {
		name      string
		flags     Flags
		wantMode  Flags
		wantRead  bool
		wantWrite bool
	}{
		{name: "read-only", flags: FlagReadOnly, wantMode: FlagReadOnly, wantRead: true},
		{name: "write-only", flags: FlagWriteOnly, wantMode: FlagWriteOnly, wantWrite: true},
		{name: "read-write", flags: FlagReadWrite, wantMode: FlagReadWrite, wantRead: true, wantWrite: true},
		{name: "create does not affect mode", flags: FlagWriteOnly | FlagCreate | FlagTruncate, wantMode: FlagWriteOnly, wantWrite: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.flags.AccessMode(); got != tt.wantMode {
				t.Errorf("AccessMode() = %d, want %d", got, tt.wantMode)
			}
			if got := tt.flags.CanRead(); got != tt.wantRead {
				t.Errorf("CanRead() = %v, want %v", got, tt.wantRead)
			}
			if got := tt.flags.CanWrite(); got != tt.wantWrite {
				t.Errorf("CanWrite() = %v, want %v", got, tt.wantWrite)
			}
		})
	}
}

func TestFlags_Valid(t *testing.T) {
	if !(FlagReadOnly | FlagCreate).Valid() {
		t.Errorf("Valid() = false for read-only create, want true")
	}
	if (Flags(3)).Valid() {
		t.Errorf("Valid() = true for access mode 3, want false")
	}
}
