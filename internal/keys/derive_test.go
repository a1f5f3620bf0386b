package keys

import (
	"errors"
	"strings"
	"testing"
)

// testMaster is a fixed master secret for deterministic derivation tests.
var testMaster = []byte{
	0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77,
	0x88, 0x99, 0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff,
}

func newTestService(t *testing.T) *Service {
	t.Helper()

	svc, err := New(testMaster)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return svc
}

func TestNew_MasterSecretLength(t *testing.T) {
	tests := []struct {
		name    string
		secret  []byte
		wantErr bool
	}{
		{name: "valid 16 bytes", secret: testMaster, wantErr: false},
		{name: "nil", secret: nil, wantErr: true},
		{name: "too short", secret: testMaster[:8], wantErr: true},
		{name: "too long", secret: append(append([]byte{}, testMaster...), 0x00), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.secret)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidMasterSecret) {
					t.Fatalf("New() error = %v, want ErrInvalidMasterSecret", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() unexpected error: %v", err)
			}
		})
	}
}

func TestDeriveKey_Deterministic(t *testing.T) {
	svc := newTestService(t)

	first, err := svc.DeriveKey("04a1b2c3", 0)
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}

	for i := 0; i < 10; i++ {
		again, err := svc.DeriveKey("04a1b2c3", 0)
		if err != nil {
			t.Fatalf("DeriveKey() error = %v", err)
		}
		if again != first {
			t.Fatalf("DeriveKey() not deterministic: %s != %s", again.Hex(), first.Hex())
		}
	}
}

func TestDeriveKey_CaseInsensitiveUID(t *testing.T) {
	svc := newTestService(t)

	lower, err := svc.DeriveKey("04a1b2c3d4e5f6", 2)
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}
	upper, err := svc.DeriveKey("04A1B2C3D4E5F6", 2)
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}
	if lower != upper {
		t.Error("DeriveKey() should be case-insensitive on UID hex")
	}
}

func TestDeriveKey_DistinctSlots(t *testing.T) {
	svc := newTestService(t)

	seen := make(map[string]int)
	for slot := 0; slot <= MaxKeySlot; slot++ {
		key, err := svc.DeriveKey("04a1b2c3d4e5f6", slot)
		if err != nil {
			t.Fatalf("DeriveKey(slot=%d) error = %v", slot, err)
		}
		if prev, dup := seen[key.Hex()]; dup {
			t.Fatalf("slots %d and %d derived identical keys", prev, slot)
		}
		seen[key.Hex()] = slot
	}
}

func TestDeriveKey_DistinctCards(t *testing.T) {
	svc := newTestService(t)

	a, err := svc.DeriveKey("04a1b2c3", 0)
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}
	b, err := svc.DeriveKey("04a1b2c4", 0)
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}
	if a == b {
		t.Error("different cards derived identical keys")
	}
}

func TestDeriveKey_DistinctMasters(t *testing.T) {
	svc := newTestService(t)

	other := append([]byte{}, testMaster...)
	other[0] ^= 0xff
	otherSvc, err := New(other)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	a, _ := svc.DeriveKey("04a1b2c3", 0) //nolint:errcheck // inputs validated above
	b, _ := otherSvc.DeriveKey("04a1b2c3", 0)
	if a == b {
		t.Error("different master secrets derived identical keys")
	}
}

func TestDeriveKey_InvalidInputs(t *testing.T) {
	svc := newTestService(t)

	tests := []struct {
		name    string
		uid     string
		slot    int
		wantErr error
	}{
		{name: "not hex", uid: "zzzzzzzz", slot: 0, wantErr: ErrInvalidUID},
		{name: "odd length hex", uid: "04a1b2c", slot: 0, wantErr: ErrInvalidUID},
		{name: "too short uid", uid: "04a1", slot: 0, wantErr: ErrInvalidUID},
		{name: "too long uid", uid: strings.Repeat("04", 11), slot: 0, wantErr: ErrInvalidUID},
		{name: "negative slot", uid: "04a1b2c3", slot: -1, wantErr: ErrInvalidSlot},
		{name: "slot beyond max", uid: "04a1b2c3", slot: MaxKeySlot + 1, wantErr: ErrInvalidSlot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.DeriveKey(tt.uid, tt.slot)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("DeriveKey() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestKey_Hex(t *testing.T) {
	svc := newTestService(t)

	key, err := svc.DeriveKey("04a1b2c3", 0)
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}

	h := key.Hex()
	if len(h) != KeySize*2 {
		t.Errorf("Hex() length = %d, want %d", len(h), KeySize*2)
	}
	if h != strings.ToLower(h) {
		t.Error("Hex() must be lowercase")
	}
}

func TestKey_StringRedacts(t *testing.T) {
	svc := newTestService(t)

	key, err := svc.DeriveKey("04a1b2c3", 0)
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}

	if s := key.String(); strings.Contains(s, key.Hex()[:8]) {
		t.Errorf("String() leaks key material: %q", s)
	}
}
