package costmodel

import (
	"testing"

	"chatledger/pkg/amount"
)

func TestRequiredPaymentExact(t *testing.T) {
	m := New(amount.FromUint64(100))
	// 5 + 12 + 40 + 50 = 107 bytes; 107*100 = 10700; *120/100 = 12840
	got := m.RequiredPayment("alice", "Hello world!")
	if got.String() != "12840" {
		t.Fatalf("RequiredPayment = %s, want 12840", got.String())
	}
}

func TestRequiredPaymentCeiling(t *testing.T) {
	// per-byte price of 1 makes raw = byte count; the 120/100 margin then
	// rounds up whenever byte count is not a multiple of 5.
	m := New(amount.FromUint64(1))
	// "" + "x": 1 + 90 = 91 bytes; 91*120 = 10920; /100 = 109.2 -> 110
	got := m.RequiredPayment("", "x")
	if got.String() != "110" {
		t.Fatalf("RequiredPayment = %s, want 110", got.String())
	}
	// 95 bytes divides evenly: 5 account bytes, no rounding
	got = m.RequiredPayment("alice", "")
	if got.String() != "114" {
		t.Fatalf("RequiredPayment = %s, want 114", got.String())
	}
}

func TestRequiredPaymentMonotonic(t *testing.T) {
	m := New(DefaultPerByte)
	base := m.RequiredPayment("alice", "hi")
	longerBody := m.RequiredPayment("alice", "hi there")
	longerAcct := m.RequiredPayment("alice.with.suffix", "hi")
	if longerBody.Cmp(base) <= 0 {
		t.Fatalf("longer body should cost more: %s vs %s", longerBody.String(), base.String())
	}
	if longerAcct.Cmp(base) <= 0 {
		t.Fatalf("longer account should cost more: %s vs %s", longerAcct.String(), base.String())
	}
}

func TestMinPaymentIsFloor(t *testing.T) {
	m := New(DefaultPerByte)
	min := m.MinPayment()
	if min.IsZero() {
		t.Fatalf("MinPayment is zero")
	}
	// any real message from any author costs at least MinPayment
	if m.RequiredPayment("a", "x").Cmp(min) < 0 {
		t.Fatalf("one-byte message under MinPayment")
	}
	if min.Cmp(m.RequiredPayment("", "x")) != 0 {
		t.Fatalf("MinPayment should equal the smallest legal message cost")
	}
}

func TestNewDefaultsPerByte(t *testing.T) {
	m := New(amount.Zero())
	if m.PerByte().Cmp(DefaultPerByte) != 0 {
		t.Fatalf("zero perByte should select the default, got %s", m.PerByte().String())
	}
}

func TestSameInputsSamePrice(t *testing.T) {
	m := New(DefaultPerByte)
	a := m.RequiredPayment("bob", "deterministic")
	b := m.RequiredPayment("bob", "deterministic")
	if a.Cmp(b) != 0 {
		t.Fatalf("pricing not deterministic: %s vs %s", a.String(), b.String())
	}
}
